// Package cli implements the command logic behind the pergola binary,
// keeping the cobra layer thin.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pergolab/pergola"
	"github.com/pergolab/pergola/internal/logging"
	"github.com/pergolab/pergola/internal/presentation/tui"
	"github.com/pergolab/pergola/pkg/adapters/yamlgraph"
	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
	"github.com/pergolab/pergola/pkg/registry"
)

// Exit codes for the run command.
const (
	ExitOK         = 0
	ExitRunAborted = 1 // a sequential node exhausted its policy
	ExitInvalid    = 2 // the pipeline definition failed validation
	ExitFailed     = 3 // the run completed but some items failed
)

// RunOptions contains the configuration for the run command.
type RunOptions struct {
	File        string
	Context     string // raw JSON for the initial state
	Concurrency int
	Timeout     time.Duration
	JSON        bool // emit the raw report instead of the rendered view
	Debug       bool
}

// ExecuteRun loads the pipeline, submits one run, and prints the report.
// It returns the process exit code.
func ExecuteRun(opts RunOptions) int {
	var initial map[string]any
	if opts.Context != "" {
		if err := json.Unmarshal([]byte(opts.Context), &initial); err != nil {
			fmt.Fprintf(os.Stderr, "error parsing --context JSON: %v\n", err)
			return ExitInvalid
		}
	}

	pipe, code := buildPipeline(opts.File, opts.Debug, pipelineOptions(opts)...)
	if pipe == nil {
		return code
	}

	ctx, stop := notifyContext()
	defer stop()

	report, err := pipe.Submit(ctx, initial)
	if err != nil && report == nil {
		var runErr *domain.RunError
		if errors.As(err, &runErr) {
			fmt.Fprintf(os.Stderr, "run aborted at node %q: %v\n", runErr.NodeID, runErr.Err)
			return ExitRunAborted
		}
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		return ExitRunAborted
	}

	printReport(report, opts.JSON)

	if report.Failed > 0 || report.TimedOut > 0 || !report.Completed() {
		return ExitFailed
	}
	return ExitOK
}

func pipelineOptions(opts RunOptions) []pergola.Option {
	var out []pergola.Option
	if opts.Concurrency > 0 {
		out = append(out, pergola.WithMaxConcurrency(opts.Concurrency))
	}
	if opts.Timeout > 0 {
		out = append(out, pergola.WithRunTimeout(opts.Timeout))
	}
	return out
}

// buildPipeline loads and validates the definition. On failure it prints the
// problems and returns a nil pipeline with the exit code to use.
func buildPipeline(file string, debug bool, opts ...pergola.Option) (*pergola.Pipeline, int) {
	def, err := yamlgraph.LoadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading pipeline: %v\n", err)
		return nil, ExitInvalid
	}
	return buildDefinition(def, debug, opts...)
}

// buildDefinition validates an already-parsed definition and builds the
// pipeline around it, printing problems the same way buildPipeline does.
func buildDefinition(def *yamlgraph.Definition, debug bool, opts ...pergola.Option) (*pergola.Pipeline, int) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := logging.New(level)

	pipe, err := pergola.FromDefinition(def, registry.New(), append([]pergola.Option{pergola.WithLogger(logger)}, opts...)...)
	if err != nil {
		var valErr *graph.ValidationError
		if errors.As(err, &valErr) {
			fmt.Fprintln(os.Stderr, "pipeline definition is invalid:")
			for _, problem := range valErr.Problems {
				fmt.Fprintf(os.Stderr, "  - %s\n", problem)
			}
		} else {
			fmt.Fprintf(os.Stderr, "error loading pipeline: %v\n", err)
		}
		return nil, ExitInvalid
	}
	return pipe, ExitOK
}

func printReport(report *domain.Report, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	markdown := tui.ReportMarkdown(report)
	if tui.IsInteractive() {
		render := tui.NewRenderer()
		if out, err := render(markdown); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(markdown)
}

// Package process adapts external commands into capabilities. The command
// receives the capability input as JSON on stdin and replies with a JSON
// object on stdout. This keeps research/LLM/file-writing collaborators out of
// the engine core while still letting a pipeline document bind them by name.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pergolab/pergola/pkg/domain"
)

// Runner builds process-backed capabilities. It follows a strict allow-list
// model: only commands explicitly bound by the host ever execute.
type Runner struct {
	baseDir string
	grace   time.Duration
	logger  *slog.Logger
}

// Option configures the runner.
type Option func(*Runner)

// WithBaseDir sets the working directory for executed commands.
func WithBaseDir(dir string) Option {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets how long a cancelled command may run after SIGTERM
// before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithLogger sets the logger used for command diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a process runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		grace:  5 * time.Second,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capability binds a command line to a capability function. Extra env
// entries are appended to the parent environment.
func (r *Runner) Capability(name, command string, args []string, env map[string]string) domain.CapabilityFunc {
	return func(ctx context.Context, input map[string]any) (map[string]any, error) {
		payload, err := json.Marshal(input)
		if err != nil {
			return nil, domain.Fatalf("process", "encoding input for %s: %v", name, err)
		}

		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Dir = r.baseDir
		cmd.Stdin = bytes.NewReader(payload)
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}

		// Cooperative cancellation: SIGTERM first, hard kill after the grace
		// period. Windows has no SIGTERM; Cancel falls back to Kill there.
		cmd.Cancel = func() error {
			return terminate(cmd)
		}
		cmd.WaitDelay = r.grace

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		start := time.Now()
		runErr := cmd.Run()
		r.logger.Debug("process capability finished",
			"capability", name,
			"command", command,
			"duration", time.Since(start),
			"err", runErr,
		)

		if ctx.Err() != nil {
			return nil, domain.Retryablef(domain.KindCancelled, "%s cancelled: %v", name, ctx.Err())
		}
		if runErr != nil {
			return nil, &domain.Failure{
				Kind:    "process",
				Message: fmt.Sprintf("%s failed: %v", name, runErr),
				Detail:  map[string]any{"stderr": truncate(stderr.String(), 2048)},
			}
		}

		return decodeOutput(stdout.Bytes())
	}
}

// decodeOutput parses the command's stdout. A JSON object becomes the output
// map directly; anything else is wrapped under "output".
func decodeOutput(raw []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var out map[string]any
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			return out, nil
		}
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []any
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			return map[string]any{"output": list}, nil
		}
	}
	return map[string]any{"output": trimmed}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

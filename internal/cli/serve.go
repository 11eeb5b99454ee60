package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pergolab/pergola"
	httpAdapter "github.com/pergolab/pergola/internal/adapters/http"
	mermaid "github.com/pergolab/pergola/internal/presentation/graph"
	"github.com/pergolab/pergola/pkg/adapters/memory"
	redisAdapter "github.com/pergolab/pergola/pkg/adapters/redis"
	"github.com/pergolab/pergola/pkg/adapters/yamlgraph"
	"github.com/pergolab/pergola/pkg/graph"
	"github.com/pergolab/pergola/pkg/observability"
	"github.com/pergolab/pergola/pkg/ports"
)

// ServeOptions contains the configuration for the serve command.
type ServeOptions struct {
	File      string
	Addr      string
	RedisAddr string // empty means in-memory report archive
	RedisDB   int
	ReportTTL time.Duration
	Debug     bool
}

// ExecuteServe runs the HTTP server until interrupted. It returns the
// process exit code.
func ExecuteServe(opts ServeOptions) int {
	metrics := observability.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		fmt.Fprintf(os.Stderr, "error registering metrics: %v\n", err)
		return ExitRunAborted
	}

	def, err := yamlgraph.LoadFile(opts.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading pipeline: %v\n", err)
		return ExitInvalid
	}
	name := def.Name
	if name == "" {
		name = graph.DefaultName
	}
	pipe, code := buildDefinition(def, opts.Debug,
		pergola.WithLifecycleHooks(metrics.Hooks(name)))
	if pipe == nil {
		return code
	}

	var reports ports.ReportStore
	var closer interface{ Close() error }
	if opts.RedisAddr != "" {
		store := redisAdapter.New(opts.RedisAddr, "", opts.RedisDB,
			redisAdapter.WithTTL(opts.ReportTTL))
		reports, closer = store, store
	} else {
		reports = memory.NewReportStore()
	}
	if closer != nil {
		defer closer.Close()
	}

	handler := httpAdapter.NewHandler(pipe, reports, promhttp.Handler())
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		fmt.Printf("serving pipeline %q on %s\n", pipe.Graph().Name(), srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	ctx, stop := notifyContext()
	defer stop()

	select {
	case err := <-serverErrors:
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return ExitRunAborted
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "graceful shutdown did not complete: %v\n", err)
			_ = srv.Close()
		}
		return ExitOK
	}
}

func mermaidFor(g *graph.Graph) string {
	return mermaid.GenerateMermaid(g.Nodes(), g.Edges())
}

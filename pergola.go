package pergola

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pergolab/pergola/internal/runtime"
	"github.com/pergolab/pergola/pkg/adapters/process"
	"github.com/pergolab/pergola/pkg/adapters/yamlgraph"
	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
	"github.com/pergolab/pergola/pkg/registry"
)

// Version is the library version, surfaced by the CLI.
const Version = "0.2.0"

// Pipeline is the high-level entry point for the Pergola library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Pipeline struct {
	runtime     *runtime.Engine
	graph       *graph.Graph
	registry    *registry.Registry
	hooks       []domain.LifecycleHooks
	logger      *slog.Logger
	runtimeOpts []runtime.EngineOption
	Name        string
}

// Option defines a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithLifecycleHooks registers observability hooks. May be given more than
// once; all registered hook sets are invoked.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Pipeline) {
		p.hooks = append(p.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMaxConcurrency bounds how many batch items execute at once.
func WithMaxConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.runtimeOpts = append(p.runtimeOpts, runtime.WithMaxConcurrency(n))
	}
}

// WithRunTimeout sets an overall deadline for each submitted run.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.runtimeOpts = append(p.runtimeOpts, runtime.WithRunTimeout(d))
	}
}

// WithNodePolicy attaches a retry/timeout policy to a single node.
func WithNodePolicy(nodeID string, pol domain.Policy) Option {
	return func(p *Pipeline) {
		p.runtimeOpts = append(p.runtimeOpts, runtime.WithNodePolicy(nodeID, pol))
	}
}

// WithDefaultPolicy sets the policy applied to nodes without their own.
func WithDefaultPolicy(pol domain.Policy) Option {
	return func(p *Pipeline) {
		p.runtimeOpts = append(p.runtimeOpts, runtime.WithDefaultPolicy(pol))
	}
}

// New builds a pipeline around an already-validated graph and a capability
// registry.
func New(g *graph.Graph, reg *registry.Registry, opts ...Option) (*Pipeline, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("capability registry is required")
	}

	p := &Pipeline{
		graph:    g,
		registry: reg,
		Name:     g.Name(),
	}
	for _, opt := range opts {
		opt(p)
	}

	// Avoid passing nil into the runtime, which would overwrite its default.
	if p.logger == nil {
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if p.Name != "" {
		p.logger = p.logger.With("graph", p.Name)
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(p.logger),
		runtime.WithLifecycleHooks(joinHooks(p.hooks)),
	}
	runtimeOpts = append(runtimeOpts, p.runtimeOpts...)

	p.runtime = runtime.NewEngine(g, reg, runtimeOpts...)
	return p, nil
}

// Load reads a YAML pipeline definition, registers any process-backed
// capabilities it declares, validates the graph, and builds a pipeline.
// Capabilities already present in reg win over YAML-declared ones, so hosts
// can override a command with an in-process implementation.
func Load(path string, reg *registry.Registry, opts ...Option) (*Pipeline, error) {
	def, err := yamlgraph.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return FromDefinition(def, reg, opts...)
}

// FromDefinition builds a pipeline from an already-parsed definition, with
// the same capability registration and policy wiring as Load. Useful when the
// caller needs the document itself, for example to name things after it,
// without parsing the file twice.
func FromDefinition(def *yamlgraph.Definition, reg *registry.Registry, opts ...Option) (*Pipeline, error) {
	if reg == nil {
		reg = registry.New()
	}

	runner := process.NewRunner()
	for _, spec := range def.Capabilities {
		if reg.Has(spec.Name) {
			continue
		}
		reg.Register(spec.Name, runner.Capability(spec.Name, spec.Command, spec.Args, spec.Env))
	}

	name, nodes, edges, graphOpts, err := def.GraphInputs()
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(name, nodes, edges, reg, graphOpts...)
	if err != nil {
		return nil, err
	}

	perNode, defaults, err := def.NodePolicies()
	if err != nil {
		return nil, err
	}
	policyOpts := make([]Option, 0, len(perNode)+2)
	if defaults != nil {
		policyOpts = append(policyOpts, WithDefaultPolicy(*defaults))
	}
	for id, pol := range perNode {
		policyOpts = append(policyOpts, WithNodePolicy(id, pol))
	}
	if def.Concurrency > 0 {
		policyOpts = append(policyOpts, WithMaxConcurrency(def.Concurrency))
	}

	// Caller options come last so they can override the document.
	return New(g, reg, append(policyOpts, opts...)...)
}

// Submit executes one run of the pipeline. See runtime.Engine.Submit for the
// full return contract: a nil error with a report means the run completed
// (failed items are reported inside), a *domain.RunError means a sequential
// node aborted the run, and a report alongside a non-nil error means the run
// degraded at its deadline with partial results kept.
func (p *Pipeline) Submit(ctx context.Context, initial map[string]any) (*domain.Report, error) {
	return p.runtime.Submit(ctx, initial)
}

// Graph returns the validated graph for visualization or introspection.
func (p *Pipeline) Graph() *graph.Graph {
	return p.graph
}

// Registry returns the capability registry backing this pipeline.
func (p *Pipeline) Registry() *registry.Registry {
	return p.registry
}

// joinHooks fans each event out to every registered hook set.
func joinHooks(sets []domain.LifecycleHooks) domain.LifecycleHooks {
	if len(sets) == 0 {
		return domain.LifecycleHooks{}
	}
	if len(sets) == 1 {
		return sets[0]
	}
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, ev *domain.RunEvent) {
			for _, h := range sets {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, ev)
				}
			}
		},
		OnRunEnd: func(ctx context.Context, ev *domain.RunEvent) {
			for _, h := range sets {
				if h.OnRunEnd != nil {
					h.OnRunEnd(ctx, ev)
				}
			}
		},
		OnNodeEnter: func(ctx context.Context, ev *domain.NodeEvent) {
			for _, h := range sets {
				if h.OnNodeEnter != nil {
					h.OnNodeEnter(ctx, ev)
				}
			}
		},
		OnNodeLeave: func(ctx context.Context, ev *domain.NodeEvent) {
			for _, h := range sets {
				if h.OnNodeLeave != nil {
					h.OnNodeLeave(ctx, ev)
				}
			}
		},
		OnItemStart: func(ctx context.Context, ev *domain.ItemEvent) {
			for _, h := range sets {
				if h.OnItemStart != nil {
					h.OnItemStart(ctx, ev)
				}
			}
		},
		OnItemEnd: func(ctx context.Context, ev *domain.ItemEvent) {
			for _, h := range sets {
				if h.OnItemEnd != nil {
					h.OnItemEnd(ctx, ev)
				}
			}
		},
	}
}

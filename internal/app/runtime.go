package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"opsbot/internal/agent/ports"
	"opsbot/internal/async"
	"opsbot/internal/config"
	"opsbot/internal/history"
	"opsbot/internal/llm"
	"opsbot/internal/logging"
	"opsbot/internal/observability"
	"opsbot/internal/orchestrator"
	"opsbot/internal/toolclient"
	"opsbot/internal/tools/k8s"

	"go.opentelemetry.io/otel/trace"
)

// ErrPersist marks a section update that was applied but could not be
// written back to the config file.
var ErrPersist = errors.New("persist config")

// Instance is one fully wired, immutable generation of the engine.
type Instance struct {
	Config       config.Config
	Client       *toolclient.Client
	Orchestrator *orchestrator.Processor
	LLM          ports.LLMClient
	BuiltAt      time.Time
}

// Runtime serves the current Instance and swaps in new ones on reload.
type Runtime struct {
	current    atomic.Pointer[Instance]
	reloadMu   sync.Mutex
	configPath string

	logger      logging.Logger
	metrics     *observability.Metrics
	tracing     *observability.TracerProvider
	history     *history.Store
	retireAfter time.Duration

	newLLM   func(ctx context.Context, cfg config.Config) (ports.LLMClient, error)
	executor func(cfg config.Config) (ports.ToolSource, ports.ToolExecutor)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfigPath enables persisting section updates to path.
func WithConfigPath(path string) Option {
	return func(r *Runtime) { r.configPath = path }
}

// WithMetrics overrides the Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithLogger overrides the runtime logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runtime) { r.logger = logging.OrNop(logger) }
}

// WithRetireDelay sets how long a replaced client keeps serving in-flight
// calls before it is disconnected.
func WithRetireDelay(d time.Duration) Option {
	return func(r *Runtime) { r.retireAfter = d }
}

// WithLLMFactory replaces provider construction.
func WithLLMFactory(fn func(ctx context.Context, cfg config.Config) (ports.LLMClient, error)) Option {
	return func(r *Runtime) { r.newLLM = fn }
}

// WithToolBackend replaces the tool source and executor.
func WithToolBackend(fn func(cfg config.Config) (ports.ToolSource, ports.ToolExecutor)) Option {
	return func(r *Runtime) { r.executor = fn }
}

// New builds the first Instance from cfg. The tool client is connected
// before New returns; a failed connect leaves it in the error state and is
// logged rather than returned, so the API can still report status.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		logger:      logging.NewComponentLogger("runtime"),
		retireAfter: 30 * time.Second,
		newLLM:      defaultLLM,
		executor:    defaultToolBackend,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil && cfg.Observability.Metrics.Enabled {
		r.metrics = observability.DefaultMetrics()
	}

	tp, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		r.logger.Warn("Tracing disabled: %v", err)
		tp = observability.NoopTracerProvider()
	}
	r.tracing = tp

	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		r.history = store
	}

	inst, err := r.build(ctx, cfg)
	if err != nil {
		_ = r.closeShared(ctx)
		return nil, err
	}
	r.current.Store(inst)
	return r, nil
}

func defaultLLM(ctx context.Context, cfg config.Config) (ports.LLMClient, error) {
	return llm.NewClient(ctx, cfg.LLM.ClientConfig())
}

func defaultToolBackend(cfg config.Config) (ports.ToolSource, ports.ToolExecutor) {
	latency := k8s.Latency{}
	if cfg.Tools.SimulateLatency {
		latency = k8s.DefaultLatency()
	}
	sim := k8s.NewSimulator(latency)
	if strings.TrimSpace(cfg.Tools.Catalog) != "" {
		return toolclient.FileSource{Path: cfg.Tools.Catalog}, sim
	}
	return sim, sim
}

func (r *Runtime) build(ctx context.Context, cfg config.Config) (*Instance, error) {
	model, err := r.newLLM(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	model = llm.WithInstrumentation(model, r.tracing.Tracer(), r.metrics)

	source, executor := r.executor(cfg)
	clientOpts := []toolclient.Option{
		toolclient.WithTracer(r.tracing.Tracer()),
		toolclient.WithMetrics(r.metrics),
	}
	if r.history != nil {
		clientOpts = append(clientOpts, toolclient.WithObserver(r.history))
	}
	client := toolclient.New(source, executor, cfg.Client.Options(), clientOpts...)
	if err := client.Connect(ctx); err != nil {
		r.logger.Warn("Tool client connect failed: %v", err)
	}

	processor := orchestrator.New(model, client, cfg.ProcessorConfig(),
		orchestrator.WithTracer(r.tracing.Tracer()),
		orchestrator.WithMetrics(r.metrics),
	)
	return &Instance{
		Config:       cfg,
		Client:       client,
		Orchestrator: processor,
		LLM:          model,
		BuiltAt:      time.Now(),
	}, nil
}

// Current returns the live Instance.
func (r *Runtime) Current() *Instance {
	return r.current.Load()
}

// History returns the call history store, or nil when disabled.
func (r *Runtime) History() *history.Store {
	return r.history
}

// Metrics returns the collectors shared by every Instance.
func (r *Runtime) Metrics() *observability.Metrics {
	return r.metrics
}

// Tracer returns the process tracer shared by every Instance.
func (r *Runtime) Tracer() trace.Tracer {
	return r.tracing.Tracer()
}

// Reload builds and connects a new Instance from cfg and swaps it in. The
// replaced client is disconnected in the background after the retire delay.
// History and tracing settings are fixed for the process lifetime.
func (r *Runtime) Reload(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	next, err := r.build(ctx, cfg)
	if err != nil {
		return err
	}
	old := r.current.Swap(next)
	r.logger.Info("Runtime reloaded: provider=%s model=%s tools=%d",
		cfg.LLM.Provider, cfg.LLM.Model, next.Client.Stats().ActiveTools)
	if old != nil {
		r.retire(old)
	}
	return nil
}

func (r *Runtime) retire(old *Instance) {
	if r.retireAfter <= 0 {
		old.Client.Disconnect()
		return
	}
	async.After(r.logger, "runtime-retire", r.retireAfter, old.Client.Disconnect)
}

// UpdateSection patches one config section, reloads, and persists the
// result when a config path is known.
func (r *Runtime) UpdateSection(ctx context.Context, name string, patch map[string]any) (config.Config, error) {
	next, err := r.Current().Config.UpdateSection(name, patch)
	if err != nil {
		return config.Config{}, err
	}
	if err := r.Reload(ctx, next); err != nil {
		return config.Config{}, err
	}
	if r.configPath != "" {
		if err := config.Save(r.configPath, next); err != nil {
			return next, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}
	return next, nil
}

// Close disconnects the current client and releases shared resources.
func (r *Runtime) Close(ctx context.Context) error {
	if inst := r.Current(); inst != nil {
		inst.Client.Disconnect()
	}
	return r.closeShared(ctx)
}

func (r *Runtime) closeShared(ctx context.Context) error {
	var errs []error
	if r.history != nil {
		errs = append(errs, r.history.Close())
	}
	if r.tracing != nil {
		errs = append(errs, r.tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

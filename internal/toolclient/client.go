package toolclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"
	"opsbot/internal/logging"
	"opsbot/internal/observability"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrAlreadyConnected is returned by Connect outside the disconnected and
// error states.
var ErrAlreadyConnected = errors.New("tool client is already connected or connecting")

// Client owns the tool catalog, its connection state, the result cache,
// call statistics and the execution gate.
type Client struct {
	opts      Options
	source    ports.ToolSource
	executor  ports.ToolExecutor
	logger    logging.Logger
	tracer    trace.Tracer
	metrics   *observability.Metrics
	observers []ports.CallObserver

	mu      sync.RWMutex
	state   ports.ConnectionState
	catalog atomic.Pointer[catalog]

	cache        *ResultCache
	cacheEnabled atomic.Bool
	stats        *StatsCollector
	gate         *semaphore.Weighted
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMetrics records dispatch metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithObserver registers an observer notified after each completed call.
func WithObserver(observer ports.CallObserver) Option {
	return func(c *Client) {
		if observer != nil {
			c.observers = append(c.observers, observer)
		}
	}
}

// New creates a disconnected client. source discovers tools on Connect and
// executor runs them.
func New(source ports.ToolSource, executor ports.ToolExecutor, opts Options, options ...Option) *Client {
	opts = opts.withDefaults()
	c := &Client{
		opts:     opts,
		source:   source,
		executor: executor,
		logger:   logging.NewComponentLogger("toolclient"),
		tracer:   observability.NoopTracerProvider().Tracer(),
		state:    ports.StateDisconnected,
		cache:    NewResultCache(opts.CacheMaxEntries),
		stats:    NewStatsCollector(),
		gate:     semaphore.NewWeighted(int64(opts.MaxConcurrentCalls)),
	}
	c.cacheEnabled.Store(opts.EnableCache)
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Connect discovers the tool catalog and publishes it atomically. It is
// valid from the disconnected and error states only.
func (c *Client) Connect(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, observability.SpanToolConnect)
	defer func() { observability.EndSpan(span, err) }()

	c.mu.Lock()
	if c.state == ports.StateConnected || c.state == ports.StateConnecting {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("Connect called in state %s; ignoring", state)
		return ErrAlreadyConnected
	}
	c.state = ports.StateConnecting
	c.mu.Unlock()

	c.logger.Info("Connecting tool client...")

	cat, err := c.discover(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil && c.state != ports.StateConnecting {
		err = errors.New("connect aborted by disconnect")
	}
	if err != nil {
		if c.state == ports.StateConnecting {
			c.state = ports.StateError
		}
		c.logger.Error("Tool client connect failed: %v", err)
		return apperrors.NewToolError(apperrors.CodeConnectionFailed, "", "failed to connect to tool source", err)
	}

	c.catalog.Store(cat)
	c.stats.SetActiveTools(cat.size())
	c.state = ports.StateConnected
	c.logger.Info("Tool client connected, %d tools available", cat.size())
	return nil
}

func (c *Client) discover(ctx context.Context) (*catalog, error) {
	if c.source == nil {
		return nil, errors.New("no tool source configured")
	}
	tools, err := c.source.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return newCatalog(tools)
}

// Disconnect clears the catalog and the cache. Callers must drain in-flight
// calls first; calls racing a disconnect may observe either catalog.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ports.StateDisconnected
	c.catalog.Store(nil)
	c.cache.Purge()
	c.stats.SetActiveTools(0)
	c.logger.Info("Tool client disconnected")
}

// State returns the current connection state.
func (c *Client) State() ports.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ListTools returns the catalog sorted by name.
func (c *Client) ListTools(ctx context.Context) ([]ports.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != ports.StateConnected {
		return nil, apperrors.NotConnected(string(c.state))
	}
	return c.catalog.Load().list(), nil
}

// GetTool looks a tool up by name regardless of state.
func (c *Client) GetTool(name string) (ports.Tool, bool) {
	return c.catalog.Load().get(name)
}

// Stats returns a snapshot of the call statistics.
func (c *Client) Stats() Stats {
	return c.stats.Snapshot()
}

// ResetStats zeroes the call statistics.
func (c *Client) ResetStats() {
	c.stats.Reset()
	c.logger.Info("Tool call statistics reset")
}

// SetCacheEnabled toggles the cache read and write paths. Disabling does not
// purge existing entries.
func (c *Client) SetCacheEnabled(enabled bool) {
	c.cacheEnabled.Store(enabled)
}

// CacheEnabled reports whether dispatch consults the cache.
func (c *Client) CacheEnabled() bool {
	return c.cacheEnabled.Load()
}

// Options returns the effective client options.
func (c *Client) Options() Options {
	return c.opts
}

// lookup resolves a tool for dispatch.
func (c *Client) lookup(name string) (ports.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != ports.StateConnected {
		return ports.Tool{}, apperrors.NotConnected(string(c.state))
	}
	tool, ok := c.catalog.Load().get(name)
	if !ok {
		return ports.Tool{}, apperrors.ToolNotFound(name)
	}
	return tool, nil
}

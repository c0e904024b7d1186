// Package engine implements the workflow orchestrator: it walks a
// validated definition step by step, dispatches actions through the
// middleware chain, evaluates transitions, coordinates fork/join
// branches, retries, compensation, and event suspension, and persists
// instance state through the configured store.
package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/action"
	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/event"
	"github.com/stepflow/stepflow/hook"
	"github.com/stepflow/stepflow/instance"
	"github.com/stepflow/stepflow/middleware"
)

// DefaultEventWaitTimeout bounds how long an event-wait step stays
// suspended before it times out.
const DefaultEventWaitTimeout = 5 * time.Minute

// Engine executes workflow definitions. Create one with New and
// functional options, register action handlers on Actions(), then call
// Execute.
type Engine struct {
	store   instance.Store
	bus     event.Bus
	logger  *slog.Logger
	hooks   *hook.Registry
	actions *action.Registry
	working *instance.Registry

	chain       middleware.Middleware
	mws         []middleware.Middleware
	tracing     middleware.Middleware
	metrics     middleware.Middleware
	definitions map[string]*definition.Definition

	defaultRetry     definition.RetryPolicy
	eventWaitTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine) error

// New creates an engine backed by the given store and event bus. A nil
// bus falls back to an in-memory bus, which is sufficient when events
// are published through EventEmit steps of the same process.
func New(st instance.Store, bus event.Bus, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, stepflow.ErrNoStore
	}

	e := &Engine{
		store:            st,
		bus:              bus,
		logger:           slog.Default(),
		actions:          action.NewRegistry(),
		working:          instance.NewRegistry(),
		definitions:      make(map[string]*definition.Definition),
		defaultRetry:     definition.DefaultRetryPolicy(),
		eventWaitTimeout: DefaultEventWaitTimeout,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.bus == nil {
		e.bus = event.NewMemoryBus(e.logger)
	}
	if e.hooks == nil {
		e.hooks = hook.NewRegistry(e.logger)
	}

	// Middleware: an explicit chain wins; otherwise the default stack,
	// outermost first.
	if len(e.mws) > 0 {
		e.chain = middleware.Chain(e.mws...)
	} else {
		tracing := e.tracing
		if tracing == nil {
			tracing = middleware.Tracing()
		}
		metrics := e.metrics
		if metrics == nil {
			metrics = middleware.Metrics()
		}
		e.chain = middleware.Chain(
			middleware.Recover(e.logger),
			tracing,
			metrics,
			middleware.Logging(e.logger),
			middleware.Timeout(e.logger),
		)
	}

	return e, nil
}

// Actions returns the engine's action registry.
func (e *Engine) Actions() *action.Registry { return e.actions }

// Hooks returns the engine's lifecycle hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Bus returns the engine's event bus.
func (e *Engine) Bus() event.Bus { return e.bus }

// RegisterDefinition makes a definition resolvable by subworkflow steps.
func (e *Engine) RegisterDefinition(def *definition.Definition) error {
	if err := definition.Validate(def); err != nil {
		return err
	}
	e.definitions[def.ID] = def
	return nil
}

// Definition returns a registered definition by ID.
func (e *Engine) Definition(workflowID string) (*definition.Definition, bool) {
	def, ok := e.definitions[workflowID]
	return def, ok
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(r *hook.Registry) Option {
	return func(e *Engine) error {
		e.hooks = r
		return nil
	}
}

// WithActions sets the action registry.
func WithActions(r *action.Registry) Option {
	return func(e *Engine) error {
		e.actions = r
		return nil
	}
}

// WithMiddleware replaces the default step middleware stack. The first
// middleware is the outermost wrapper.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) error {
		e.mws = mws
		return nil
	}
}

// WithDefaultRetryPolicy sets the policy used by steps and definitions
// that declare none.
func WithDefaultRetryPolicy(p definition.RetryPolicy) Option {
	return func(e *Engine) error {
		e.defaultRetry = p
		return nil
	}
}

// WithEventWaitTimeout sets the default suspension timeout for
// event-wait steps without their own.
func WithEventWaitTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.eventWaitTimeout = d
		return nil
	}
}

// WithDefinitions registers definitions for subworkflow resolution.
func WithDefinitions(defs ...*definition.Definition) Option {
	return func(e *Engine) error {
		for _, def := range defs {
			if err := e.RegisterDefinition(def); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithTracerProvider routes the default tracing middleware through the
// given provider instead of the OTel global.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) error {
		e.tracing = middleware.TracingWithTracer(tp.Tracer("github.com/stepflow/stepflow"))
		return nil
	}
}

// WithMeterProvider routes the default metrics middleware through the
// given provider instead of the OTel global.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) error {
		e.metrics = middleware.MetricsWithMeter(mp.Meter("github.com/stepflow/stepflow"))
		return nil
	}
}

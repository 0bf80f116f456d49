package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hookline/eventrouter/internal/routererr"
)

// Manager owns the plugin registry, coordinates Init/Destroy, and
// dispatches events to matching plugins with parallelism and per-plugin
// error isolation. It is a two-state machine: registered → initialized.
type Manager struct {
	logger logr.Logger
	http   HTTPCapability
	metric MetricsRecorder

	// config maps a plugin's Name to its scoped configuration map.
	config map[string]map[string]any

	registry *registry

	mu          sync.RWMutex
	initialized bool
}

// Option configures optional Manager capabilities.
type Option func(*Manager)

// WithHTTPCapability installs the HTTP capability handed to every plugin
// invocation via PluginContext.HTTP.
func WithHTTPCapability(h HTTPCapability) Option {
	return func(m *Manager) { m.http = h }
}

// WithMetricsRecorder installs the metrics capability handed to every
// plugin invocation via PluginContext.Metrics.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(m *Manager) { m.metric = r }
}

// WithConfig installs the manager-level, per-plugin-name scoped config map.
func WithConfig(config map[string]map[string]any) Option {
	return func(m *Manager) { m.config = config }
}

// NewManager creates a Manager in the registered (not yet initialized)
// state.
func NewManager(logger logr.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:   logger,
		registry: newRegistry(),
		config:   make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a single plugin. Fails fast if the name collides with an
// already-registered plugin.
func (m *Manager) Register(p Plugin) error {
	if err := m.registry.register(p); err != nil {
		return routererr.Precondition(err)
	}
	m.logger.Info("Registered plugin", "name", p.Name, "mode", string(p.Mode))
	return nil
}

// RegisterAll registers each plugin in order. The first collision aborts
// the remainder; plugins registered before the collision stay registered.
func (m *Manager) RegisterAll(plugins []Plugin) error {
	for _, p := range plugins {
		if err := m.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Init runs every registered plugin's Init hook concurrently and returns
// once all have joined. A second call is idempotent: it logs a warning and
// returns nil without re-running anything. If any Init fails, the whole
// call fails with that error; plugins that already succeeded are not
// rolled back.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		m.logger.Info("Init called on an already-initialized manager; ignoring")
		return nil
	}
	m.mu.Unlock()

	plugins := m.registry.all()
	g := new(errgroup.Group)
	for _, p := range plugins {
		p := p
		if p.Init == nil {
			continue
		}
		g.Go(func() error {
			if err := p.Init(ctx); err != nil {
				return fmt.Errorf("plugin %q init: %w", p.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return routererr.PluginInit(err)
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()

	m.logger.Info("Plugin manager initialized", "pluginCount", len(plugins))
	return nil
}

// Destroy invokes every plugin's Destroy hook, logs (never raises)
// failures, clears the registry, and returns to the registered state.
func (m *Manager) Destroy(ctx context.Context) error {
	plugins := m.registry.all()

	var wg sync.WaitGroup
	for _, p := range plugins {
		if p.Destroy == nil {
			continue
		}
		wg.Add(1)
		go func(p Plugin) {
			defer wg.Done()
			if err := p.Destroy(ctx); err != nil {
				m.logger.Error(err, "Plugin destroy failed", "name", p.Name)
			}
		}(p)
	}
	wg.Wait()

	m.registry.clear()
	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()

	m.logger.Info("Plugin manager destroyed")
	return nil
}

func (m *Manager) isInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// ErrorSink observes per-plugin hook errors alongside the manager's own
// log+OnError handling. It exists so a caller like the Router — which by
// contract never receives per-plugin errors through Trigger*'s return
// value — can still observe them through a side channel scoped to a
// single call.
type ErrorSink interface {
	Capture(pluginName string, err error)
}

type errorSinkKey struct{}

// WithErrorSink attaches sink to ctx. Dispatch calls made with the
// returned context report every captured hook error to sink, in addition
// to the manager's own logging and OnError routing.
func WithErrorSink(ctx context.Context, sink ErrorSink) context.Context {
	return context.WithValue(ctx, errorSinkKey{}, sink)
}

func errorSinkFromContext(ctx context.Context) (ErrorSink, bool) {
	sink, ok := ctx.Value(errorSinkKey{}).(ErrorSink)
	return sink, ok
}

// matches reports whether a plugin is a dispatch target for event under
// the optional pluginNames filter, per §4.1's matching rule.
func matches(p Plugin, pluginNames []string, eventName string) bool {
	if pluginNames != nil {
		found := false
		for _, name := range pluginNames {
			if name == p.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return p.Events.Match(eventName)
}

// pluginLogger exposes the manager's logr.Logger through the plugin Logger
// capability. Debug maps to V(1); Warn is logged at logr's Info level.
type pluginLogger struct{ l logr.Logger }

func (p pluginLogger) Debug(msg string, kv ...any) { p.l.V(1).Info(msg, kv...) }
func (p pluginLogger) Info(msg string, kv ...any)  { p.l.Info(msg, kv...) }
func (p pluginLogger) Warn(msg string, kv ...any)  { p.l.Info(msg, kv...) }
func (p pluginLogger) Error(err error, msg string, kv ...any) {
	p.l.Error(err, msg, kv...)
}

// dispatch runs hook (selected by kind) on every matching plugin
// concurrently and joins the group, capturing each plugin's error and
// routing it to OnError. Per-plugin errors never reach the caller: that is
// the contract for Trigger*. The only error it returns is the precondition
// error for a call made before Init.
func (m *Manager) dispatch(ctx context.Context, kind string, event Event, pluginNames []string, pick func(Plugin) (HookFunc, bool)) error {
	if !m.isInitialized() {
		return routererr.Precondition(fmt.Errorf("%s called before Init", kind))
	}

	plugins := m.registry.all()
	traceID := uuid.NewString()
	var targets []Plugin
	for _, p := range plugins {
		if matches(p, pluginNames, event.Name) {
			targets = append(targets, p)
		}
	}

	m.logger.V(1).Info("Dispatching event", "kind", kind, "trace", traceID,
		"eventKey", event.Key(), "eventName", event.Name, "pluginCount", len(targets))

	g := new(errgroup.Group)
	for _, p := range targets {
		p := p
		hook, ok := pick(p)
		if !ok {
			continue
		}
		g.Go(func() error {
			pctx := Context{
				Logger:  pluginLogger{l: m.logger},
				Config:  m.config[p.Name],
				HTTP:    m.http,
				Metrics: m.metric,
				Emit:    m.emit(ctx),
			}
			err := hook(ctx, pctx, event)
			if err != nil {
				typed := routererr.PluginHookError(err)
				m.logger.Error(typed, "Plugin hook failed", "kind", kind, "trace", traceID,
					"plugin", p.Name, "eventKey", event.Key())
				if p.OnError != nil {
					m.safeOnError(ctx, p, pctx, typed, event)
				}
				if sink, ok := errorSinkFromContext(ctx); ok {
					sink.Capture(p.Name, typed)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// safeOnError invokes a plugin's OnError hook, logging and swallowing any
// failure inside it.
func (m *Manager) safeOnError(ctx context.Context, p Plugin, pctx Context, err error, event Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(fmt.Errorf("panic: %v", r), "Plugin OnError panicked", "plugin", p.Name)
		}
	}()
	p.OnError(ctx, pctx, err, event)
}

// emit returns the EmitFunc handed to plugins for the given invocation.
// The emitted dispatch is detached: it runs with its own background
// context so that cancellation of the triggering call does not cancel it.
func (m *Manager) emit(_ context.Context) EmitFunc {
	return func(event Event) {
		go func() {
			if err := m.TriggerEvent(context.Background(), event, nil); err != nil {
				m.logger.Error(err, "Emitted event dispatch failed", "eventKey", event.Key())
			}
		}()
	}
}

// TriggerEvent invokes OnEvent on every matching plugin (optionally
// restricted to pluginNames) concurrently, joining before returning.
// Per-plugin errors are captured and never raised to the caller — the
// Router observes failures through ProcessBatch's own mechanism, not
// through this return value (which is always nil unless the manager
// itself is not yet initialized).
func (m *Manager) TriggerEvent(ctx context.Context, event Event, pluginNames []string) error {
	return m.dispatch(ctx, "onEvent", event, pluginNames, func(p Plugin) (HookFunc, bool) {
		return p.OnEvent, p.OnEvent != nil
	})
}

// TriggerReplay invokes OnReplay, falling back to OnEvent when a plugin
// has no OnReplay hook.
func (m *Manager) TriggerReplay(ctx context.Context, event Event, pluginNames []string) error {
	return m.dispatch(ctx, "onReplay", event, pluginNames, func(p Plugin) (HookFunc, bool) {
		if p.OnReplay != nil {
			return p.OnReplay, true
		}
		return p.OnEvent, p.OnEvent != nil
	})
}

// TriggerDLQ invokes OnDLQ only; there is no fallback to OnEvent.
func (m *Manager) TriggerDLQ(ctx context.Context, event Event, pluginNames []string) error {
	return m.dispatch(ctx, "onDLQ", event, pluginNames, func(p Plugin) (HookFunc, bool) {
		return p.OnDLQ, p.OnDLQ != nil
	})
}

// GetPlugin returns a registered plugin by name.
func (m *Manager) GetPlugin(name string) (Plugin, bool) {
	return m.registry.get(name)
}

// ListPlugins returns every registered plugin's name.
func (m *Manager) ListPlugins() []string {
	return m.registry.names()
}

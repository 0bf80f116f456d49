// Package plugin defines the plugin contract and the event value type, and
// implements the Plugin Manager: registration, lifecycle, and dispatch.
package plugin

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Mode is a plugin's dispatch discipline.
type Mode string

const (
	// ModeAsync plugins are invoked and joined by the Manager like any
	// other plugin, but are expected to treat their own external side
	// effects (HTTP calls, etc.) as fire-and-forget. The name describes
	// the plugin's own downstream behavior, not whether the Manager
	// waits for it — the Manager always waits. See Router Phase A.
	ModeAsync Mode = "async"
	// ModeSync plugins wait for their own external side effects and may
	// retry them.
	ModeSync Mode = "sync"
)

// ExecutionStrategy further qualifies a ModeSync plugin.
type ExecutionStrategy string

const (
	// ExecutionInline is the default: the Router dispatches the plugin
	// itself during Phase B.
	ExecutionInline ExecutionStrategy = "inline"
	// ExecutionWorker declares that dispatch should happen on a separate
	// worker process. This path is a deliberate, documented stub; the
	// Router logs a warning and skips it.
	ExecutionWorker ExecutionStrategy = "worker"
)

// Event is the unit of work routed through the system. Field tags match
// §3/§6's documented wire names, so DLQ envelopes and any external
// consumer see the spec's lowercase field names rather than Go's.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Source     string         `json:"source"`
	Data       any            `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Key returns the event's identity for deduplication error-map purposes:
// its ID when present, otherwise its Name. Two id-less events sharing a
// Name collide on this key; see DESIGN.md for why that is left as-is.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// Validate checks the invariants from the data model: Name and Source are
// non-empty, Data is present.
func (e Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("event: name is required")
	}
	if e.Source == "" {
		return fmt.Errorf("event: source is required")
	}
	if e.Data == nil {
		return fmt.Errorf("event: data is required")
	}
	return nil
}

type filterKind int

const (
	filterAll filterKind = iota
	filterNames
	filterPredicate
)

// EventFilter selects which event names a plugin is interested in. The
// zero value matches every event name, which is the "absent" case from
// the spec's matching rule.
type EventFilter struct {
	kind  filterKind
	names map[string]struct{}
	pred  func(name string) bool
}

// NamesFilter matches only the given event names.
func NamesFilter(names ...string) EventFilter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return EventFilter{kind: filterNames, names: set}
}

// PredicateFilter matches event names for which pred returns true.
func PredicateFilter(pred func(name string) bool) EventFilter {
	return EventFilter{kind: filterPredicate, pred: pred}
}

// Match reports whether the filter selects the given event name.
func (f EventFilter) Match(name string) bool {
	switch f.kind {
	case filterNames:
		_, ok := f.names[name]
		return ok
	case filterPredicate:
		return f.pred != nil && f.pred(name)
	default:
		return true
	}
}

// Metadata carries informational and dispatch-affecting descriptor data.
type Metadata struct {
	Version           string
	Description       string
	Owner             string
	ExecutionStrategy ExecutionStrategy
	DurationHint      time.Duration
}

// EffectiveExecutionStrategy returns the strategy that governs dispatch,
// defaulting an absent value to ExecutionInline.
func (m Metadata) EffectiveExecutionStrategy() ExecutionStrategy {
	if m.ExecutionStrategy == "" {
		return ExecutionInline
	}
	return m.ExecutionStrategy
}

// Logger is the write-only logging capability handed to plugins.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(err error, msg string, keysAndValues ...any)
}

// MetricsRecorder is the optional metrics capability handed to plugins.
type MetricsRecorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveDuration(name string, labels map[string]string, d time.Duration)
}

// HTTPCapability is the plugin-side HTTP convention from §4.3: Do is the
// synchronous path for sync-mode plugins; Fire is the detached,
// fire-and-forget path for async-mode plugins. The implementation in
// internal/httpclient makes a single attempt per Do call and does not retry.
type HTTPCapability interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
	Fire(req *http.Request)
}

// EmitFunc enqueues a new event back into the manager for asynchronous,
// detached dispatch. The caller never waits on it and never observes its
// errors.
type EmitFunc func(event Event)

// Context is the value passed to every plugin hook invocation.
type Context struct {
	Logger  Logger
	Config  map[string]any
	HTTP    HTTPCapability
	Metrics MetricsRecorder
	Emit    EmitFunc
}

// InitFunc runs once, before any dispatch.
type InitFunc func(ctx context.Context) error

// DestroyFunc runs once, during Manager.Destroy.
type DestroyFunc func(ctx context.Context) error

// HookFunc is the shape shared by OnEvent, OnReplay, and OnDLQ.
type HookFunc func(ctx context.Context, pctx Context, event Event) error

// ErrorFunc observes a hook's captured error.
type ErrorFunc func(ctx context.Context, pctx Context, err error, event Event)

// Plugin is a registered unit of behavior. Each hook is optional; absence
// is a first-class case rather than a reflection check, per the Design
// Notes' "optional method as polymorphic value" translation.
type Plugin struct {
	Name     string
	Mode     Mode
	Events   EventFilter
	Metadata Metadata

	Init    InitFunc
	Destroy DestroyFunc
	OnEvent HookFunc
	OnReplay HookFunc
	OnDLQ   HookFunc
	OnError ErrorFunc
}

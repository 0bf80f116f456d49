// Package plugintest provides utilities for testing plugin.Plugin
// descriptors, adapted from the teacher's EventSource test framework and
// retargeted from Name/Version/WatchEvents to plugin descriptors: a
// descriptor-shape check, a Manager-driven lifecycle check, event-name
// matching cases, and recording hooks with configurable OnEvent failures.
// It has no configuration or concurrency checks.
package plugintest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/eventrouter/internal/plugin"
)

// Framework bundles plugin-testing helpers bound to a *testing.T.
type Framework struct {
	t      *testing.T
	logger logr.Logger
}

// New creates a Framework with a discard logger, matching the teacher's
// test-time logging choice.
func New(t *testing.T) *Framework {
	return &Framework{t: t, logger: logr.Discard()}
}

// TestDescriptor verifies that a plugin descriptor satisfies the basic
// shape invariants from §3: a non-empty name, a valid mode.
func (f *Framework) TestDescriptor(p plugin.Plugin) {
	f.t.Helper()
	assert.NotEmpty(f.t, p.Name, "plugin name should not be empty")
	assert.Contains(f.t, []plugin.Mode{plugin.ModeAsync, plugin.ModeSync}, p.Mode, "plugin mode should be async or sync")
}

// TestLifecycle drives a single plugin through Register, Init, a single
// TriggerEvent, and Destroy, and asserts each step succeeds.
func (f *Framework) TestLifecycle(p plugin.Plugin, event plugin.Event) {
	f.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := plugin.NewManager(f.logger)
	require.NoError(f.t, m.Register(p))
	require.NoError(f.t, m.Init(ctx))

	err := m.TriggerEvent(ctx, event, nil)
	assert.NoError(f.t, err, "TriggerEvent itself should never return a per-plugin error")

	require.NoError(f.t, m.Destroy(ctx))
}

// MatchCase is one input to TestMatching.
type MatchCase struct {
	Name         string
	EventName    string
	PluginNames  []string
	ExpectMatch  bool
	ExpectReason string
}

// TestMatching asserts p.Events.Match behaves as expected for each case's
// event name, independent of any pluginNames restriction (which is the
// Manager's concern, not the filter's).
func (f *Framework) TestMatching(p plugin.Plugin, cases []MatchCase) {
	f.t.Helper()
	for _, tc := range cases {
		f.t.Run(tc.Name, func(t *testing.T) {
			got := p.Events.Match(tc.EventName)
			assert.Equal(t, tc.ExpectMatch, got, tc.ExpectReason)
		})
	}
}

// RecordingHooks builds a plugin.Plugin whose hooks append to shared,
// mutex-guarded slices, for assertions about invocation count and order.
type RecordingHooks struct {
	mu          sync.Mutex
	OnEventLog  []plugin.Event
	OnReplayLog []plugin.Event
	OnDLQLog    []plugin.Event
	OnErrorLog  []error
	FailOn      map[string]error // event.Key() -> error to return from OnEvent
}

// NewRecordingHooks creates an empty recorder.
func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{FailOn: make(map[string]error)}
}

// Plugin returns a plugin.Plugin descriptor wired to this recorder.
func (r *RecordingHooks) Plugin(name string, mode plugin.Mode, filter plugin.EventFilter) plugin.Plugin {
	return plugin.Plugin{
		Name:   name,
		Mode:   mode,
		Events: filter,
		OnEvent: func(_ context.Context, _ plugin.Context, event plugin.Event) error {
			r.mu.Lock()
			r.OnEventLog = append(r.OnEventLog, event)
			err := r.FailOn[event.Key()]
			r.mu.Unlock()
			return err
		},
		OnReplay: func(_ context.Context, _ plugin.Context, event plugin.Event) error {
			r.mu.Lock()
			r.OnReplayLog = append(r.OnReplayLog, event)
			r.mu.Unlock()
			return nil
		},
		OnDLQ: func(_ context.Context, _ plugin.Context, event plugin.Event) error {
			r.mu.Lock()
			r.OnDLQLog = append(r.OnDLQLog, event)
			r.mu.Unlock()
			return nil
		},
		OnError: func(_ context.Context, _ plugin.Context, err error, _ plugin.Event) {
			r.mu.Lock()
			r.OnErrorLog = append(r.OnErrorLog, err)
			r.mu.Unlock()
		},
	}
}

// EventCount returns the number of OnEvent invocations recorded so far.
func (r *RecordingHooks) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.OnEventLog)
}

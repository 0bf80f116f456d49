package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logr.Discard())
}

func TestRegisterDuplicateFails(t *testing.T) {
	m := testManager()
	p := Plugin{Name: "p1", Mode: ModeAsync}
	require.NoError(t, m.Register(p))
	err := m.Register(p)
	assert.Error(t, err)
}

func TestRegisterAllAbortsOnFirstCollision(t *testing.T) {
	m := testManager()
	p1 := Plugin{Name: "p1", Mode: ModeAsync}
	p2 := Plugin{Name: "p1", Mode: ModeSync}
	p3 := Plugin{Name: "p3", Mode: ModeSync}

	err := m.RegisterAll([]Plugin{p1, p2, p3})
	assert.Error(t, err)
	assert.ElementsMatch(t, []string{"p1"}, m.ListPlugins())
}

func TestInitRunsAllInitHooksConcurrently(t *testing.T) {
	m := testManager()
	var mu sync.Mutex
	called := map[string]bool{}

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("p%d", i)
		require.NoError(t, m.Register(Plugin{
			Name: name,
			Mode: ModeAsync,
			Init: func(ctx context.Context) error {
				mu.Lock()
				called[name] = true
				mu.Unlock()
				return nil
			},
		}))
	}

	require.NoError(t, m.Init(context.Background()))
	assert.Len(t, called, 3)
}

func TestInitFailurePropagates(t *testing.T) {
	m := testManager()
	require.NoError(t, m.Register(Plugin{
		Name: "bad",
		Mode: ModeAsync,
		Init: func(ctx context.Context) error { return errors.New("boom") },
	}))

	err := m.Init(context.Background())
	assert.Error(t, err)
}

func TestInitIsIdempotentWithWarning(t *testing.T) {
	m := testManager()
	initCount := 0
	require.NoError(t, m.Register(Plugin{
		Name: "p1",
		Mode: ModeAsync,
		Init: func(ctx context.Context) error { initCount++; return nil },
	}))

	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, 1, initCount)
}

func TestTriggerEventBeforeInitFails(t *testing.T) {
	m := testManager()
	require.NoError(t, m.Register(Plugin{Name: "p1", Mode: ModeAsync}))
	err := m.TriggerEvent(context.Background(), Event{Name: "x"}, nil)
	assert.Error(t, err)
}

func TestTriggerEventDispatchesToMatchingPluginsOnly(t *testing.T) {
	m := testManager()
	var mu sync.Mutex
	var calledA, calledB bool

	require.NoError(t, m.Register(Plugin{
		Name:   "a",
		Mode:   ModeAsync,
		Events: NamesFilter("order.created"),
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			mu.Lock()
			calledA = true
			mu.Unlock()
			return nil
		},
	}))
	require.NoError(t, m.Register(Plugin{
		Name:   "b",
		Mode:   ModeAsync,
		Events: NamesFilter("order.shipped"),
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			mu.Lock()
			calledB = true
			mu.Unlock()
			return nil
		},
	}))
	require.NoError(t, m.Init(context.Background()))

	err := m.TriggerEvent(context.Background(), Event{Name: "order.created"}, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, calledA)
	assert.False(t, calledB)
}

func TestTriggerEventIsolatesPluginErrors(t *testing.T) {
	m := testManager()
	var calledOther bool

	require.NoError(t, m.Register(Plugin{
		Name: "failing",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			return errors.New("failure")
		},
	}))
	require.NoError(t, m.Register(Plugin{
		Name: "other",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			calledOther = true
			return nil
		},
	}))
	require.NoError(t, m.Init(context.Background()))

	err := m.TriggerEvent(context.Background(), Event{Name: "x"}, nil)
	assert.NoError(t, err, "per-plugin errors never propagate out of TriggerEvent")
	assert.True(t, calledOther)
}

func TestTriggerEventRoutesToOnError(t *testing.T) {
	m := testManager()
	var gotErr error
	var mu sync.Mutex

	require.NoError(t, m.Register(Plugin{
		Name: "failing",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			return errors.New("boom")
		},
		OnError: func(ctx context.Context, pctx Context, err error, e Event) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
		},
	}))
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.TriggerEvent(context.Background(), Event{Name: "x"}, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "boom")
}

func TestTriggerReplayFallsBackToOnEvent(t *testing.T) {
	m := testManager()
	var onEventCalled bool

	require.NoError(t, m.Register(Plugin{
		Name: "p1",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			onEventCalled = true
			return nil
		},
	}))
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.TriggerReplay(context.Background(), Event{Name: "x"}, nil))

	assert.True(t, onEventCalled)
}

func TestTriggerReplayPrefersOnReplayWhenPresent(t *testing.T) {
	m := testManager()
	var onReplayCalled, onEventCalled bool

	require.NoError(t, m.Register(Plugin{
		Name: "p1",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			onEventCalled = true
			return nil
		},
		OnReplay: func(ctx context.Context, pctx Context, e Event) error {
			onReplayCalled = true
			return nil
		},
	}))
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.TriggerReplay(context.Background(), Event{Name: "x"}, nil))

	assert.True(t, onReplayCalled)
	assert.False(t, onEventCalled)
}

func TestTriggerDLQHasNoFallback(t *testing.T) {
	m := testManager()
	var onEventCalled bool

	require.NoError(t, m.Register(Plugin{
		Name: "p1",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			onEventCalled = true
			return nil
		},
	}))
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.TriggerDLQ(context.Background(), Event{Name: "x"}, nil))

	assert.False(t, onEventCalled, "OnDLQ must not fall back to OnEvent")
}

func TestEmitDispatchesDetached(t *testing.T) {
	m := testManager()
	done := make(chan struct{})

	require.NoError(t, m.Register(Plugin{
		Name: "emitter",
		Mode: ModeAsync,
		OnEvent: func(ctx context.Context, pctx Context, e Event) error {
			if e.Name == "emitted" {
				close(done)
				return nil
			}
			pctx.Emit(Event{Name: "emitted"})
			return nil
		},
	}))
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.TriggerEvent(context.Background(), Event{Name: "root"}, nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emitted event was never dispatched")
	}
}

func TestDestroyClearsRegistryAndNeverFails(t *testing.T) {
	m := testManager()
	require.NoError(t, m.Register(Plugin{
		Name:    "p1",
		Mode:    ModeAsync,
		Destroy: func(ctx context.Context) error { return errors.New("destroy failed") },
	}))
	require.NoError(t, m.Init(context.Background()))

	err := m.Destroy(context.Background())
	assert.NoError(t, err, "Destroy never fails, even if a plugin's Destroy hook does")
	assert.Empty(t, m.ListPlugins())
}

func TestGetPlugin(t *testing.T) {
	m := testManager()
	p := Plugin{Name: "p1", Mode: ModeAsync}
	require.NoError(t, m.Register(p))

	got, ok := m.GetPlugin("p1")
	require.True(t, ok)
	assert.Equal(t, "p1", got.Name)

	_, ok = m.GetPlugin("missing")
	assert.False(t, ok)
}

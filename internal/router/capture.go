package router

import (
	"context"
	"sync"

	"github.com/hookline/eventrouter/internal/plugin"
)

// capture implements plugin.ErrorSink, recording the first hook error
// reported during a single dispatch call. The Router treats "first
// captured error" as the event's representative failure, per §3's error
// map definition.
type capture struct {
	mu  sync.Mutex
	err error
}

func newCapture() *capture {
	return &capture{}
}

func withCapture(ctx context.Context, c *capture) context.Context {
	return plugin.WithErrorSink(ctx, c)
}

func (c *capture) Capture(pluginName string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && err != nil {
		c.err = err
	}
}

func (c *capture) firstError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

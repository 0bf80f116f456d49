// Package httpclient implements the plugin-side HTTP capability (§4.3):
// Do is the synchronous path used by sync-mode plugins, Fire is the
// detached fire-and-forget path used by async-mode plugins. The retrying
// client's internals are explicitly out of scope for this repo (see
// DESIGN.md); this is a thin, context-respecting wrapper over
// net/http.Client, not a reimplementation of one.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/hookline/eventrouter/internal/plugin"
)

// Client implements plugin.HTTPCapability.
type Client struct {
	inner  *http.Client
	logger logr.Logger
}

// New creates a Client with the given timeout applied to every Do call.
func New(logger logr.Logger, timeout time.Duration) *Client {
	return &Client{
		inner:  &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Do performs req synchronously and returns its result.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.inner.Do(req.WithContext(ctx))
}

// Fire performs req on a detached goroutine with its own background
// context. The caller never observes the outcome; failures are logged.
func (c *Client) Fire(req *http.Request) {
	go func() {
		resp, err := c.inner.Do(req.WithContext(context.Background()))
		if err != nil {
			c.logger.Error(err, "Fire-and-forget request failed", "url", req.URL.String())
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			c.logger.Info("Fire-and-forget request returned an error status",
				"url", req.URL.String(), "status", resp.StatusCode)
		}
	}()
}

var _ plugin.HTTPCapability = (*Client)(nil)

// Package memdlq implements router.DLQSink in memory, in the same
// logr-logged, mutex-guarded in-memory recorder idiom as memstore.Store.
// It has no teacher analogue — the teacher has no dead-letter concept —
// so it is a small new type satisfying the spec's DLQSink contract.
package memdlq

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/hookline/eventrouter/internal/router"
)

// Sink is an in-memory router.DLQSink, suitable as a test double.
type Sink struct {
	logger logr.Logger
	mu     sync.Mutex
	sent   map[string][]router.DLQEntry
}

// New creates an empty Sink.
func New(logger logr.Logger) *Sink {
	return &Sink{
		logger: logger,
		sent:   make(map[string][]router.DLQEntry),
	}
}

// SendBatch implements router.DLQSink.
func (s *Sink) SendBatch(url string, entries []router.DLQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[url] = append(s.sent[url], entries...)
	s.logger.Info("Sent batch to DLQ", "url", url, "count", len(entries))
	return nil
}

// Entries returns every entry sent to url, for test assertions.
func (s *Sink) Entries(url string) []router.DLQEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]router.DLQEntry, len(s.sent[url]))
	copy(out, s.sent[url])
	return out
}

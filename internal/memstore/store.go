// Package memstore implements router.Store in memory, in the same
// mutex-guarded map idiom the teacher uses for tracking active events,
// retargeted from per-hook suppression windows to a per-table record set
// keyed by event ID.
package memstore

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/hookline/eventrouter/internal/router"
)

// Store is an in-memory router.Store, suitable as a test double or a
// small-scale reference implementation.
type Store struct {
	logger logr.Logger
	mu     sync.RWMutex
	tables map[string]map[string]router.StoredEvent
}

// New creates an empty Store.
func New(logger logr.Logger) *Store {
	return &Store{
		logger: logger,
		tables: make(map[string]map[string]router.StoredEvent),
	}
}

// BatchCheckDuplicates implements router.Store.
func (s *Store) BatchCheckDuplicates(tableName string, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dup := make(map[string]struct{})
	table, ok := s.tables[tableName]
	if !ok {
		return dup, nil
	}
	for _, id := range ids {
		if _, exists := table[id]; exists {
			dup[id] = struct{}{}
		}
	}
	return dup, nil
}

// StoreEvent implements router.Store.
func (s *Store) StoreEvent(tableName string, rec router.StoredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[tableName]
	if !ok {
		table = make(map[string]router.StoredEvent)
		s.tables[tableName] = table
	}
	table[rec.EventID] = rec
	s.logger.V(1).Info("Stored event", "table", tableName, "eventId", rec.EventID, "status", rec.Status)
	return nil
}

// Get returns the stored record for id in tableName, for test assertions.
func (s *Store) Get(tableName, id string) (router.StoredEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[tableName]
	if !ok {
		return router.StoredEvent{}, false
	}
	rec, ok := table[id]
	return rec, ok
}

// Count returns the number of records stored in tableName.
func (s *Store) Count(tableName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[tableName])
}

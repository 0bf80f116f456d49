// Package router implements the Event Router: the batch processor that
// drives deduplication, plugin-mode grouping, phased dispatch,
// success/failure partitioning, durable storage, and DLQ emission.
// Grounded on internal/pipeline/processor.go and plugin_processor.go's
// "match, dedup, dispatch, record, continue on per-item error" shape,
// generalized from a single Kubernetes-hook match loop to the three-way
// mode/strategy grouping and strictly phased dispatch this package
// implements.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/hookline/eventrouter/internal/config"
	"github.com/hookline/eventrouter/internal/plugin"
	"github.com/hookline/eventrouter/internal/routererr"
)

// Router orchestrates one batch at a time through the seven-step pipeline.
type Router struct {
	manager *plugin.Manager
	store   Store
	dlq     DLQSink
	logger  logr.Logger
	config  config.RouterConfig
}

// New creates a Router. dlq may be nil if no DLQ is configured, in which
// case failed events are logged and dropped.
func New(manager *plugin.Manager, store Store, dlq DLQSink, logger logr.Logger, cfg config.RouterConfig) *Router {
	return &Router{
		manager: manager,
		store:   store,
		dlq:     dlq,
		logger:  logger,
		config:  cfg,
	}
}

// group pairs an event with the names of plugins that should receive it
// in a given dispatch phase.
type group struct {
	event   plugin.Event
	plugins []string
}

// errorMap is the per-phase mapping from event key to the first captured
// error, per §4.2.
type errorMap map[string]error

func mergeErrorMaps(dst errorMap, src errorMap) {
	for k, v := range src {
		dst[k] = v
	}
}

// ProcessBatch runs the full seven-step pipeline over events. It returns
// a non-nil error only for CriticalBatchError conditions; individual
// event failures are reflected through DLQ emission, never through this
// return value.
func (r *Router) ProcessBatch(ctx context.Context, events []plugin.Event) error {
	start := time.Now()
	r.logger.Info("Processing batch of N events", "count", len(events))

	if len(events) == 0 {
		r.logger.Info("Empty batch, nothing to do")
		return nil
	}

	unique, err := r.deduplicate(ctx, events)
	if err != nil {
		return routererr.CriticalBatchError(fmt.Errorf("deduplication: %w", err))
	}
	if len(unique) == 0 {
		r.logger.Info("All events are duplicates, skipping processing")
		return nil
	}
	r.logger.Info("After deduplication: M unique events", "unique", len(unique), "dropped", len(events)-len(unique))

	asyncGroups, syncInlineGroups, syncWorkerGroups := r.group(unique)

	if len(syncWorkerGroups) > 0 {
		total := 0
		for _, g := range syncWorkerGroups {
			total += len(g.plugins)
		}
		r.logger.Info("Worker invocation not implemented; N invocations skipped", "skipped", total)
	}

	asyncErrors, asyncInvocations := r.dispatchPhase(ctx, asyncGroups)
	r.logger.Info("Executed K async plugin invocations across G events", "invocations", asyncInvocations, "events", len(asyncGroups))

	syncErrors, _ := r.dispatchPhase(ctx, syncInlineGroups)

	failed := make(errorMap)
	mergeErrorMaps(failed, asyncErrors)
	mergeErrorMaps(failed, syncErrors)

	succeeded := make([]plugin.Event, 0, len(unique))
	var failedEvents []plugin.Event
	for _, e := range unique {
		if _, isFailed := failed[e.Key()]; isFailed {
			failedEvents = append(failedEvents, e)
			continue
		}
		succeeded = append(succeeded, e)
	}

	stored, storeAttempts := r.storeSucceeded(ctx, succeeded)
	if storeAttempts > 0 {
		if stored == storeAttempts {
			r.logger.Info("Stored S events in <store>", "stored", stored, "of", storeAttempts)
		} else {
			r.logger.Info("Failed to store F/S events in <store>", "failed", storeAttempts-stored, "of", storeAttempts)
		}
	}

	r.emitDLQ(failedEvents, failed)

	r.logger.Info("Batch completed: S succeeded, F failed in D ms",
		"succeeded", len(succeeded), "failed", len(failedEvents), "durationMs", time.Since(start).Milliseconds())

	return nil
}

// deduplicate implements Step 1.
func (r *Router) deduplicate(ctx context.Context, events []plugin.Event) ([]plugin.Event, error) {
	_ = ctx
	var withID []plugin.Event
	var withoutID []plugin.Event
	ids := make([]string, 0, len(events))

	for _, e := range events {
		if e.ID != "" {
			withID = append(withID, e)
			ids = append(ids, e.ID)
		} else {
			withoutID = append(withoutID, e)
		}
	}

	if len(withID) == 0 {
		return events, nil
	}

	dup, err := r.store.BatchCheckDuplicates(r.config.EventsTableName, ids)
	if err != nil {
		r.logger.Error(routererr.DedupError(err), "Batch deduplication failed, falling back…")
		return events, nil
	}

	if len(dup) > 0 {
		r.logger.Info("Found N duplicate events", "duplicates", len(dup))
	}

	unique := make([]plugin.Event, 0, len(events))
	for _, e := range withID {
		if _, isDup := dup[e.ID]; !isDup {
			unique = append(unique, e)
		}
	}
	unique = append(unique, withoutID...)
	return unique, nil
}

// group implements Step 2.
func (r *Router) group(events []plugin.Event) (async, syncInline, syncWorker []group) {
	plugins := r.manager.ListPlugins()

	for _, e := range events {
		var asyncNames, inlineNames, workerNames []string
		for _, name := range plugins {
			p, ok := r.manager.GetPlugin(name)
			if !ok || !p.Events.Match(e.Name) {
				continue
			}
			switch p.Mode {
			case plugin.ModeAsync:
				asyncNames = append(asyncNames, p.Name)
			case plugin.ModeSync:
				switch p.Metadata.EffectiveExecutionStrategy() {
				case plugin.ExecutionWorker:
					workerNames = append(workerNames, p.Name)
				default:
					inlineNames = append(inlineNames, p.Name)
				}
			}
		}
		if len(asyncNames) > 0 {
			async = append(async, group{event: e, plugins: asyncNames})
		}
		if len(inlineNames) > 0 {
			syncInline = append(syncInline, group{event: e, plugins: inlineNames})
		}
		if len(workerNames) > 0 {
			syncWorker = append(syncWorker, group{event: e, plugins: workerNames})
		}
	}
	return async, syncInline, syncWorker
}

// dispatchPhase dispatches every group in the phase concurrently, joins,
// and returns the merged error map keyed by event.Key(), per Steps 3/4.
// Manager.TriggerEvent never returns per-plugin errors directly, so each
// call is made with a context carrying a capture sink (see capture.go);
// the manager reports every hook failure to it alongside its own
// logging and OnError routing.
func (r *Router) dispatchPhase(ctx context.Context, groups []group) (errorMap, int) {
	merged := make(errorMap)
	var mu sync.Mutex
	invocations := 0

	g := new(errgroup.Group)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			capture := newCapture()
			ctxWithCapture := withCapture(ctx, capture)
			_ = r.manager.TriggerEvent(ctxWithCapture, grp.event, grp.plugins)
			if err := capture.firstError(); err != nil {
				mu.Lock()
				merged[grp.event.Key()] = err
				mu.Unlock()
			}
			mu.Lock()
			invocations += len(grp.plugins)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return merged, invocations
}

// storeSucceeded implements Step 6.
func (r *Router) storeSucceeded(ctx context.Context, succeeded []plugin.Event) (stored int, attempted int) {
	_ = ctx
	var withID []plugin.Event
	for _, e := range succeeded {
		if e.ID != "" {
			withID = append(withID, e)
		}
	}
	if len(withID) == 0 {
		return 0, 0
	}

	var mu sync.Mutex
	okCount := 0
	g := new(errgroup.Group)
	now := time.Now().UTC()

	for _, e := range withID {
		e := e
		g.Go(func() error {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = now
			}
			rec := StoredEvent{
				EventID:     e.ID,
				Timestamp:   ts,
				EventName:   e.Name,
				Source:      e.Source,
				Data:        e.Data,
				Status:      StatusProcessed,
				ProcessedAt: now,
				RetryCount:  0,
				Attributes:  e.Attributes,
				TTL:         ttl(r.config.TTLDays, now),
			}
			if err := r.store.StoreEvent(r.config.EventsTableName, rec); err != nil {
				r.logger.Error(routererr.StoreError(err), "Failed to store event", "eventId", e.ID)
				return nil
			}
			mu.Lock()
			okCount++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return okCount, len(withID)
}

// ttl computes the absolute epoch-seconds expiry, or nil if disabled.
func ttl(ttlDays int, now time.Time) *int64 {
	if ttlDays <= 0 {
		return nil
	}
	v := now.Unix() + int64(ttlDays)*86400
	return &v
}

// dlqEnvelope is the DLQ envelope format from §4.2 Step 7.
type dlqEnvelope struct {
	Event     plugin.Event  `json:"event"`
	Error     dlqErrorField `json:"error"`
	Timestamp string        `json:"timestamp"`
}

type dlqErrorField struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// emitDLQ implements Step 7.
func (r *Router) emitDLQ(failed []plugin.Event, errs errorMap) {
	if len(failed) == 0 {
		return
	}
	if r.config.DLQURL == "" || r.dlq == nil {
		r.logger.Info("N events failed but no DLQ configured. Events lost.", "count", len(failed))
		return
	}

	entries := make([]DLQEntry, 0, len(failed))
	now := time.Now().UTC().Format(time.RFC3339)
	for i, e := range failed {
		msg := "Unknown error"
		if err, ok := errs[e.Key()]; ok && err != nil {
			msg = err.Error()
		}
		envelope := dlqEnvelope{
			Event:     e,
			Error:     dlqErrorField{Message: msg},
			Timestamp: now,
		}
		body, err := json.Marshal(envelope)
		if err != nil {
			r.logger.Error(routererr.DlqError(err), "Failed to serialize DLQ envelope", "eventKey", e.Key())
			continue
		}
		entries = append(entries, DLQEntry{ID: strconv.Itoa(i), MessageBody: string(body)})
	}

	if err := r.dlq.SendBatch(r.config.DLQURL, entries); err != nil {
		r.logger.Error(routererr.DlqError(err), "Failed to send batch to DLQ")
		return
	}
	r.logger.Info("Sent F failed events to DLQ", "count", len(entries))
}

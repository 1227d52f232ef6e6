package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

var ErrInvalidEvent = errors.New("pipeline: event has no id or kind")

// EventBus is the non-blocking entry point of the export path. Control-plane
// code emits into it; RunJournalPipeline drains it.
type EventBus struct {
	ch  chan *domain.Event
	obs ports.Observability
}

func NewEventBus(capacity int, obs ports.Observability) *EventBus {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBus{ch: make(chan *domain.Event, capacity), obs: obs}
}

// Emit drops the event when the bus is full.
func (b *EventBus) Emit(e *domain.Event) {
	select {
	case b.ch <- e:
	default:
		b.obs.IncCounter(ports.MetricEventsDropped, 1)
		b.obs.LogWarn("event_bus_full_drop", ports.F("kind", e.Kind))
	}
}

func (b *EventBus) Events() <-chan *domain.Event { return b.ch }

// RunJournalPipeline appends every emitted event to the journal and queues it
// for export. A non-zero resume is the replay backlog left by ReplayJournal;
// it is queued before any new event. If the backlog cannot be finished, new
// events are only journaled so the export never commits past it. On
// cancellation it journals whatever is still buffered and returns.
func RunJournalPipeline(ctx context.Context, events <-chan *domain.Event, j ports.Journal, q ports.EventQueue, resume ports.JournalEntryID, pol ports.Policy, obs ports.Observability) {
	exporting := drainBacklog(ctx, j, q, resume, pol, obs)

	handle := func(e *domain.Event) {
		if !waitForJournalCapacity(ctx, j, pol, obs) {
			obs.IncCounter(ports.MetricEventsDropped, 1)
			return
		}
		id, err := j.Append(e)
		if err != nil {
			obs.LogCritical("journal_append_failed", err, ports.F("kind", e.Kind))
			return
		}
		if !exporting {
			return
		}
		if !enqueueWithPolicy(ctx, q, id, e, pol, obs) {
			obs.IncCounter(ports.MetricEventsDropped, 1)
		}
	}

	for {
		select {
		case e := <-events:
			handle(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-events:
					handle(e)
				default:
					return
				}
			}
		}
	}
}

func waitForJournalCapacity(ctx context.Context, j ports.Journal, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxJournalSizeBytes <= 0 {
		return true
	}
	sleep := idleSleep(pol)

	for {
		stats := j.Stats()
		if stats.SizeBytes < pol.MaxJournalSizeBytes {
			return true
		}

		switch pol.OnJournalFull {
		case "block":
			if ctx.Err() != nil {
				return false
			}
			time.Sleep(sleep)
		case "drop":
			obs.LogError("journal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxJournalSizeBytes))
			return false
		default:
			obs.LogError("journal_policy_invalid", fmt.Errorf("policy=%s", pol.OnJournalFull))
			return false
		}
	}
}

func enqueueWithPolicy(ctx context.Context, q ports.EventQueue, id ports.JournalEntryID, e *domain.Event, pol ports.Policy, obs ports.Observability) bool {
	sleep := idleSleep(pol)

	for {
		if ok := q.Enqueue(id, e); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if ctx.Err() != nil {
				return false
			}
			time.Sleep(sleep)
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

// RunExportPipeline writes queued events to every sink and commits the journal
// once all sinks accepted a batch. A failed batch is retried until it succeeds
// or ctx is cancelled; an abandoned batch stays uncommitted in the journal and
// is replayed on the next start. On cancellation the queue is flushed once
// more before returning.
func RunExportPipeline(ctx context.Context, j ports.Journal, q ports.EventQueue, sinks []ports.EventSink, pol ports.Policy, obs ports.Observability) {
	for {
		if ctx.Err() != nil {
			for {
				had, err := exportBatch(ctx, j, q, sinks, pol, obs)
				if !had || err != nil {
					return
				}
			}
		}
		had, err := exportBatch(ctx, j, q, sinks, pol, obs)
		if err != nil {
			return
		}
		if had {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(idleSleep(pol)):
		}
	}
}

// exportBatch handles one batch and reports whether the queue had anything.
func exportBatch(ctx context.Context, j ports.Journal, q ports.EventQueue, sinks []ports.EventSink, pol ports.Policy, obs ports.Observability) (bool, error) {
	batch := q.DequeueBatch(pol.MaxBatchSize)
	if len(batch) == 0 {
		return false, nil
	}

	var (
		out   = make([]*domain.Event, 0, len(batch))
		maxID ports.JournalEntryID
	)
	for _, item := range batch {
		if item.ID > maxID {
			maxID = item.ID
		}
		if item.Event == nil || item.Event.ID == "" || item.Event.Kind == "" {
			obs.RecordDLQ(item.ID, item.Event, ErrInvalidEvent)
			continue
		}
		out = append(out, item.Event)
	}

	if len(out) > 0 {
		if err := writeAll(ctx, sinks, out, pol, obs); err != nil {
			return true, err
		}
		obs.IncCounter(ports.MetricEventsExported, float64(len(out)))
	}

	if err := j.Commit(maxID); err != nil {
		obs.LogError("journal_commit_failed", err)
		return true, nil
	}
	compact(j, pol, obs)
	return true, nil
}

func writeAll(ctx context.Context, sinks []ports.EventSink, events []*domain.Event, pol ports.Policy, obs ports.Observability) error {
	for {
		err := writeSinks(sinks, events, obs)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			obs.LogWarn("export_abandoned", ports.F("events", len(events)))
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(idleSleep(pol)):
		}
	}
}

func writeSinks(sinks []ports.EventSink, events []*domain.Event, obs ports.Observability) error {
	for _, s := range sinks {
		start := time.Now()
		if err := s.WriteBatch(events); err != nil {
			obs.LogError("sink_write_failed", err, ports.F("sink", s.Name()), ports.F("events", len(events)))
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
		obs.ObserveLatency(ports.MetricExportLatency, time.Since(start).Seconds())
	}
	return nil
}

// compact drops exported entries once the journal reaches half its limit.
func compact(j ports.Journal, pol ports.Policy, obs ports.Observability) {
	if pol.MaxJournalSizeBytes <= 0 {
		return
	}
	if j.Stats().SizeBytes < pol.MaxJournalSizeBytes/2 {
		return
	}
	if err := j.TruncateCommitted(); err != nil {
		obs.LogError("journal_compaction_failed", err)
		return
	}
	obs.LogInfo("journal_compacted", ports.F("size_bytes", j.Stats().SizeBytes))
}

var errReplayQueueFull = errors.New("pipeline: queue full")

// ReplayJournal queues uncommitted journal entries, oldest first, until the
// queue is full. It runs before the pipelines start so events from a previous
// run are exported first. When the backlog does not fit, resume is the first
// entry left behind; RunJournalPipeline queues the rest once the export
// pipeline has made room.
func ReplayJournal(j ports.Journal, q ports.EventQueue, obs ports.Observability) (n int, resume ports.JournalEntryID, err error) {
	stats := j.Stats()
	if stats.LatestAppended < stats.OldestUncommitted {
		return 0, 0, nil
	}
	err = j.Iterate(stats.OldestUncommitted, func(id ports.JournalEntryID, e *domain.Event) error {
		if !q.Enqueue(id, e) {
			resume = id
			return errReplayQueueFull
		}
		n++
		return nil
	})
	if errors.Is(err, errReplayQueueFull) {
		err = nil
		obs.LogWarn("journal_replay_deferred",
			ports.F("queued", n),
			ports.F("resume_from", resume),
			ports.F("latest", stats.LatestAppended))
	}
	if n > 0 {
		obs.LogInfo("journal_replayed", ports.F("events", n))
	}
	return n, resume, err
}

// drainBacklog queues journal entries from resume onwards, waiting for queue
// space. It reports false if ctx was cancelled first.
func drainBacklog(ctx context.Context, j ports.Journal, q ports.EventQueue, resume ports.JournalEntryID, pol ports.Policy, obs ports.Observability) bool {
	if resume == 0 {
		return true
	}
	sleep := idleSleep(pol)
	n := 0
	err := j.Iterate(resume, func(id ports.JournalEntryID, e *domain.Event) error {
		for !q.Enqueue(id, e) {
			if err := ctx.Err(); err != nil {
				return err
			}
			time.Sleep(sleep)
		}
		n++
		return nil
	})
	switch {
	case ctx.Err() != nil:
		obs.LogWarn("journal_backlog_incomplete", ports.F("queued", n))
		return false
	case err != nil:
		obs.LogError("journal_backlog_failed", err, ports.F("queued", n))
		return false
	}
	obs.LogInfo("journal_backlog_drained", ports.F("events", n))
	return true
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}

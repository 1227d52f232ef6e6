package aegissdn

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned by a channel sink's WriteBatch once its
// close function has run. The export pipeline treats it like any sink failure
// and retries the batch until shutdown.
var ErrChannelSinkClosed = errors.New("aegissdn: channel sink closed")

// EventBatchSink receives exported decision events in journal order. A batch
// that fails is offered again, to every sink, so handlers may see an event
// more than once and should key on Event.ID.
type EventBatchSink func([]Event) error

// NewCallbackSink wraps fn as a Sink. fn gets value copies of the queued
// events with nil entries removed, so it may keep or modify them freely.
// Empty batches are not delivered.
func NewCallbackSink(name string, fn EventBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink delivers each batch, copied like NewCallbackSink does, on the
// returned channel. A reader that falls behind blocks the export pipeline, and
// the journal and queue absorb new events under the configured policy.
//
// The close function may be called more than once and concurrently with
// writes. A write blocked on a full channel returns ErrChannelSinkClosed, and
// the channel itself is closed only after no write is in flight.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Event, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Event, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   EventBatchSink
}

func (s *callbackSink) WriteBatch(events []*Event) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(events) == 0 {
		return nil
	}
	return s.fn(copyBatch(events))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Event
	closed chan struct{}
	mu     sync.RWMutex
	once   sync.Once
}

func (s *channelSink) WriteBatch(events []*Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(events) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- copyBatch(events):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

// copyBatch hands out values so callers cannot alias queued events.
func copyBatch(events []*Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

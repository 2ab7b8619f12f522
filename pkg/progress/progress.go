// Package progress is the event bus workers publish to while the
// Executor runs a plan. Workers never touch the UI directly (Design
// Note): they send Events to a Bus, and zero or more Sinks drain it —
// a log sink via zerolog is always registered, an HTTP status sink is
// optional and gated behind --status-addr.
package progress

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Phase is the lifecycle stage an Event reports.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseSkipped   Phase = "skipped"
)

// Event is one unit of progress for a single plan action.
type Event struct {
	Path      string
	Phase     Phase
	BytesDone int64
	Total     int64
	Message   string
}

// Sink consumes Events. Implementations must not block the bus for long;
// slow sinks should buffer internally.
type Sink interface {
	Publish(Event)
}

// Bus fans Events out to every registered Sink. The channel is bounded
// so a stalled sink applies backpressure to the Executor rather than
// letting memory grow unbounded (mirrors the scanner's bounded-channel
// backpressure contract).
type Bus struct {
	events chan Event
	sinks  []Sink

	mu   sync.Mutex
	done chan struct{}
}

// New returns a Bus with the given channel capacity and registered
// sinks. A zerolog-backed LogSink should always be among them.
func New(capacity int, sinks ...Sink) *Bus {
	return &Bus{
		events: make(chan Event, capacity),
		sinks:  sinks,
		done:   make(chan struct{}),
	}
}

// Publish enqueues an Event, blocking if the bus is full.
func (b *Bus) Publish(ctx context.Context, e Event) {
	select {
	case b.events <- e:
	case <-ctx.Done():
	}
}

// Run drains the bus until ctx is canceled and the channel is closed via
// Close. It fans every Event out to every registered sink synchronously,
// in registration order.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case e, ok := <-b.events:
			if !ok {
				return
			}

			b.mu.Lock()
			for _, s := range b.sinks {
				s.Publish(e)
			}
			b.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Close signals Run to stop after draining any already-queued Events.
func (b *Bus) Close() {
	close(b.events)
	<-b.done
}

// AddSink registers an additional sink at runtime, e.g. when an HTTP
// status endpoint's handler attaches a ring-buffer sink on first use.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks = append(b.sinks, s)
}

// LogSink publishes every Event as a structured zerolog line. Always
// registered regardless of --status-addr, since the headless consumer of
// the bus is an ambient concern, not a UI feature.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Publish(e Event) {
	ev := s.Logger.Info().
		Str("path", e.Path).
		Str("phase", string(e.Phase)).
		Int64("bytes_done", e.BytesDone).
		Int64("total", e.Total)

	if e.Message != "" {
		ev = ev.Str("message", e.Message)
	}

	ev.Msg("progress")
}

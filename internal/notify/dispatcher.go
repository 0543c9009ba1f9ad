// Package notify fans routing and escalation events out to notification
// channels (staff alert thread, email). The dispatcher decouples producers
// from slow channels with a bounded queue: publishing never blocks, and when
// the queue is full the oldest pending event is dropped and counted.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Event kinds.
const (
	KindTicketCreated = "ticket_created"
	KindTicketClosed  = "ticket_closed"
	KindEscalation    = "escalation"
	KindFeedback      = "feedback"
)

// Event is a notification unit handed to every channel.
type Event struct {
	Kind     string
	TicketID uint
	UserID   int64
	Subject  string
	Body     string
	// Waiting is set on escalation events: how long the user has waited.
	Waiting time.Duration
	At      time.Time
}

// Channel delivers one event. Implementations must be safe for use from the
// dispatcher's single worker goroutine.
type Channel interface {
	Name() string
	Notify(ctx context.Context, evt Event) error
}

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "support",
	Name:      "notify_dropped_events_total",
	Help:      "Notification events dropped because the queue was full.",
})

// Dispatcher owns the bounded event queue and the delivery worker.
type Dispatcher struct {
	ch       chan Event
	channels []Channel
	dropped  atomic.Uint64

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity and starts
// its worker. Capacity below 1 is raised to 1.
func NewDispatcher(capacity int, channels ...Channel) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	d := &Dispatcher{
		ch:       make(chan Event, capacity),
		channels: channels,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues an event without blocking. When the queue is full the
// oldest pending event is evicted to make room; the return value reports
// whether evt itself was accepted.
func (d *Dispatcher) Publish(evt Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	for {
		select {
		case d.ch <- evt:
			return true
		default:
		}
		select {
		case old := <-d.ch:
			d.dropped.Add(1)
			droppedEvents.Inc()
			log.Warn().Str("kind", old.Kind).Uint("ticket_id", old.TicketID).
				Msg("notification queue full, oldest event dropped")
		default:
		}
	}
}

// Dropped reports how many events were evicted so far.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close stops accepting events, drains the queue, and waits for the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for evt := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		for _, c := range d.channels {
			if err := c.Notify(ctx, evt); err != nil {
				log.Warn().Err(err).Str("channel", c.Name()).Str("kind", evt.Kind).
					Uint("ticket_id", evt.TicketID).Msg("notification channel failed")
			}
		}
		cancel()
	}
}

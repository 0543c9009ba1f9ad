// Package escalation watches open tickets for overdue staff responses. The
// monitor periodically scans the store, flags tickets whose user has been
// waiting past the urgency threshold, and publishes escalation events with a
// per-ticket cool-down so staff are nudged, not spammed.
package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/notify"
	"github.com/eventdesk/go-support-backend/internal/repo"
)

var (
	openTickets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "support",
		Name:      "open_tickets",
		Help:      "Tickets currently open.",
	})
	urgentTickets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "support",
		Name:      "urgent_tickets",
		Help:      "Open tickets past the urgency threshold.",
	})
)

// Publisher is the escalation event sink.
type Publisher interface {
	Publish(evt notify.Event) bool
}

// Snapshot is the monitor's view after its latest sweep.
type Snapshot struct {
	Open      int       `json:"open"`
	Urgent    int       `json:"urgent"`
	SweptAt   time.Time `json:"swept_at"`
	Escalated int       `json:"escalated"`
}

// Monitor runs the periodic urgency sweep.
type Monitor struct {
	DB     *gorm.DB
	Events Publisher

	// Interval between sweeps.
	Interval time.Duration
	// UrgentThreshold is how long a user may wait before a ticket is urgent.
	UrgentThreshold time.Duration
	// CoolDown suppresses repeat escalations for the same ticket.
	CoolDown time.Duration

	// Now is injectable for tests.
	Now func() time.Time

	mu        sync.Mutex
	lastAlert map[uint]time.Time
	snap      Snapshot
}

// NewMonitor constructs a monitor with production defaults.
func NewMonitor(db *gorm.DB, events Publisher) *Monitor {
	return &Monitor{
		DB:              db,
		Events:          events,
		Interval:        time.Minute,
		UrgentThreshold: 2 * time.Hour,
		CoolDown:        time.Hour,
		Now:             func() time.Time { return time.Now().UTC() },
		lastAlert:       make(map[uint]time.Time),
	}
}

// Run sweeps immediately and then on every Interval tick until the context
// is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if err := m.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("escalation sweep failed")
	}
	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("escalation sweep failed")
			}
		}
	}
}

// Sweep performs one scan over open tickets and publishes escalation events
// for newly urgent tickets outside their cool-down window.
func (m *Monitor) Sweep(ctx context.Context) error {
	now := m.Now()
	tickets, err := repo.ListOpenTickets(ctx, m.DB)
	if err != nil {
		return err
	}

	urgent := 0
	escalated := 0
	m.mu.Lock()
	if m.lastAlert == nil {
		m.lastAlert = make(map[uint]time.Time)
	}
	live := make(map[uint]struct{}, len(tickets))
	for _, t := range tickets {
		live[t.ID] = struct{}{}
		if !t.AwaitingStaff() {
			continue
		}
		waiting := now.Sub(t.WaitingSince())
		if waiting < m.UrgentThreshold {
			continue
		}
		urgent++
		if last, ok := m.lastAlert[t.ID]; ok && now.Sub(last) < m.CoolDown {
			continue
		}
		m.lastAlert[t.ID] = now
		escalated++
		if m.Events != nil {
			m.Events.Publish(notify.Event{
				Kind:     notify.KindEscalation,
				TicketID: t.ID,
				UserID:   t.UserID,
				Waiting:  waiting,
				At:       now,
			})
		}
		log.Warn().Uint("ticket_id", t.ID).Dur("waiting", waiting).Msg("ticket escalated")
	}
	// Closed tickets no longer need their cool-down entry.
	for id := range m.lastAlert {
		if _, ok := live[id]; !ok {
			delete(m.lastAlert, id)
		}
	}
	m.snap = Snapshot{Open: len(tickets), Urgent: urgent, SweptAt: now, Escalated: escalated}
	m.mu.Unlock()

	openTickets.Set(float64(len(tickets)))
	urgentTickets.Set(float64(urgent))
	return nil
}

// Snapshot returns the result of the latest sweep.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	s := m.snap
	m.mu.Unlock()
	return s
}

// Package services – RouterService
//
// This file implements RouterService, the application-level component that
// owns message routing between attendees and staff. It validates inbound
// content, enforces block and rate-limit policy, maps user messages onto a
// durable support ticket (creating one, with a staff-side thread, when none
// is open), and routes staff replies from thread handles back to the user.
//
// The service guarantees persist-then-send ordering: a message is appended to
// the ticket transcript inside a transaction before any delivery attempt, so
// a platform outage can never lose accepted messages. Per-ticket operations
// are serialized through a keyed mutex on top of the store transactions.
//
// Observability: public methods are OpenTelemetry-instrumented and routing
// outcomes are counted with Prometheus.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
	"github.com/eventdesk/go-support-backend/internal/notify"
	"github.com/eventdesk/go-support-backend/internal/platform"
	"github.com/eventdesk/go-support-backend/internal/registry"
	"github.com/eventdesk/go-support-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"
)

// Routing actions reported in RoutingResult.Action.
const (
	ActionCreated   = "created"
	ActionForwarded = "forwarded"
	ActionDuplicate = "duplicate"

	// idempotency scope for direct user messages; staff replies use the
	// thread handle as scope instead.
	scopeUser = "user"

	// delivery outcome stored in the idempotency record's Status, so replays
	// can report whether the original forward reached the other side.
	idemUndelivered = 0
	idemDelivered   = 1
)

var (
	routedUserMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "support",
		Name:      "routed_user_messages_total",
		Help:      "User messages routed, by action.",
	}, []string{"action"})

	routedStaffReplies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "support",
		Name:      "routed_staff_replies_total",
		Help:      "Staff replies routed back to users.",
	})

	deliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "support",
		Name:      "delivery_failures_total",
		Help:      "Outbound sends that failed after the message was persisted.",
	}, []string{"direction"})

	ticketsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "support",
		Name:      "tickets_closed_total",
		Help:      "Tickets transitioned from open to closed.",
	})
)

// Publisher is the event sink routing outcomes are announced on. The notify
// dispatcher satisfies it; tests substitute a recording fake.
type Publisher interface {
	Publish(evt notify.Event) bool
}

// UserMessage is an inbound attendee message.
type UserMessage struct {
	SenderID       int64
	DisplayName    string
	Locale         string
	Email          string
	Content        string
	AttachmentRef  string
	AttachmentKind string

	// MessageKey deduplicates platform webhook retries. Empty disables
	// dedup for this message.
	MessageKey string
}

// StaffReply is an inbound staff-side thread message.
type StaffReply struct {
	ThreadHandle   string
	StaffID        int64
	Admin          bool
	Content        string
	AttachmentRef  string
	AttachmentKind string
	MessageKey     string
}

// RoutingResult reports where a message landed.
type RoutingResult struct {
	TicketID     uint   `json:"ticket_id"`
	Action       string `json:"action"`
	ThreadHandle string `json:"thread_handle,omitempty"`
	Delivered    bool   `json:"delivered"`
}

// RouterService coordinates ticket routing between users and staff threads.
type RouterService struct {
	DB        *gorm.DB
	Registry  *registry.ThreadRegistry
	Messenger platform.Messenger
	Events    Publisher

	// MaxContentRunes caps accepted message length. Zero disables the cap.
	MaxContentRunes int

	// Blocked users have their messages discarded without persistence.
	Blocked map[int64]struct{}

	// RateLimit throttles inbound user messages per sender. Nil RateEvery
	// disables throttling.
	RateEvery rate.Limit
	RateBurst int

	// IdempotencyTTL bounds how long dedup records are honored.
	IdempotencyTTL time.Duration

	// SubjectLocale controls thread subject casing.
	SubjectLocale language.Tag

	// Now is injectable for tests; defaults to time.Now().UTC.
	Now func() time.Time

	locks    sync.Map // ticket/user key -> *sync.Mutex
	limiters sync.Map // user ID -> *rate.Limiter
}

// NewRouterService constructs a RouterService with sane defaults.
func NewRouterService(db *gorm.DB, reg *registry.ThreadRegistry, m platform.Messenger, events Publisher) *RouterService {
	return &RouterService{
		DB:              db,
		Registry:        reg,
		Messenger:       m,
		Events:          events,
		MaxContentRunes: 4000,
		RateEvery:       rate.Every(2 * time.Second),
		RateBurst:       5,
		IdempotencyTTL:  24 * time.Hour,
		SubjectLocale:   language.English,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// lockFor serializes operations touching the same routing key.
func (s *RouterService) lockFor(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *RouterService) limiter(userID int64) *rate.Limiter {
	if v, ok := s.limiters.Load(userID); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.limiters.LoadOrStore(userID, rate.NewLimiter(s.RateEvery, s.RateBurst))
	return v.(*rate.Limiter)
}

func (s *RouterService) validateContent(content, attachmentRef string) error {
	if strings.TrimSpace(content) == "" && attachmentRef == "" {
		return ErrInvalidContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return ErrInvalidContent
	}
	return nil
}

// threadSubject builds the staff-side thread title for a new ticket.
func (s *RouterService) threadSubject(displayName string, userID int64) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return fmt.Sprintf("Support #%d", userID)
	}
	name = cases.Title(s.SubjectLocale, cases.NoLower).String(name)
	return fmt.Sprintf("Support: %s (%d)", name, userID)
}

// RouteUserMessage maps an attendee message onto the user's open ticket,
// creating ticket and staff thread when none exists, then forwards the
// content to the staff side. The transcript write always commits before the
// forward attempt; a failed forward is reported via ErrDeliveryFailed with a
// non-nil result.
func (s *RouterService) RouteUserMessage(ctx context.Context, in UserMessage) (*RoutingResult, error) {
	tr := otel.Tracer("services/RouterService")
	ctx, span := tr.Start(ctx, "RouteUserMessage",
		trace.WithAttributes(attribute.Int64("user.id", in.SenderID)),
	)
	defer span.End()

	if _, blocked := s.Blocked[in.SenderID]; blocked {
		return nil, ErrUserBlocked
	}
	if err := s.validateContent(in.Content, in.AttachmentRef); err != nil {
		return nil, err
	}
	if s.RateEvery > 0 && !s.limiter(in.SenderID).Allow() {
		return nil, ErrRateLimited
	}

	now := s.Now()
	if _, err := repo.UpsertUser(ctx, s.DB, in.SenderID, in.DisplayName, in.Locale, now); err != nil {
		return nil, err
	}

	unlock := s.lockFor(fmt.Sprintf("user:%d", in.SenderID))
	defer unlock()

	// Dedup inside the keyed lock, so concurrent retries of the same key
	// serialize instead of both missing the record.
	if in.MessageKey != "" {
		if rec, err := repo.GetIdempotency(ctx, s.DB, fmt.Sprint(in.SenderID), scopeUser, in.MessageKey, now); err == nil {
			return &RoutingResult{TicketID: rec.TicketID, Action: ActionDuplicate, Delivered: rec.Status == idemDelivered}, nil
		}
	}

	ticket, created, err := s.ensureOpenTicket(ctx, in, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("ticket.id", int(ticket.ID)), attribute.Bool("ticket.created", created))

	// Transcript write commits before any delivery attempt.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, terr := repo.GetTicketForUpdate(ctx, tx, ticket.ID)
		if terr != nil {
			return terr
		}
		// A close racing with this message loses the race: the ticket is
		// reopened so the transcript and the user's expectation stay aligned.
		if !cur.Open() {
			if terr := repo.ReopenTicket(ctx, tx, cur.ID, now); terr != nil {
				return terr
			}
			log.Info().Uint("ticket_id", cur.ID).Msg("ticket reopened by concurrent user message")
		}
		resp, terr := repo.AppendResponse(tx, ticket.ID, in.SenderID, domain.RoleUser, in.Content, in.AttachmentRef, in.AttachmentKind, now)
		if terr != nil {
			return terr
		}
		if created && ticket.FirstResponseID == nil {
			ticket.FirstResponseID = &resp.ID
			if terr := tx.Model(&domain.SupportTicket{}).Where("id = ?", ticket.ID).
				Update("first_response_id", resp.ID).Error; terr != nil {
				return terr
			}
		}
		return repo.TouchUserMessage(tx, ticket.ID, now)
	})
	if err != nil {
		return nil, err
	}

	action := ActionForwarded
	if created {
		action = ActionCreated
	}
	res := &RoutingResult{TicketID: ticket.ID, Action: action, ThreadHandle: ticket.ThreadHandle}
	routedUserMessages.WithLabelValues(action).Inc()
	_ = repo.RecordUsage(ctx, s.DB, in.SenderID, "user_message", action)

	if created && s.Events != nil {
		s.Events.Publish(notify.Event{
			Kind:     notify.KindTicketCreated,
			TicketID: ticket.ID,
			UserID:   in.SenderID,
			Subject:  s.threadSubject(in.DisplayName, in.SenderID),
			Body:     in.Content,
			At:       now,
		})
	}

	// Forward to the staff thread. Failure never unwinds the committed write.
	var serr error
	if ticket.ThreadHandle != "" {
		if _, serr = s.Messenger.SendMessage(ctx, 0, ticket.ThreadHandle, s.staffCopy(in)); serr != nil {
			deliveryFailures.WithLabelValues("to_staff").Inc()
			log.Warn().Err(serr).Uint("ticket_id", ticket.ID).Str("thread", ticket.ThreadHandle).
				Msg("forward to staff thread failed")
		} else {
			res.Delivered = true
		}
	}

	// The dedup record carries the delivery outcome so replays do not claim a
	// forward that never happened.
	s.storeMessageKey(ctx, fmt.Sprint(in.SenderID), scopeUser, in.MessageKey, ticket.ID, res.Delivered)

	if serr != nil {
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, serr)
	}
	return res, nil
}

// storeMessageKey records the dedup entry for a routed message along with its
// delivery outcome. Storage failures only log; dedup must never unwind a
// committed transcript write.
func (s *RouterService) storeMessageKey(ctx context.Context, sender, scope, key string, ticketID uint, delivered bool) {
	if key == "" {
		return
	}
	status := idemUndelivered
	if delivered {
		status = idemDelivered
	}
	if _, err := repo.CreateIdempotency(ctx, s.DB, sender, scope, key, ticketID, status, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		log.Warn().Err(err).Uint("ticket_id", ticketID).Msg("idempotency record not stored")
	}
}

// ensureOpenTicket resolves the sender's open ticket, creating ticket and
// staff thread when none exists. Registry first, store as fallback; a ticket
// the registry has lost (fresh restart) is re-registered on the way out.
func (s *RouterService) ensureOpenTicket(ctx context.Context, in UserMessage, now time.Time) (*domain.SupportTicket, bool, error) {
	if e, ok := s.Registry.ResolveByUser(in.SenderID); ok {
		t, err := repo.GetTicket(ctx, s.DB, e.TicketID)
		if err == nil {
			return t, false, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, err
		}
		s.Registry.Unregister(e.Thread)
	}

	t, err := repo.GetOpenTicketByUser(ctx, s.DB, in.SenderID)
	if err == nil {
		if t.ThreadHandle == "" {
			if herr := s.assignThread(ctx, t, in); herr != nil {
				log.Warn().Err(herr).Uint("ticket_id", t.ID).Msg("staff thread still unavailable")
			}
		}
		if t.ThreadHandle != "" {
			s.Registry.Register(t.ID, t.UserID, t.ThreadHandle)
		}
		return t, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	// Create path. Any stale open tickets are closed first so the single
	// open ticket invariant holds even after partial failures.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, terr := repo.CloseOpenTicketsForUser(ctx, tx, in.SenderID, now); terr != nil {
			return terr
		}
		t, err = repo.CreateTicket(ctx, tx, in.SenderID, in.Email, now)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if herr := s.assignThread(ctx, t, in); herr != nil {
		// The ticket is durable either way; the handle is retried on the
		// next inbound message.
		log.Error().Err(herr).Uint("ticket_id", t.ID).Msg("staff thread creation failed")
	}
	return t, true, nil
}

// assignThread creates the staff-side thread and binds it to the ticket.
func (s *RouterService) assignThread(ctx context.Context, t *domain.SupportTicket, in UserMessage) error {
	handle, err := s.Messenger.CreateThread(ctx, s.threadSubject(in.DisplayName, in.SenderID))
	if err != nil {
		return err
	}
	if err := repo.SetThreadHandle(ctx, s.DB, t.ID, handle, 0); err != nil {
		// Lost a race to another assignment; reload the winner's handle.
		cur, gerr := repo.GetTicket(ctx, s.DB, t.ID)
		if gerr != nil {
			return gerr
		}
		t.ThreadHandle = cur.ThreadHandle
	} else {
		t.ThreadHandle = handle
	}
	if t.ThreadHandle != "" {
		s.Registry.Register(t.ID, t.UserID, t.ThreadHandle)
	}
	return nil
}

// staffCopy renders the user's message for the staff thread.
func (s *RouterService) staffCopy(in UserMessage) string {
	var b strings.Builder
	if in.DisplayName != "" {
		fmt.Fprintf(&b, "%s: ", in.DisplayName)
	}
	b.WriteString(in.Content)
	if in.AttachmentRef != "" {
		fmt.Fprintf(&b, " [attachment:%s %s]", in.AttachmentKind, in.AttachmentRef)
	}
	return b.String()
}

// RouteStaffReply maps a staff thread message back to the ticket's user.
// Unknown handles trigger one registry rebuild before giving up; replies to
// closed tickets are rejected with ErrTicketClosed.
func (s *RouterService) RouteStaffReply(ctx context.Context, in StaffReply) (*RoutingResult, error) {
	tr := otel.Tracer("services/RouterService")
	ctx, span := tr.Start(ctx, "RouteStaffReply",
		trace.WithAttributes(attribute.String("thread", in.ThreadHandle)),
	)
	defer span.End()

	if in.ThreadHandle == "" {
		return nil, ErrUnknownThread
	}
	if err := s.validateContent(in.Content, in.AttachmentRef); err != nil {
		return nil, err
	}

	now := s.Now()
	ticket, err := s.resolveThread(ctx, in.ThreadHandle)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("ticket.id", int(ticket.ID)))

	unlock := s.lockFor(fmt.Sprintf("ticket:%d", ticket.ID))
	defer unlock()

	// Dedup inside the keyed lock, matching the user-message path.
	if in.MessageKey != "" {
		if rec, derr := repo.GetIdempotency(ctx, s.DB, fmt.Sprint(in.StaffID), in.ThreadHandle, in.MessageKey, now); derr == nil {
			return &RoutingResult{TicketID: rec.TicketID, Action: ActionDuplicate, Delivered: rec.Status == idemDelivered}, nil
		}
	}

	role := domain.RoleStaff
	if in.Admin {
		role = domain.RoleAdmin
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, terr := repo.GetTicketForUpdate(ctx, tx, ticket.ID)
		if terr != nil {
			return terr
		}
		if !cur.Open() {
			return ErrTicketClosed
		}
		if _, terr := repo.AppendResponse(tx, ticket.ID, in.StaffID, role, in.Content, in.AttachmentRef, in.AttachmentKind, now); terr != nil {
			return terr
		}
		return repo.TouchStaffResponse(tx, ticket.ID, now)
	})
	if err != nil {
		return nil, err
	}

	routedStaffReplies.Inc()
	_ = repo.RecordUsage(ctx, s.DB, in.StaffID, "staff_reply", in.ThreadHandle)

	res := &RoutingResult{TicketID: ticket.ID, Action: ActionForwarded, ThreadHandle: in.ThreadHandle}
	var serr error
	if _, serr = s.Messenger.SendMessage(ctx, ticket.UserID, "", in.Content); serr != nil {
		deliveryFailures.WithLabelValues("to_user").Inc()
		log.Warn().Err(serr).Uint("ticket_id", ticket.ID).Int64("user_id", ticket.UserID).
			Msg("delivery to user failed")
	} else {
		res.Delivered = true
	}

	s.storeMessageKey(ctx, fmt.Sprint(in.StaffID), in.ThreadHandle, in.MessageKey, ticket.ID, res.Delivered)

	if serr != nil {
		return res, fmt.Errorf("%w: %v", ErrDeliveryFailed, serr)
	}
	return res, nil
}

// resolveThread maps a handle to its ticket: registry, then one rebuild and
// retry, then the store (closed tickets stay resolvable there).
func (s *RouterService) resolveThread(ctx context.Context, handle string) (*domain.SupportTicket, error) {
	if e, ok := s.Registry.ResolveByThread(handle); ok {
		return repo.GetTicket(ctx, s.DB, e.TicketID)
	}
	if err := s.Registry.Rebuild(ctx, s.DB); err != nil {
		return nil, err
	}
	if e, ok := s.Registry.ResolveByThread(handle); ok {
		return repo.GetTicket(ctx, s.DB, e.TicketID)
	}
	t, err := repo.GetTicketByThread(ctx, s.DB, handle)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnknownThread
	}
	return t, err
}

// CloseTicket transitions a ticket to closed. It is idempotent: closing an
// already closed ticket reports changed=false without error.
func (s *RouterService) CloseTicket(ctx context.Context, ticketID uint, actorID int64) (bool, error) {
	tr := otel.Tracer("services/RouterService")
	ctx, span := tr.Start(ctx, "CloseTicket",
		trace.WithAttributes(attribute.Int("ticket.id", int(ticketID))),
	)
	defer span.End()

	unlock := s.lockFor(fmt.Sprintf("ticket:%d", ticketID))
	defer unlock()

	ticket, err := repo.GetTicket(ctx, s.DB, ticketID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrTicketNotFound
	}
	if err != nil {
		return false, err
	}

	now := s.Now()
	changed, err := repo.CloseTicketIfOpen(ctx, s.DB, ticketID, now)
	if err != nil || !changed {
		return false, err
	}

	if ticket.ThreadHandle != "" {
		s.Registry.Unregister(ticket.ThreadHandle)
	}
	ticketsClosed.Inc()
	_ = repo.RecordUsage(ctx, s.DB, actorID, "ticket_closed", fmt.Sprint(ticketID))
	if s.Events != nil {
		s.Events.Publish(notify.Event{
			Kind:     notify.KindTicketClosed,
			TicketID: ticketID,
			UserID:   ticket.UserID,
			At:       now,
		})
	}

	// Closure notice to the user is best effort.
	if _, serr := s.Messenger.SendMessage(ctx, ticket.UserID, "", "Your support request has been resolved. Reply here to open a new one."); serr != nil {
		log.Warn().Err(serr).Uint("ticket_id", ticketID).Msg("closure notice delivery failed")
	}
	return true, nil
}

// ReopenTicket explicitly reopens a closed ticket, re-registering its thread.
// Reopening an already open ticket is a no-op.
func (s *RouterService) ReopenTicket(ctx context.Context, ticketID uint, actorID int64) (bool, error) {
	unlock := s.lockFor(fmt.Sprintf("ticket:%d", ticketID))
	defer unlock()

	ticket, err := repo.GetTicket(ctx, s.DB, ticketID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrTicketNotFound
	}
	if err != nil {
		return false, err
	}
	if ticket.Open() {
		return false, nil
	}

	now := s.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The single open ticket invariant survives reopening: any other
		// open ticket for the same user is closed first.
		if _, terr := repo.CloseOpenTicketsForUser(ctx, tx, ticket.UserID, now); terr != nil {
			return terr
		}
		return repo.ReopenTicket(ctx, tx, ticketID, now)
	})
	if err != nil {
		return false, err
	}
	if ticket.ThreadHandle != "" {
		s.Registry.Register(ticket.ID, ticket.UserID, ticket.ThreadHandle)
	}
	_ = repo.RecordUsage(ctx, s.DB, actorID, "ticket_reopened", fmt.Sprint(ticketID))
	return true, nil
}

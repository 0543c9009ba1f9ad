package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomail "gopkg.in/gomail.v2"
)

// MailSender sends one composed message. gomail.Dialer satisfies it; tests
// substitute a recording fake.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel mails escalation and feedback events to the support inbox.
// A per-kind cool-down keeps a stuck queue from flooding the mailbox.
type EmailChannel struct {
	Sender   MailSender
	From     string
	To       []string
	CoolDown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewEmailChannel wires an SMTP-backed channel.
func NewEmailChannel(host string, port int, username, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		Sender:   gomail.NewDialer(host, port, username, password),
		From:     from,
		To:       to,
		CoolDown: 10 * time.Minute,
		lastSent: make(map[string]time.Time),
	}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Notify(_ context.Context, evt Event) error {
	// Only slow-path events are worth an email.
	if evt.Kind != KindEscalation && evt.Kind != KindFeedback {
		return nil
	}
	if len(e.To) == 0 {
		return nil
	}

	e.mu.Lock()
	if e.lastSent == nil {
		e.lastSent = make(map[string]time.Time)
	}
	now := time.Now()
	if last, ok := e.lastSent[evt.Kind]; ok && e.CoolDown > 0 && now.Sub(last) < e.CoolDown {
		e.mu.Unlock()
		return nil
	}
	e.lastSent[evt.Kind] = now
	e.mu.Unlock()

	m := gomail.NewMessage()
	m.SetHeader("From", e.From)
	m.SetHeader("To", e.To...)
	m.SetHeader("Subject", e.subject(evt))
	m.SetBody("text/plain", e.body(evt))
	return e.Sender.DialAndSend(m)
}

func (e *EmailChannel) subject(evt Event) string {
	switch evt.Kind {
	case KindEscalation:
		return fmt.Sprintf("[support] ticket #%d unanswered for %s", evt.TicketID, evt.Waiting.Round(time.Minute))
	case KindFeedback:
		return "[support] new feedback received"
	default:
		return fmt.Sprintf("[support] %s", evt.Kind)
	}
}

func (e *EmailChannel) body(evt Event) string {
	return fmt.Sprintf("kind: %s\nticket: %d\nuser: %d\n\n%s\n", evt.Kind, evt.TicketID, evt.UserID, evt.Body)
}

// Package platform abstracts the external messaging surface the router
// delivers to. The production deployment plugs in the chat platform's API
// client; tests and local development use the in-memory loopback messenger.
package platform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DeliveryResult reports the outcome of a single send attempt.
type DeliveryResult struct {
	// MessageRef is the platform-assigned identifier, when available.
	MessageRef string
}

// Messenger delivers outbound content to users and staff threads.
type Messenger interface {
	// SendMessage delivers content to a recipient. A non-empty threadHandle
	// targets a staff-side thread instead of a direct user conversation.
	SendMessage(ctx context.Context, recipient int64, threadHandle, content string) (DeliveryResult, error)

	// CreateThread opens a new staff-side thread and returns its handle.
	CreateThread(ctx context.Context, subject string) (string, error)
}

// Sent records a delivery captured by the loopback messenger.
type Sent struct {
	Recipient int64
	Thread    string
	Content   string
}

// Loopback is an in-memory Messenger for development and tests. It records
// every send and mints sequential thread handles.
type Loopback struct {
	mu      sync.Mutex
	sent    []Sent
	threads atomic.Uint64

	// FailSends makes SendMessage return an error when set.
	FailSends error
	// FailCreate makes CreateThread return an error when set.
	FailCreate error
}

var _ Messenger = (*Loopback)(nil)

func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) SendMessage(_ context.Context, recipient int64, threadHandle, content string) (DeliveryResult, error) {
	if l.FailSends != nil {
		return DeliveryResult{}, l.FailSends
	}
	l.mu.Lock()
	l.sent = append(l.sent, Sent{Recipient: recipient, Thread: threadHandle, Content: content})
	n := len(l.sent)
	l.mu.Unlock()
	return DeliveryResult{MessageRef: fmt.Sprintf("loopback-%d", n)}, nil
}

func (l *Loopback) CreateThread(_ context.Context, _ string) (string, error) {
	if l.FailCreate != nil {
		return "", l.FailCreate
	}
	return fmt.Sprintf("thread-%d", l.threads.Add(1)), nil
}

// Deliveries returns a copy of everything sent so far.
func (l *Loopback) Deliveries() []Sent {
	l.mu.Lock()
	out := make([]Sent, len(l.sent))
	copy(out, l.sent)
	l.mu.Unlock()
	return out
}

// Package registry maintains the in-memory mapping between staff-side thread
// handles and open support tickets. The registry is a cache over the ticket
// store: it can be rebuilt at any time from persisted open tickets, so a
// process restart never loses routing state.
//
// Functions:
//   - New: construct an empty registry
//   - Register: bind a thread handle and user to a ticket
//   - Unregister: drop a binding when a ticket closes
//   - ResolveByThread: thread handle -> ticket ID
//   - ResolveByUser: user ID -> open ticket ID
//   - Rebuild: repopulate the maps from the store
package registry

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/repo"
)

// Entry is a single routing binding held by the registry.
type Entry struct {
	TicketID uint
	UserID   int64
	Thread   string
}

// ThreadRegistry is safe for concurrent use.
type ThreadRegistry struct {
	mu       sync.RWMutex
	byThread map[string]Entry
	byUser   map[int64]Entry
}

func New() *ThreadRegistry {
	return &ThreadRegistry{
		byThread: make(map[string]Entry),
		byUser:   make(map[int64]Entry),
	}
}

// Register binds a thread handle and user to a ticket. A later registration
// for the same user replaces the previous one, since a user has at most one
// open ticket.
func (r *ThreadRegistry) Register(ticketID uint, userID int64, thread string) {
	if thread == "" {
		return
	}
	e := Entry{TicketID: ticketID, UserID: userID, Thread: thread}
	r.mu.Lock()
	if prev, ok := r.byUser[userID]; ok && prev.Thread != thread {
		delete(r.byThread, prev.Thread)
	}
	r.byThread[thread] = e
	r.byUser[userID] = e
	r.mu.Unlock()
}

// Unregister removes the binding for a thread handle, if present.
func (r *ThreadRegistry) Unregister(thread string) {
	r.mu.Lock()
	if e, ok := r.byThread[thread]; ok {
		delete(r.byThread, thread)
		if cur, ok := r.byUser[e.UserID]; ok && cur.Thread == thread {
			delete(r.byUser, e.UserID)
		}
	}
	r.mu.Unlock()
}

// ResolveByThread returns the binding for a thread handle.
func (r *ThreadRegistry) ResolveByThread(thread string) (Entry, bool) {
	r.mu.RLock()
	e, ok := r.byThread[thread]
	r.mu.RUnlock()
	return e, ok
}

// ResolveByUser returns the binding for a user's open ticket.
func (r *ThreadRegistry) ResolveByUser(userID int64) (Entry, bool) {
	r.mu.RLock()
	e, ok := r.byUser[userID]
	r.mu.RUnlock()
	return e, ok
}

// Len reports the number of registered threads.
func (r *ThreadRegistry) Len() int {
	r.mu.RLock()
	n := len(r.byThread)
	r.mu.RUnlock()
	return n
}

// Rebuild replaces the registry contents with all open tickets from the
// store. Tickets without a thread handle yet are skipped; they are registered
// once the handle is assigned.
func (r *ThreadRegistry) Rebuild(ctx context.Context, db *gorm.DB) error {
	tickets, err := repo.ListOpenTickets(ctx, db)
	if err != nil {
		return err
	}
	byThread := make(map[string]Entry, len(tickets))
	byUser := make(map[int64]Entry, len(tickets))
	for _, t := range tickets {
		if t.ThreadHandle == "" {
			continue
		}
		e := Entry{TicketID: t.ID, UserID: t.UserID, Thread: t.ThreadHandle}
		byThread[t.ThreadHandle] = e
		byUser[t.UserID] = e
	}
	r.mu.Lock()
	r.byThread = byThread
	r.byUser = byUser
	r.mu.Unlock()
	return nil
}

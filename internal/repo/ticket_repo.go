// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SupportTicket model, the durable half of the ticket store.
//
// Error semantics:
//   - When a ticket is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateTicket(ctx, db, userID, email, now) -> *domain.SupportTicket, error
//     Inserts a new open ticket row.
//
//   - GetTicket / GetTicketForUpdate(ctx, db, id) -> *domain.SupportTicket, error
//     Fetches a ticket by ID; the ForUpdate variant reads inside
//     a transaction for the read-then-conditionally-write close/reopen path.
//
//   - GetOpenTicketByUser(ctx, db, userID) -> *domain.SupportTicket, error
//     Resolves the user's single open routing target (latest open ticket).
//
//   - GetTicketByThread(ctx, db, handle) -> *domain.SupportTicket, error
//     Resolves a ticket by its staff-thread handle, regardless of status
//     (closed tickets stay resolvable for audit and reopen).
//
//   - SetThreadHandle(ctx, db, id, handle, firstResponseID) -> error
//     Assigns the thread handle exactly once.
//
//   - CloseTicketIfOpen(ctx, db, id, now) -> (bool, error)
//     Conditional close; reports whether this call performed the transition.
//
//   - ReopenTicket(ctx, db, id, now) -> error
//     Sets the ticket back to open and clears ClosedAt.
//
//   - CloseOpenTicketsForUser(ctx, db, userID, now) -> (int64, error)
//     Bulk-closes stale open tickets before a new one is created, upholding
//     the single-open-ticket invariant.
//
//   - TouchUserMessage / TouchStaffResponse(db, id, now) -> error
//     Updates the direction-specific last-message timestamps.
//
//   - ListOpenTickets(ctx, db) -> []domain.SupportTicket, error
//     Feeds the escalation sweep and the thread-registry rebuild.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.Router) which enforces routing rules, registry consistency,
// and the persist-then-send discipline.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
)

// CreateTicket inserts a new open SupportTicket owned by userID. The caller
// supplies now so that the ticket and its first response share one timestamp.
func CreateTicket(ctx context.Context, db *gorm.DB, userID int64, email string, now time.Time) (*domain.SupportTicket, error) {
	t := &domain.SupportTicket{
		UserID:            userID,
		Email:             email,
		Status:            domain.TicketStatusOpen,
		LastUserMessageAt: now,
		CreatedAt:         now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTicket fetches a ticket by ID, or ErrNotFound.
func GetTicket(ctx context.Context, db *gorm.DB, id uint) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicketForUpdate fetches a ticket by ID for a read-then-write sequence.
// Must be called on a transaction handle: SQLite serializes writing
// transactions, so the row cannot change between this read and a later write
// in the same transaction. It is the read half of the tie-break between a
// late user message and a concurrent staff close.
func GetTicketForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	err := tx.WithContext(ctx).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOpenTicketByUser resolves the user's current open ticket, the default
// routing target for their inbound messages. When the user has several open
// tickets (not expected in steady state), the most recent one wins.
func GetOpenTicketByUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.TicketStatusOpen).
		Order("created_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicketByThread resolves a ticket by its staff-thread handle. Closed
// tickets are returned too: the mapping survives closure for audit and for
// explicit reopen.
func GetTicketByThread(ctx context.Context, db *gorm.DB, handle string) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	err := db.WithContext(ctx).
		Where("thread_handle = ?", handle).
		Order("created_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetThreadHandle assigns the staff-thread handle and the pointer to the
// first inbound response. The handle is immutable: rows that already carry
// one are not updated, and ErrNotFound is returned so the caller notices.
func SetThreadHandle(ctx context.Context, db *gorm.DB, id uint, handle string, firstResponseID uint) error {
	res := db.WithContext(ctx).
		Model(&domain.SupportTicket{}).
		Where("id = ? AND (thread_handle IS NULL OR thread_handle = '')", id).
		Updates(map[string]any{
			"thread_handle":     handle,
			"first_response_id": firstResponseID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CloseTicketIfOpen performs an idempotent, conditional close. It returns
// true when this call transitioned the ticket from open to closed and false
// when the ticket was already closed (or does not exist); the caller uses
// that to avoid duplicate close events.
func CloseTicketIfOpen(ctx context.Context, db *gorm.DB, id uint, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.SupportTicket{}).
		Where("id = ? AND status = ?", id, domain.TicketStatusOpen).
		Updates(map[string]any{
			"status":     domain.TicketStatusClosed,
			"closed_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReopenTicket sets a ticket back to open and clears the closure timestamp.
// Reopening an already-open ticket is a no-op.
func ReopenTicket(ctx context.Context, db *gorm.DB, id uint, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.SupportTicket{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.TicketStatusOpen,
			"closed_at":  nil,
			"updated_at": now,
		}).Error
}

// CloseOpenTicketsForUser closes every open ticket the user still has,
// returning how many were closed. Called just before a new ticket is created
// so that exactly one open ticket per user remains.
func CloseOpenTicketsForUser(ctx context.Context, db *gorm.DB, userID int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.SupportTicket{}).
		Where("user_id = ? AND status = ?", userID, domain.TicketStatusOpen).
		Updates(map[string]any{
			"status":     domain.TicketStatusClosed,
			"closed_at":  now,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// TouchUserMessage records that the user spoke at now.
func TouchUserMessage(db *gorm.DB, id uint, now time.Time) error {
	return db.Model(&domain.SupportTicket{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_user_message_at": now,
			"updated_at":           now,
		}).Error
}

// TouchStaffResponse records that staff spoke at now.
func TouchStaffResponse(db *gorm.DB, id uint, now time.Time) error {
	return db.Model(&domain.SupportTicket{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_staff_response_at": now,
			"updated_at":             now,
		}).Error
}

// ListOpenTickets returns all open tickets ordered oldest-wait-first. Used by
// the escalation sweep and by the thread-registry rebuild after a restart.
func ListOpenTickets(ctx context.Context, db *gorm.DB) ([]domain.SupportTicket, error) {
	var out []domain.SupportTicket
	err := db.WithContext(ctx).
		Where("status = ?", domain.TicketStatusOpen).
		Order("last_user_message_at asc").
		Find(&out).Error
	return out, err
}

// CountTickets returns the total number of tickets with the given status,
// or of all tickets when status is empty.
func CountTickets(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.SupportTicket{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListTicketsPage returns a paginated slice of tickets, newest first,
// optionally filtered by status. Use CountTickets for pagination metadata.
func ListTicketsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.SupportTicket, error) {
	q := db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.SupportTicket
	err := q.Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

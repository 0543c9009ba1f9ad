// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-only aggregate queries behind
// the operational query surface (health/reporting collaborator) and the ETag
// generation for the staff ticket list. Each function is context-aware,
// side-effect-free, and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
)

// OpenTicketCount returns the number of tickets currently open.
func OpenTicketCount(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.SupportTicket{}).
		Where("status = ?", domain.TicketStatusOpen).
		Count(&total).Error
	return total, err
}

// UrgentTicketCount returns the number of open tickets whose user has been
// owed a reply for longer than threshold: no staff response yet, or the user
// spoke after the last staff response, and the wait exceeds the threshold.
// Mirrors the escalation monitor's urgency predicate.
func UrgentTicketCount(ctx context.Context, db *gorm.DB, threshold time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-threshold)
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.SupportTicket{}).
		Where("status = ?", domain.TicketStatusOpen).
		Where("last_staff_response_at IS NULL OR last_user_message_at > last_staff_response_at").
		Where("last_user_message_at < ?", cutoff).
		Count(&total).Error
	return total, err
}

// TotalUserCount returns the number of users ever seen by the desk.
func TotalUserCount(ctx context.Context, db *gorm.DB) (int64, error) {
	return CountUsers(ctx, db)
}

// RecentFeedbackCount returns the feedback volume in the trailing window.
func RecentFeedbackCount(ctx context.Context, db *gorm.DB, window time.Duration, now time.Time) (int64, error) {
	return CountFeedbackSince(ctx, db, now.Add(-window))
}

// TicketsStats returns aggregate metadata for the ticket list: the total
// number of rows and the maximum UpdatedAt timestamp among those rows. Used
// for weak-ETag generation on the staff ticket list. When there are no
// tickets, the returned count is 0 and maxUpdatedAt is nil.
func TicketsStats(ctx context.Context, db *gorm.DB, status string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.SupportTicket{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// AvgStaffResponseMinutes computes the mean minutes between a user message
// and the next staff response over the trailing window. Informational only;
// feeds the operational report, never routing decisions.
func AvgStaffResponseMinutes(ctx context.Context, db *gorm.DB, window time.Duration, now time.Time) (float64, error) {
	cutoff := now.Add(-window)
	var avg *float64
	err := db.WithContext(ctx).Raw(`
		SELECT AVG((julianday(s.created_at) - julianday(u.created_at)) * 1440.0)
		FROM support_responses u
		JOIN support_responses s
		  ON s.ticket_id = u.ticket_id
		 AND s.created_at > u.created_at
		WHERE u.author_role = 'user'
		  AND s.author_role IN ('staff', 'admin')
		  AND s.created_at > ?`, cutoff).
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback
// and UsageRecord models.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules (rating bounds, category checks)
// to the services package.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
)

// CreateFeedback inserts a feedback row for the given user.
//
// Rating must be within 1..5; validation is expected to be enforced at higher
// layers (handlers/services) and via the DB check constraint.
func CreateFeedback(ctx context.Context, db *gorm.DB, userID int64, category string, rating int, comment string) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		UserID:    userID,
		Category:  category,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	return fb, db.WithContext(ctx).Create(fb).Error
}

// CountFeedbackSince returns the number of feedback entries created after the
// given cutoff. Backs the trailing-window counter on the operational surface.
func CountFeedbackSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Feedback{}).
		Where("created_at > ?", since).
		Count(&total).Error
	return total, err
}

// RecordUsage appends an audit entry. Failures here must never fail the
// routing call that produced them; callers log and move on.
func RecordUsage(ctx context.Context, db *gorm.DB, userID int64, action, detail string) error {
	rec := &domain.UsageRecord{
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(rec).Error
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eventdesk/go-support-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertUser creates the user on first contact or refreshes the mutable
// fields (display name, locale) and the activity timestamp on every
// subsequent inbound event. The platform-assigned ID is never changed.
func UpsertUser(ctx context.Context, db *gorm.DB, id int64, displayName, locale string, now time.Time) (*domain.User, error) {
	u := &domain.User{
		ID:             id,
		DisplayName:    displayName,
		Locale:         locale,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"display_name", "locale", "last_activity_at", "updated_at"},
		),
	}).Create(u).Error
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by platform ID, or ErrNotFound if unknown.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// TouchUserActivity bumps the user's last-activity timestamp. A missing user
// is not an error here: the upsert path owns creation.
func TouchUserActivity(ctx context.Context, db *gorm.DB, id int64, now time.Time) error {
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("last_activity_at", now).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// CountUsers returns the total number of users ever seen.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SupportResponse model. Responses are append-only; there is deliberately no
// update or delete function here.
package repo

import (
	"time"

	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
)

// AppendResponse inserts a response row. It takes a bare DB handle (usually a
// transaction) so the insert can share the transaction that updates the
// owning ticket's timestamps.
func AppendResponse(db *gorm.DB, ticketID uint, authorID int64, role, content, attachmentRef, attachmentKind string, now time.Time) (*domain.SupportResponse, error) {
	r := &domain.SupportResponse{
		TicketID:       ticketID,
		AuthorID:       authorID,
		AuthorRole:     role,
		Content:        content,
		AttachmentRef:  attachmentRef,
		AttachmentKind: attachmentKind,
		CreatedAt:      now,
	}
	return r, db.Create(r).Error
}

// ListResponses returns responses ordered deterministically (CreatedAt ASC, ID ASC).
func ListResponses(db *gorm.DB, ticketID uint, limit int) ([]domain.SupportResponse, error) {
	var out []domain.SupportResponse
	q := db.Where("ticket_id = ?", ticketID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountResponses uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountResponses(db *gorm.DB, ticketID uint) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM support_responses WHERE ticket_id = ?", ticketID).Scan(&total).Error
	return total, err
}

// ListResponsesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListResponsesPage(db *gorm.DB, ticketID uint, offset, limit int) ([]domain.SupportResponse, error) {
	var out []domain.SupportResponse
	err := db.
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetResponse fetches a response by ID.
func GetResponse(db *gorm.DB, id uint) (*domain.SupportResponse, error) {
	var r domain.SupportResponse
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

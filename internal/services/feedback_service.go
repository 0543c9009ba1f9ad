// Package services – FeedbackService
//
// This file implements FeedbackService, which records attendee feedback
// (category, 1..5 rating, optional comment) and announces it on the event
// bus so staff channels can surface it.
package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
	"github.com/eventdesk/go-support-backend/internal/notify"
	"github.com/eventdesk/go-support-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maximum stored comment length, in runes
const maxCommentRunes = 2000

// FeedbackService validates and persists feedback entries.
type FeedbackService struct {
	DB     *gorm.DB
	Events Publisher
}

// Submit validates and stores one feedback entry.
func (s *FeedbackService) Submit(ctx context.Context, userID int64, category string, rating int, comment string) (*domain.Feedback, error) {
	tr := otel.Tracer("services/FeedbackService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.Int64("user.id", userID), attribute.Int("rating", rating)),
	)
	defer span.End()

	category = strings.TrimSpace(strings.ToLower(category))
	if category == "" || rating < 1 || rating > 5 {
		return nil, ErrInvalidFeedback
	}
	comment = strings.TrimSpace(comment)
	if runes := []rune(comment); len(runes) > maxCommentRunes {
		comment = string(runes[:maxCommentRunes])
	}

	fb, err := repo.CreateFeedback(ctx, s.DB, userID, category, rating, comment)
	if err != nil {
		return nil, err
	}
	_ = repo.RecordUsage(ctx, s.DB, userID, "feedback", category)

	if s.Events != nil {
		s.Events.Publish(notify.Event{
			Kind:   notify.KindFeedback,
			UserID: userID,
			Body:   formatFeedback(category, rating, comment),
			At:     time.Now().UTC(),
		})
	}
	return fb, nil
}

func formatFeedback(category string, rating int, comment string) string {
	var b strings.Builder
	b.WriteString(category)
	b.WriteString(" ")
	b.WriteString(strings.Repeat("★", rating))
	if comment != "" {
		b.WriteString(": ")
		b.WriteString(comment)
	}
	return b.String()
}

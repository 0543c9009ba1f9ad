package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/eventdesk/go-support-backend/internal/platform"
)

// StaffAlertChannel posts event summaries into a dedicated staff alert
// thread on the messaging platform.
type StaffAlertChannel struct {
	Messenger platform.Messenger
	// Thread is the alert thread handle; empty disables the channel.
	Thread string
}

func (s *StaffAlertChannel) Name() string { return "staff_alert" }

func (s *StaffAlertChannel) Notify(ctx context.Context, evt Event) error {
	if s.Thread == "" {
		return nil
	}
	var text string
	switch evt.Kind {
	case KindTicketCreated:
		text = fmt.Sprintf("New ticket #%d from user %d: %s", evt.TicketID, evt.UserID, evt.Body)
	case KindEscalation:
		text = fmt.Sprintf("Ticket #%d has been waiting %s for a staff response", evt.TicketID, evt.Waiting.Round(time.Minute))
	case KindTicketClosed:
		text = fmt.Sprintf("Ticket #%d closed", evt.TicketID)
	case KindFeedback:
		text = fmt.Sprintf("New feedback from user %d: %s", evt.UserID, evt.Body)
	default:
		return nil
	}
	_, err := s.Messenger.SendMessage(ctx, 0, s.Thread, text)
	return err
}

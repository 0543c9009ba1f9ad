// Package domain defines the persistence models for users, support tickets,
// ticket responses, and feedback. These types are mapped with GORM and form
// the core data layer of the support desk application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Ticket status values. A ticket is either open (routable) or closed.
const (
	TicketStatusOpen   = "open"
	TicketStatusClosed = "closed"
)

// Author roles for a SupportResponse. A closed enumeration rather than an
// is_admin flag so that additional roles can be added without schema ambiguity.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// User represents an attendee known to the support desk. The ID is assigned
// by the messaging platform and is immutable; the record is created on first
// contact and only ever updated afterwards, never deleted.
//
// Fields:
//   - ID: platform-assigned numeric identifier (primary key).
//   - DisplayName: name shown to staff in the thread header.
//   - Locale: BCP 47 language tag reported by the platform (may be empty).
//   - LastActivityAt: touched on every inbound event from this user.
type User struct {
	ID             int64     `json:"id"               gorm:"primaryKey;autoIncrement:false"`
	DisplayName    string    `json:"display_name"     gorm:"type:varchar(255);not null"`
	Locale         string    `json:"locale"           gorm:"type:varchar(16)"`
	LastActivityAt time.Time `json:"last_activity_at" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// SupportTicket represents one user's support episode, from first message to
// closure. At most one open ticket per thread handle exists at any time, and
// a user's single open ticket is the default routing target for their inbound
// messages.
//
// Fields:
//   - ID: system-assigned monotonic identifier.
//   - UserID: owning user; indexed for open-ticket resolution.
//   - Email: optional contact address supplied by the user.
//   - Status: "open" or "closed".
//   - ThreadHandle: opaque reference to the staff-side discussion context.
//     Assigned once when the staff thread is created, immutable thereafter.
//   - FirstResponseID: pointer to the first inbound response, kept so the
//     staff thread can be re-created from the original message on recovery.
//   - LastUserMessageAt / LastStaffResponseAt: timestamps backing the
//     "who spoke last" computation for escalation.
//   - ClosedAt: set when the ticket is closed; cleared on reopen.
type SupportTicket struct {
	ID                  uint           `json:"id"                     gorm:"primaryKey"`
	UserID              int64          `json:"user_id"                gorm:"not null;index:idx_tickets_user_status,priority:1"`
	Email               string         `json:"email,omitempty"        gorm:"type:varchar(255)"`
	Status              string         `json:"status"                 gorm:"type:varchar(16);not null;default:'open';index:idx_tickets_user_status,priority:2;check:status IN ('open','closed')"`
	ThreadHandle        string         `json:"thread_handle"          gorm:"type:varchar(64);index:idx_tickets_thread"`
	FirstResponseID     *uint          `json:"first_response_id,omitempty"`
	LastUserMessageAt   time.Time      `json:"last_user_message_at"   gorm:"index"`
	LastStaffResponseAt *time.Time     `json:"last_staff_response_at,omitempty"`
	ClosedAt            *time.Time     `json:"closed_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for SupportTicket.
func (SupportTicket) TableName() string { return "support_tickets" }

// Open reports whether the ticket is an active routing target.
func (t *SupportTicket) Open() bool { return t.Status == TicketStatusOpen }

// AwaitingStaff reports whether the user is currently owed a reply: no staff
// response yet, or the user spoke after the last staff response.
func (t *SupportTicket) AwaitingStaff() bool {
	if t.LastStaffResponseAt == nil {
		return true
	}
	return t.LastUserMessageAt.After(*t.LastStaffResponseAt)
}

// WaitingSince returns the instant from which the user's wait is measured:
// the later of the last user message and ticket creation.
func (t *SupportTicket) WaitingSince() time.Time {
	if t.LastUserMessageAt.After(t.CreatedAt) {
		return t.LastUserMessageAt
	}
	return t.CreatedAt
}

// SupportResponse is one message exchanged on a ticket, in either direction.
// Responses are append-only: never mutated or deleted. Per-ticket ordering by
// (CreatedAt, ID) is the basis for the conversation history and for the
// "who spoke last" computation.
//
// Fields:
//   - TicketID: owning ticket (indexed together with CreatedAt).
//   - AuthorID: platform identifier of the author (user or staff member).
//   - AuthorRole: "user", "staff", or "admin".
//   - Content: message text (may be empty when an attachment is present).
//   - AttachmentRef: opaque platform file reference, empty for text-only.
//   - AttachmentKind: "photo", "document", "video", ... (empty for text).
type SupportResponse struct {
	ID             uint      `json:"id"          gorm:"primaryKey"`
	TicketID       uint      `json:"ticket_id"   gorm:"not null;index:idx_responses_ticket,priority:1"`
	AuthorID       int64     `json:"author_id"   gorm:"not null;index"`
	AuthorRole     string    `json:"author_role" gorm:"type:varchar(16);not null;check:author_role IN ('user','staff','admin')"`
	Content        string    `json:"content"     gorm:"type:text"`
	AttachmentRef  string    `json:"attachment_ref,omitempty"  gorm:"type:varchar(255)"`
	AttachmentKind string    `json:"attachment_kind,omitempty" gorm:"type:varchar(32)"`
	CreatedAt      time.Time `json:"created_at"  gorm:"index:idx_responses_ticket,priority:2"`

	// Ticket is the owning support episode. Responses are cascade-deleted
	// only if the ticket row itself is removed.
	Ticket SupportTicket `json:"-" gorm:"foreignKey:TicketID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SupportResponse.
func (SupportResponse) TableName() string { return "support_responses" }

// HasPayload reports whether the response carries anything routable.
func (r *SupportResponse) HasPayload() bool {
	return r.Content != "" || r.AttachmentRef != ""
}

// Feedback is a user-submitted rating with an optional comment. Feedback is
// informational: it feeds the trailing-window counters and the notification
// fan-out, and never drives ticket state.
type Feedback struct {
	ID        uint      `json:"id"       gorm:"primaryKey"`
	UserID    int64     `json:"user_id"  gorm:"not null;index"`
	Category  string    `json:"category" gorm:"type:varchar(100)"`
	Rating    int       `json:"rating"   gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment   string    `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// UsageRecord is a lightweight audit entry written by routing operations
// (ticket created, forwarded, closed, reopened). It backs operational
// reporting and is never consulted by routing decisions.
type UsageRecord struct {
	ID        uint      `json:"id"      gorm:"primaryKey"`
	UserID    int64     `json:"user_id" gorm:"index"`
	Action    string    `json:"action"  gorm:"type:varchar(64);not null;index"`
	Detail    string    `json:"detail,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for UsageRecord.
func (UsageRecord) TableName() string { return "usage_records" }

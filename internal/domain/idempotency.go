// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously routed inbound
// message, keyed by (sender_id, scope, key). The messaging platform retries
// webhook deliveries; replaying from this table prevents a retried delivery
// from being routed (and forwarded) twice.
//
// Scope is the thread handle for staff replies and the literal "user" for
// direct user messages, so the same key can be reused across threads.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	SenderID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_sender_scope_key,priority:1"`
	Scope     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_sender_scope_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_sender_scope_key,priority:3"`
	TicketID  uint      `gorm:"type:INTEGER NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

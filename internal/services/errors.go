// Package services defines the business logic for ticket routing, lifecycle,
// and feedback. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Routing and lifecycle errors.
var (
	// ErrInvalidContent is returned when an inbound message carries neither
	// text nor an attachment, or exceeds the configured length limit.
	ErrInvalidContent = errors.New("message content is empty or invalid")

	// ErrUserBlocked indicates the sender is on the block list and the
	// message was discarded without persistence.
	ErrUserBlocked = errors.New("user is blocked")

	// ErrRateLimited indicates the sender exceeded the inbound message rate
	// and the message was discarded without persistence.
	ErrRateLimited = errors.New("user is rate limited")

	// ErrUnknownThread is returned when a staff reply references a thread
	// handle no ticket maps to, even after a registry rebuild.
	ErrUnknownThread = errors.New("no ticket for thread")

	// ErrTicketClosed is returned when a staff reply targets a ticket that
	// has already been closed.
	ErrTicketClosed = errors.New("ticket is closed")

	// ErrTicketNotFound indicates the requested ticket does not exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrDeliveryFailed wraps platform send failures that occur after the
	// message was durably persisted.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrInvalidFeedback is returned when a feedback rating is outside the
	// allowed 1..5 range or the category is empty.
	ErrInvalidFeedback = errors.New("feedback rating must be between 1 and 5")
)

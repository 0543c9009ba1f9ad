// Message routing HTTP handlers.
//
// This file exposes the inbound message endpoints:
//   - POST /messages/user   (attendee message -> ticket + staff thread)
//   - POST /messages/staff  (staff thread reply -> user)
//
// Handlers are transport-thin: they validate input, call the router service,
// and translate results (including delivery failures after a durable write)
// into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventdesk/go-support-backend/internal/domain"
	"github.com/eventdesk/go-support-backend/internal/escalation"
	"github.com/eventdesk/go-support-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// RouterService defines the routing operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RouterService interface {
	// RouteUserMessage maps an attendee message onto the user's open ticket.
	RouteUserMessage(ctx context.Context, in services.UserMessage) (*services.RoutingResult, error)
	// RouteStaffReply maps a staff thread message back to the ticket's user.
	RouteStaffReply(ctx context.Context, in services.StaffReply) (*services.RoutingResult, error)
	// CloseTicket transitions a ticket to closed; idempotent.
	CloseTicket(ctx context.Context, ticketID uint, actorID int64) (bool, error)
	// ReopenTicket reopens a closed ticket.
	ReopenTicket(ctx context.Context, ticketID uint, actorID int64) (bool, error)
}

// FeedbackService defines feedback capture consumed by HTTP handlers.
type FeedbackService interface {
	// Submit validates and stores one feedback entry.
	Submit(ctx context.Context, userID int64, category string, rating int, comment string) (*domain.Feedback, error)
}

// Monitor exposes the escalation monitor's latest sweep.
type Monitor interface {
	Snapshot() escalation.Snapshot
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for messages, tickets, feedback, and stats.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	routerSvc RouterService
	fbSvc     FeedbackService
	monitor   Monitor
	stats     StatsSource
}

// New constructs a Handlers instance bound to the given services.
func New(routerSvc RouterService, fbSvc FeedbackService, monitor Monitor, stats StatsSource) *Handlers {
	return &Handlers{routerSvc: routerSvc, fbSvc: fbSvc, monitor: monitor, stats: stats}
}

//
// DTOs
//

// UserMessageRequest is the JSON payload for an inbound attendee message.
type UserMessageRequest struct {
	SenderID       int64  `json:"sender_id" binding:"required" example:"823441"`
	DisplayName    string `json:"display_name" example:"Ada"`
	Locale         string `json:"locale" example:"en"`
	Email          string `json:"email" example:"ada@example.com"`
	Content        string `json:"content" example:"Where is the lost and found?"`
	AttachmentRef  string `json:"attachment_ref,omitempty"`
	AttachmentKind string `json:"attachment_kind,omitempty" example:"photo"`
	MessageKey     string `json:"message_key,omitempty" example:"upd-99817"`
}

// StaffReplyRequest is the JSON payload for an inbound staff thread message.
type StaffReplyRequest struct {
	ThreadHandle   string `json:"thread_handle" binding:"required" example:"thread-42"`
	StaffID        int64  `json:"staff_id" binding:"required" example:"51"`
	Admin          bool   `json:"admin"`
	Content        string `json:"content" example:"It is next to gate B."`
	AttachmentRef  string `json:"attachment_ref,omitempty"`
	AttachmentKind string `json:"attachment_kind,omitempty"`
	MessageKey     string `json:"message_key,omitempty"`
}

//
// Handlers
//

// RouteUserMessage godoc
// @ID          routeUserMessage
// @Summary     Route an attendee message
// @Description Appends the message to the sender's open ticket, creating a ticket and staff thread when none exists, then forwards it to the staff side.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.UserMessageRequest  true  "Inbound user message"
//
// @Success     200  {object}  services.RoutingResult
// @Success     202  {object}  services.RoutingResult  "Persisted, delivery pending"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized content"
// @Failure     403  {object}  handlers.ErrorResponse  "Sender is blocked"
// @Failure     429  {object}  handlers.ErrorResponse  "Sender is rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/user [post]
func (h *Handlers) RouteUserMessage(c *gin.Context) {
	var req UserMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.routerSvc.RouteUserMessage(c.Request.Context(), services.UserMessage{
		SenderID:       req.SenderID,
		DisplayName:    req.DisplayName,
		Locale:         req.Locale,
		Email:          req.Email,
		Content:        req.Content,
		AttachmentRef:  req.AttachmentRef,
		AttachmentKind: req.AttachmentKind,
		MessageKey:     req.MessageKey,
	})
	switch {
	case err == nil:
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrDeliveryFailed):
		// The message is durable; only the forward failed.
		ok(c, http.StatusAccepted, res)
	case errors.Is(err, services.ErrInvalidContent):
		fail(c, http.StatusBadRequest, ErrCodeInvalidContent, err.Error())
	case errors.Is(err, services.ErrUserBlocked):
		fail(c, http.StatusForbidden, ErrCodeUserBlocked, err.Error())
	case errors.Is(err, services.ErrRateLimited):
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeRouteFailed, err.Error())
	}
}

// RouteStaffReply godoc
// @ID          routeStaffReply
// @Summary     Route a staff thread reply
// @Description Maps a staff-side thread message back to the ticket's user and delivers it.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.StaffReplyRequest  true  "Inbound staff reply"
//
// @Success     200  {object}  services.RoutingResult
// @Success     202  {object}  services.RoutingResult  "Persisted, delivery pending"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized content"
// @Failure     404  {object}  handlers.ErrorResponse  "No ticket for thread"
// @Failure     409  {object}  handlers.ErrorResponse  "Ticket is closed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/staff [post]
func (h *Handlers) RouteStaffReply(c *gin.Context) {
	var req StaffReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.routerSvc.RouteStaffReply(c.Request.Context(), services.StaffReply{
		ThreadHandle:   req.ThreadHandle,
		StaffID:        req.StaffID,
		Admin:          req.Admin,
		Content:        req.Content,
		AttachmentRef:  req.AttachmentRef,
		AttachmentKind: req.AttachmentKind,
		MessageKey:     req.MessageKey,
	})
	switch {
	case err == nil:
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrDeliveryFailed):
		ok(c, http.StatusAccepted, res)
	case errors.Is(err, services.ErrInvalidContent):
		fail(c, http.StatusBadRequest, ErrCodeInvalidContent, err.Error())
	case errors.Is(err, services.ErrUnknownThread):
		fail(c, http.StatusNotFound, ErrCodeUnknownThread, err.Error())
	case errors.Is(err, services.ErrTicketClosed):
		fail(c, http.StatusConflict, ErrCodeTicketClosed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeRouteFailed, err.Error())
	}
}

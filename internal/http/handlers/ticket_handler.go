// Ticket lifecycle HTTP handlers.
//
// This file exposes REST endpoints for ticket resources:
//   - GET    /tickets                 (list, paginated, ETag support)
//   - GET    /tickets/{id}/responses  (transcript, paginated)
//   - POST   /tickets/{id}/close
//   - POST   /tickets/{id}/reopen
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/eventdesk/go-support-backend/internal/domain"
	"github.com/eventdesk/go-support-backend/internal/repo"
	"github.com/eventdesk/go-support-backend/internal/services"
	"github.com/eventdesk/go-support-backend/internal/utils"
)

// StatsSource provides read-only store access for list endpoints and the
// operational stats surface. UrgentThreshold mirrors the escalation monitor's
// setting so GET /stats counts urgency with the same cutoff the sweeps use;
// FeedbackWindow bounds the trailing feedback count. Zero values fall back to
// 2h and 24h.
type StatsSource struct {
	DB *gorm.DB

	UrgentThreshold time.Duration
	FeedbackWindow  time.Duration
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTicketsResponse wraps a page of tickets and pagination information.
type ListTicketsResponse struct {
	Tickets    []domain.SupportTicket `json:"tickets"`
	Pagination Pagination             `json:"pagination"`
}

// ListResponsesResponse wraps a page of a ticket's transcript.
type ListResponsesResponse struct {
	Responses  []domain.SupportResponse `json:"responses"`
	Pagination Pagination               `json:"pagination"`
}

// LifecycleResponse reports the outcome of a close or reopen.
type LifecycleResponse struct {
	TicketID uint `json:"ticket_id"`
	Changed  bool `json:"changed"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.ClampInt(utils.AtoiDefault(c.Query("page"), defaultPage), 1, 1<<30)
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// ticketID parses the :id path param.
func ticketID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// actorID reads the acting staff member from the X-Staff-ID header.
func actorID(c *gin.Context) int64 {
	v, _ := strconv.ParseInt(c.GetHeader("X-Staff-ID"), 10, 64)
	return v
}

// ListTickets godoc
// @ID          listTickets
// @Summary     List tickets (paginated)
// @Description Returns a page of tickets, optionally filtered by status. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Tickets
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "Filter by status (open|closed)"
// @Param       page           query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListTicketsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets [get]
func (h *Handlers) ListTickets(c *gin.Context) {
	ctx := c.Request.Context()
	status := c.Query("status")
	if status != "" && status != domain.TicketStatusOpen && status != domain.TicketStatusClosed {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be open or closed")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.TicketsStats(ctx, h.stats.DB, status); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"tickets:%s:%d:%d"`, status, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	total, err := repo.CountTickets(ctx, h.stats.DB, status)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListTicketsPage(ctx, h.stats.DB, status, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTicketsResponse{
		Tickets: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ListTicketResponses godoc
// @ID          listTicketResponses
// @Summary     List a ticket's transcript (paginated)
// @Tags        Tickets
// @Produce     json
//
// @Param       id         path   int  true  "Ticket ID"
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListResponsesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/responses [get]
func (h *Handlers) ListTicketResponses(c *gin.Context) {
	id, okID := ticketID(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	if _, err := repo.GetTicket(ctx, h.stats.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "ticket not found")
		} else {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	page, pageSize := clampPagination(c)

	total, err := repo.CountResponses(h.stats.DB.WithContext(ctx), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListResponsesPage(h.stats.DB.WithContext(ctx), id, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListResponsesResponse{
		Responses: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// CloseTicket godoc
// @ID          closeTicket
// @Summary     Close a ticket
// @Description Transitions an open ticket to closed. Closing an already closed ticket succeeds with changed=false.
// @Tags        Tickets
// @Produce     json
//
// @Param       id          path    int     true  "Ticket ID"
// @Param       X-Staff-ID  header  string  false "Acting staff member"
//
// @Success     200  {object} handlers.LifecycleResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/close [post]
func (h *Handlers) CloseTicket(c *gin.Context) {
	id, okID := ticketID(c)
	if !okID {
		return
	}
	changed, err := h.routerSvc.CloseTicket(c.Request.Context(), id, actorID(c))
	switch {
	case err == nil:
		ok(c, http.StatusOK, LifecycleResponse{TicketID: id, Changed: changed})
	case errors.Is(err, services.ErrTicketNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ticket not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ReopenTicket godoc
// @ID          reopenTicket
// @Summary     Reopen a closed ticket
// @Tags        Tickets
// @Produce     json
//
// @Param       id          path    int     true  "Ticket ID"
// @Param       X-Staff-ID  header  string  false "Acting staff member"
//
// @Success     200  {object} handlers.LifecycleResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/reopen [post]
func (h *Handlers) ReopenTicket(c *gin.Context) {
	id, okID := ticketID(c)
	if !okID {
		return
	}
	changed, err := h.routerSvc.ReopenTicket(c.Request.Context(), id, actorID(c))
	switch {
	case err == nil:
		ok(c, http.StatusOK, LifecycleResponse{TicketID: id, Changed: changed})
	case errors.Is(err, services.ErrTicketNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ticket not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// Operational stats HTTP handler.
//
// Exposes GET /stats: ticket counts, urgency snapshot from the escalation
// monitor, and trailing 24h aggregates for feedback and response time.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eventdesk/go-support-backend/internal/escalation"
	"github.com/eventdesk/go-support-backend/internal/repo"
)

// StatsResponse is the operational summary returned by GET /stats.
type StatsResponse struct {
	OpenTickets          int64                `json:"open_tickets"`
	UrgentTickets        int64                `json:"urgent_tickets"`
	TotalUsers           int64                `json:"total_users"`
	FeedbackLastDay      int64                `json:"feedback_last_day"`
	AvgStaffResponseMins float64              `json:"avg_staff_response_minutes"`
	LastSweep            *escalation.Snapshot `json:"last_sweep,omitempty"`
}

// GetStats godoc
// @ID          getStats
// @Summary     Operational statistics
// @Tags        Stats
// @Produce     json
//
// @Success     200  {object}  handlers.StatsResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	open, err := repo.OpenTicketCount(ctx, h.stats.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	threshold := h.stats.UrgentThreshold
	if threshold <= 0 {
		threshold = 2 * time.Hour
	}
	urgent, err := repo.UrgentTicketCount(ctx, h.stats.DB, threshold, now)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	users, err := repo.TotalUserCount(ctx, h.stats.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	window := h.stats.FeedbackWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	// Secondary aggregates are best effort.
	fbCount, _ := repo.RecentFeedbackCount(ctx, h.stats.DB, window, now)
	avgMins, _ := repo.AvgStaffResponseMinutes(ctx, h.stats.DB, window, now)

	resp := StatsResponse{
		OpenTickets:          open,
		UrgentTickets:        urgent,
		TotalUsers:           users,
		FeedbackLastDay:      fbCount,
		AvgStaffResponseMins: avgMins,
	}
	if h.monitor != nil {
		snap := h.monitor.Snapshot()
		if !snap.SweptAt.IsZero() {
			resp.LastSweep = &snap
		}
	}
	ok(c, http.StatusOK, resp)
}

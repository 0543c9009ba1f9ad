// Feedback HTTP handler.
//
// Exposes POST /feedback for attendees to rate their support experience.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventdesk/go-support-backend/internal/services"
)

// FeedbackRequest is the JSON payload for submitting feedback.
type FeedbackRequest struct {
	UserID   int64  `json:"user_id" binding:"required" example:"823441"`
	Category string `json:"category" binding:"required" example:"food"`
	Rating   int    `json:"rating" binding:"required" example:"4"`
	Comment  string `json:"comment,omitempty" example:"Great coffee stand"`
}

// SubmitFeedback godoc
// @ID          submitFeedback
// @Summary     Submit feedback
// @Description Records a category rating (1..5) with an optional comment.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.FeedbackRequest  true  "Feedback payload"
//
// @Success     201  {object}  domain.Feedback
// @Failure     400  {object}  handlers.ErrorResponse "Invalid rating or category"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /feedback [post]
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	fb, err := h.fbSvc.Submit(c.Request.Context(), req.UserID, req.Category, req.Rating, req.Comment)
	switch {
	case err == nil:
		ok(c, http.StatusCreated, fb)
	case errors.Is(err, services.ErrInvalidFeedback):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

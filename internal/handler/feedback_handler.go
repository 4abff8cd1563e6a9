package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// FeedbackHandler accepts public contact form submissions.
type FeedbackHandler struct {
	service *service.FeedbackService
}

// NewFeedbackHandler creates a new handler.
func NewFeedbackHandler(svc *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{service: svc}
}

// Submit godoc
// @Summary Submit feedback
// @Description Store a contact form message
// @Tags Feedback
// @Accept json
// @Produce json
// @Param payload body service.FeedbackRequest true "Feedback payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /feedback [post]
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req service.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}

	feedback, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, feedback)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// EnrollmentHandler exposes course registration and the student dashboard.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll in a course
// @Description Register the current user on a published course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollment, err := h.service.Enroll(c.Request.Context(), claims.UserID, c.Param("id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, enrollment)
}

// ListMine godoc
// @Summary List my courses
// @Description List every course the current user is enrolled in with progress
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, courses, nil)
}

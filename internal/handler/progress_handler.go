package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// ProgressHandler exposes lesson watch reporting and progress reads.
type ProgressHandler struct {
	service *service.ProgressService
	metrics *service.MetricsService
}

// NewProgressHandler creates a new handler.
func NewProgressHandler(svc *service.ProgressService, metrics *service.MetricsService) *ProgressHandler {
	return &ProgressHandler{service: svc, metrics: metrics}
}

// ReportLesson godoc
// @Summary Report lesson watch position
// @Description Record the furthest watched second of a lesson and recompute course progress
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param lessonId path string true "Lesson ID"
// @Param payload body object true "Watch position, e.g. {\"lastWatchedSecond\": 125}"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/lessons/{lessonId}/progress [post]
func (h *ProgressHandler) ReportLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	watchedSeconds, err := parseWatchedSeconds(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	report, err := h.service.ReportLessonProgress(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("lessonId"), watchedSeconds)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordProgressReport(report.Completed)
	response.JSON(c, http.StatusOK, report, nil)
}

// GetLesson godoc
// @Summary Get lesson watch state
// @Description Fetch the stored watch state for one lesson; never-watched lessons yield zeros
// @Tags Progress
// @Produce json
// @Param id path string true "Course ID"
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/lessons/{lessonId}/progress [get]
func (h *ProgressHandler) GetLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.service.GetLessonProgress(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("lessonId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// SetCourse godoc
// @Summary Set overall course progress
// @Description Write a coarse percentage; rejected once lesson-level activity exists
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body object true "Progress payload, e.g. {\"progress\": 40}"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/progress [put]
func (h *ProgressHandler) SetCourse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Progress *int `json:"progress"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Progress == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "progress value required"))
		return
	}

	update, err := h.service.SetCourseProgress(c.Request.Context(), claims.UserID, c.Param("id"), *payload.Progress)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, update, nil)
}

// parseWatchedSeconds accepts the shapes video players are known to send: a
// bare number, {"lastWatchedSecond": n}, or an object whose single value is
// a number.
func parseWatchedSeconds(c *gin.Context) (float64, error) {
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid progress payload")
	}

	var bare float64
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "watch position must be a number or an object containing one")
	}

	if raw, ok := object["lastWatchedSecond"]; ok {
		var value float64
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0, appErrors.Clone(appErrors.ErrValidation, "lastWatchedSecond must be a number")
		}
		return value, nil
	}

	if len(object) == 1 {
		for _, raw := range object {
			var value float64
			if err := json.Unmarshal(raw, &value); err == nil {
				return value, nil
			}
		}
	}

	return 0, appErrors.Clone(appErrors.ErrValidation, "watch position must be a number or an object containing one")
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/middleware"
	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// StatsHandler exposes instructor-facing aggregates and exports.
type StatsHandler struct {
	service *service.StatsService
}

// NewStatsHandler creates a new handler.
func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// CourseStats godoc
// @Summary Course statistics
// @Description Aggregate enrollment counts, completion rate and average progress
// @Tags Stats
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/stats [get]
func (h *StatsHandler) CourseStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, cached, err := h.service.CourseStats(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Roster godoc
// @Summary Course roster
// @Description List enrolled students with their progress
// @Tags Stats
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/students [get]
func (h *StatsHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	roster, err := h.service.Roster(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportRosterCSV godoc
// @Summary Export roster as CSV
// @Tags Stats
// @Produce text/csv
// @Param id path string true "Course ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/students/export [get]
func (h *StatsHandler) ExportRosterCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload, err := h.service.ExportRosterCSV(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Blob(c, "text/csv", "roster.csv", payload)
}

// ExportReportPDF godoc
// @Summary Export course report as PDF
// @Tags Stats
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/report [get]
func (h *StatsHandler) ExportReportPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload, err := h.service.ExportCourseReportPDF(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Blob(c, "application/pdf", "course-report.pdf", payload)
}

// CreateExport godoc
// @Summary Archive an export with a shareable download link
// @Description Render the roster CSV or report PDF, store it and return a signed, expiring download token
// @Tags Stats
// @Produce json
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/exports [post]
func (h *StatsHandler) CreateExport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := c.DefaultQuery("format", "csv")
	artifact, err := h.service.ArchiveExport(c.Request.Context(), claims, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, artifact)
}

// Download godoc
// @Summary Download an archived export
// @Description Stream a stored export; the signed token in the path is the authorization
// @Tags Stats
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *StatsHandler) Download(c *gin.Context) {
	payload, contentType, err := h.service.OpenExport(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := "export.csv"
	if contentType == "application/pdf" {
		filename = "export.pdf"
	}
	response.Blob(c, contentType, filename, payload)
}

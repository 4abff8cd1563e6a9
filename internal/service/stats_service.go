package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/export"
	"github.com/skillforge/skillforge-api/pkg/jobs"
	"github.com/skillforge/skillforge-api/pkg/storage"
)

type statsEnrollmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
	CourseAggregates(ctx context.Context, courseID string) (total int, completed int, average float64, err error)
}

type statsCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	CountLessons(ctx context.Context, courseID string) (int, error)
	UpdateAverageProgress(ctx context.Context, id string, average float64) error
}

const courseStatsJobType = "course_stats_refresh"

func courseStatsCacheKey(courseID string) string {
	return "stats:course:" + courseID
}

// StatsService produces instructor-facing aggregates, rosters and exports.
// Aggregates are cached and refreshed in the background after progress
// writes.
type StatsService struct {
	enrollments statsEnrollmentRepository
	courses     statsCourseRepository
	cache       *CacheService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	queue       *jobs.Queue
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewStatsService constructs a StatsService. Attach the refresh queue with
// AttachQueue once it has been built around HandleRefreshJob.
func NewStatsService(enrollments statsEnrollmentRepository, courses statsCourseRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &StatsService{
		enrollments: enrollments,
		courses:     courses,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// AttachQueue wires the background refresh queue.
func (s *StatsService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// AttachExportStore wires the archive used for stored exports and their
// signed download links. Without it ArchiveExport and OpenExport refuse.
func (s *StatsService) AttachExportStore(store *storage.LocalStorage, signer *storage.SignedURLSigner) {
	s.store = store
	s.signer = signer
}

// CourseStats returns enrollment aggregates for a course the actor manages.
// The second return reports whether the cache served the result.
func (s *StatsService) CourseStats(ctx context.Context, actor *models.JWTClaims, courseID string) (*models.CourseStats, bool, error) {
	if _, err := s.loadManagedCourse(ctx, actor, courseID); err != nil {
		return nil, false, err
	}

	var cached models.CourseStats
	if hit, _ := s.cache.Get(ctx, courseStatsCacheKey(courseID), &cached); hit {
		return &cached, true, nil
	}

	stats, err := s.computeStats(ctx, courseID)
	if err != nil {
		return nil, false, err
	}

	if err := s.cache.Set(ctx, courseStatsCacheKey(courseID), stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache course stats", zap.String("course_id", courseID), zap.Error(err))
	}

	return stats, false, nil
}

// Roster returns the enrolled students of a managed course with progress.
func (s *StatsService) Roster(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.EnrolledStudent, error) {
	if _, err := s.loadManagedCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}

	roster, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	return roster, nil
}

// ExportRosterCSV renders the roster as a CSV document.
func (s *StatsService) ExportRosterCSV(ctx context.Context, actor *models.JWTClaims, courseID string) ([]byte, error) {
	roster, err := s.Roster(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	payload, err := s.csv.Render(rosterDataset(roster))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	return payload, nil
}

// ExportCourseReportPDF renders the aggregate summary plus roster as a PDF.
func (s *StatsService) ExportCourseReportPDF(ctx context.Context, actor *models.JWTClaims, courseID string) ([]byte, error) {
	course, err := s.loadManagedCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	stats, err := s.computeStats(ctx, courseID)
	if err != nil {
		return nil, err
	}

	roster, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}

	summary := export.Summary{
		Title: fmt.Sprintf("Course Report: %s", course.Title),
		Lines: [][2]string{
			{"Generated", stats.GeneratedAt.Format(time.RFC3339)},
			{"Lessons", strconv.Itoa(stats.LessonCount)},
			{"Enrolled students", strconv.Itoa(stats.TotalStudents)},
			{"Completed", strconv.Itoa(stats.CompletedCount)},
			{"Completion rate", fmt.Sprintf("%.1f%%", stats.CompletionRate)},
			{"Average progress", fmt.Sprintf("%.1f%%", stats.AverageProgress)},
		},
	}

	payload, err := s.pdf.Render(summary, rosterDataset(roster))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render course report pdf")
	}
	return payload, nil
}

// ArchiveExport renders the roster CSV or course report PDF, stores it under
// the exports directory and returns a signed download token. format is "csv"
// or "pdf".
func (s *StatsService) ArchiveExport(ctx context.Context, actor *models.JWTClaims, courseID, format string) (*models.ExportArtifact, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "export archive is not configured")
	}

	var payload []byte
	var err error
	switch format {
	case "csv":
		payload, err = s.ExportRosterCSV(ctx, actor, courseID)
	case "pdf":
		payload, err = s.ExportCourseReportPDF(ctx, actor, courseID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, err
	}

	exportID := uuid.NewString()
	relPath := path.Join(courseID, exportID+"."+format)
	if _, err := s.store.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	return &models.ExportArtifact{
		ExportID:  exportID,
		CourseID:  courseID,
		Format:    format,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenExport resolves a signed download token to the stored file contents.
// The token itself is the authorization; expired or tampered tokens fail.
func (s *StatsService) OpenExport(token string) ([]byte, string, error) {
	if s.store == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "export archive is not configured")
	}

	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "download link is invalid or expired")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	defer file.Close() //nolint:errcheck

	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export")
	}

	contentType := "text/csv"
	if path.Ext(relPath) == ".pdf" {
		contentType = "application/pdf"
	}
	return payload, contentType, nil
}

// EnqueueCourseRefresh schedules a background recomputation of the course's
// cached aggregates and stored average progress. Failures only log; the
// progress write that triggered the refresh has already committed.
func (s *StatsService) EnqueueCourseRefresh(courseID string) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    courseStatsJobType,
		Payload: courseID,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue course stats refresh", zap.String("course_id", courseID), zap.Error(err))
	}
}

// HandleRefreshJob is the queue handler recomputing course aggregates.
func (s *StatsService) HandleRefreshJob(ctx context.Context, job jobs.Job) error {
	courseID, ok := job.Payload.(string)
	if !ok || courseID == "" {
		s.logger.Warn("discarding malformed stats refresh job", zap.String("job_id", job.ID))
		return nil
	}

	stats, err := s.computeStats(ctx, courseID)
	if err != nil {
		return fmt.Errorf("compute stats for course %s: %w", courseID, err)
	}

	if err := s.courses.UpdateAverageProgress(ctx, courseID, stats.AverageProgress); err != nil {
		return fmt.Errorf("store average progress for course %s: %w", courseID, err)
	}

	if err := s.cache.Set(ctx, courseStatsCacheKey(courseID), stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to refresh cached course stats", zap.String("course_id", courseID), zap.Error(err))
	}

	return nil
}

func (s *StatsService) computeStats(ctx context.Context, courseID string) (*models.CourseStats, error) {
	total, completed, average, err := s.enrollments.CourseAggregates(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate enrollments")
	}

	lessons, err := s.courses.CountLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}

	var completionRate float64
	if total > 0 {
		completionRate = math.Round(float64(completed)/float64(total)*1000) / 10
	}

	return &models.CourseStats{
		CourseID:        courseID,
		TotalStudents:   total,
		CompletedCount:  completed,
		CompletionRate:  completionRate,
		AverageProgress: math.Round(average*10) / 10,
		LessonCount:     lessons,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

func (s *StatsService) loadManagedCourse(ctx context.Context, actor *models.JWTClaims, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	return course, nil
}

func rosterDataset(roster []models.EnrolledStudent) export.Dataset {
	headers := []string{"Name", "Email", "Progress", "Completed", "Enrolled At"}
	rows := make([]map[string]string, 0, len(roster))
	for _, student := range roster {
		completed := "no"
		if student.Completed {
			completed = "yes"
		}
		rows = append(rows, map[string]string{
			"Name":        student.FullName,
			"Email":       student.Email,
			"Progress":    strconv.Itoa(student.Progress) + "%",
			"Completed":   completed,
			"Enrolled At": student.EnrolledAt.Format("2006-01-02"),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

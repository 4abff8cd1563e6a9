package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type progressEnrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	FindLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*models.LessonProgress, error)
	ListLessonProgress(ctx context.Context, enrollmentID string) ([]models.LessonProgress, error)
	HasLessonProgress(ctx context.Context, enrollmentID string) (bool, error)
	SaveProgress(ctx context.Context, enrollment *models.Enrollment, progress *models.LessonProgress) error
	UpdateCourseProgress(ctx context.Context, enrollmentID string, progress int, completed bool, updatedAt time.Time) error
}

type progressCourseRepository interface {
	FindLesson(ctx context.Context, courseID, lessonID string) (*models.Lesson, error)
	ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error)
}

type statsRefresher interface {
	EnqueueCourseRefresh(courseID string)
}

// ProgressService applies lesson watch reports to enrollments and derives
// course-level progress from them.
type ProgressService struct {
	enrollments progressEnrollmentRepository
	courses     progressCourseRepository
	stats       statsRefresher
	logger      *zap.Logger
}

// NewProgressService constructs a ProgressService. stats may be nil when no
// background refresh is wired.
func NewProgressService(enrollments progressEnrollmentRepository, courses progressCourseRepository, stats statsRefresher, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{enrollments: enrollments, courses: courses, stats: stats, logger: logger}
}

// ReportLessonProgress records a watch position for one lesson and
// recomputes the enrollment's course percentage from the full set of lesson
// records. The lesson record and the enrollment are written in a single
// transaction; nothing is persisted when validation or any lookup fails.
// Repeated reports for the same position are idempotent.
func (s *ProgressService) ReportLessonProgress(ctx context.Context, userID, courseID, lessonID string, watchedSeconds float64) (*models.ProgressReport, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	lesson, err := s.courses.FindLesson(ctx, courseID, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	lessonPct, lessonCompleted, err := ComputeLessonProgress(watchedSeconds, lesson.DurationMinutes)
	if err != nil {
		return nil, err
	}

	lessons, err := s.courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course lessons")
	}

	records, err := s.enrollments.ListLessonProgress(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson progress")
	}

	now := time.Now().UTC()
	record := &models.LessonProgress{
		ID:                uuid.NewString(),
		EnrollmentID:      enrollment.ID,
		LessonID:          lessonID,
		LastWatchedSecond: watchedSeconds,
		Progress:          lessonPct,
		Completed:         lessonCompleted,
		UpdatedAt:         now,
	}
	for _, existing := range records {
		if existing.LessonID == lessonID {
			record.ID = existing.ID
			break
		}
	}

	// Only lessons that still belong to the course count toward the total;
	// records for removed lessons are ignored.
	known := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		known[l.ID] = true
	}
	completedCount := 0
	for _, existing := range records {
		if existing.LessonID == lessonID || !known[existing.LessonID] {
			continue
		}
		if existing.Completed {
			completedCount++
		}
	}
	if lessonCompleted {
		completedCount++
	}

	coursePct := ComputeCourseProgress(len(lessons), completedCount)

	enrollment.Progress = coursePct
	enrollment.Completed = len(lessons) > 0 && completedCount == len(lessons)
	enrollment.LastUpdated = now

	if err := s.enrollments.SaveProgress(ctx, enrollment, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save progress")
	}

	if s.stats != nil {
		s.stats.EnqueueCourseRefresh(courseID)
	}

	return &models.ProgressReport{
		Success:           true,
		LessonProgress:    lessonPct,
		CourseProgress:    coursePct,
		Completed:         lessonCompleted,
		LastWatchedSecond: watchedSeconds,
	}, nil
}

// GetLessonProgress returns the stored watch state for one lesson. A lesson
// that exists but was never reported yields a zero-valued record rather than
// an error.
func (s *ProgressService) GetLessonProgress(ctx context.Context, userID, courseID, lessonID string) (*models.LessonProgress, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if _, err := s.courses.FindLesson(ctx, courseID, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	record, err := s.enrollments.FindLessonProgress(ctx, enrollment.ID, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.LessonProgress{
				EnrollmentID:      enrollment.ID,
				LessonID:          lessonID,
				LastWatchedSecond: 0,
				Progress:          0,
				Completed:         false,
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson progress")
	}

	return record, nil
}

// SetCourseProgress writes an overall percentage directly on the enrollment.
// It is rejected once any lesson-level record exists, because from then on
// the course percentage is derived from lesson activity. Writes never move
// the percentage backwards.
func (s *ProgressService) SetCourseProgress(ctx context.Context, userID, courseID string, percentage int) (*models.CourseProgressUpdate, error) {
	if percentage < 0 || percentage > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "progress must be between 0 and 100")
	}

	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	hasRecords, err := s.enrollments.HasLessonProgress(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect lesson progress")
	}
	if hasRecords {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course progress is derived from lesson activity")
	}

	newPct := enrollment.Progress
	if percentage > newPct {
		newPct = percentage
	}
	completed := newPct == 100

	if err := s.enrollments.UpdateCourseProgress(ctx, enrollment.ID, newPct, completed, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course progress")
	}

	if s.stats != nil {
		s.stats.EnqueueCourseRefresh(courseID)
	}

	return &models.CourseProgressUpdate{Success: true, Progress: newPct, Completed: completed}, nil
}

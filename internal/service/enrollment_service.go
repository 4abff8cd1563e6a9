package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Exists(ctx context.Context, userID, courseID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	ListForUser(ctx context.Context, userID string) ([]models.EnrolledCourse, error)
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	IncrementEnrolled(ctx context.Context, id string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EnrollmentService handles course registration and the student dashboard
// listing.
type EnrollmentService struct {
	repo    enrollmentRepository
	courses enrollmentCourseRepository
	audit   auditWriter
	logger  *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseRepository, audit auditWriter, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, audit: audit, logger: logger}
}

// Enroll registers the user on a published course with zero progress.
// Enrolling twice on the same course is a conflict.
func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID string, meta models.RequestMeta) (*models.Enrollment, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if !course.Published {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not open for enrollment")
	}

	exists, err := s.repo.Exists(ctx, userID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "already enrolled in this course")
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:          uuid.NewString(),
		UserID:      userID,
		CourseID:    courseID,
		Progress:    0,
		Completed:   false,
		EnrolledAt:  now,
		LastUpdated: now,
	}

	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err := s.courses.IncrementEnrolled(ctx, courseID); err != nil {
		s.logger.Warn("failed to bump enrolled student count", zap.String("course_id", courseID), zap.Error(err))
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionEnroll,
		Resource:   "enrollments",
		ResourceID: &enrollment.ID,
		NewValues:  []byte(fmt.Sprintf(`{"course_id":%q}`, courseID)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record enroll audit log", zap.Error(err))
	}

	return enrollment, nil
}

// ListForUser returns every course the user is enrolled in with its progress.
func (s *EnrollmentService) ListForUser(ctx context.Context, userID string) ([]models.EnrolledCourse, error) {
	courses, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return courses, nil
}

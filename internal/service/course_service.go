package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error)
	FindLesson(ctx context.Context, courseID, lessonID string) (*models.Lesson, error)
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	UpdateLesson(ctx context.Context, lesson *models.Lesson) error
	DeleteLesson(ctx context.Context, courseID, lessonID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Only embeddable YouTube links are accepted as lesson videos.
var youtubeURLPattern = regexp.MustCompile(`^https://(www\.)?(youtube\.com/(watch\?v=|embed/)|youtu\.be/)[A-Za-z0-9_-]{6,}`)

// CreateCourseRequest is the payload for publishing a new course.
type CreateCourseRequest struct {
	Title       string             `json:"title" validate:"required"`
	Description string             `json:"description" validate:"required"`
	Category    string             `json:"category" validate:"required"`
	Level       models.CourseLevel `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	Thumbnail   string             `json:"thumbnail" validate:"omitempty,url"`
	Price       float64            `json:"price" validate:"gte=0"`
	Published   bool               `json:"published"`
}

// UpdateCourseRequest is the payload for editing an existing course.
type UpdateCourseRequest struct {
	Title       string             `json:"title" validate:"required"`
	Description string             `json:"description" validate:"required"`
	Category    string             `json:"category" validate:"required"`
	Level       models.CourseLevel `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	Thumbnail   string             `json:"thumbnail" validate:"omitempty,url"`
	Price       float64            `json:"price" validate:"gte=0"`
	Published   *bool              `json:"published"`
}

// LessonRequest is the payload for creating or editing a lesson.
type LessonRequest struct {
	Title           string  `json:"title" validate:"required"`
	Content         string  `json:"content"`
	VideoURL        string  `json:"video_url"`
	DurationMinutes float64 `json:"duration_minutes" validate:"gte=0"`
}

// CourseService manages the catalog and its lessons.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns catalog entries matching the filter with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return courses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a course with its ordered lessons and instructor name.
// Unpublished courses are visible only to their instructor and admins.
func (s *CourseService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !canViewCourse(actor, &detail.Course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return detail, nil
}

// Create adds a new course owned by the acting instructor.
func (s *CourseService) Create(ctx context.Context, actor *models.JWTClaims, req CreateCourseRequest, meta models.RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Level:        req.Level,
		Thumbnail:    req.Thumbnail,
		Price:        req.Price,
		InstructorID: actor.UserID,
		Published:    req.Published,
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionCourseCreate,
		Resource:   "courses",
		ResourceID: &course.ID,
		NewValues:  []byte(fmt.Sprintf(`{"title":%q,"published":%t}`, course.Title, course.Published)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record course create audit log", zap.Error(err))
	}

	return course, nil
}

// Update edits a course. Instructors can only touch their own courses;
// admins can touch any.
func (s *CourseService) Update(ctx context.Context, actor *models.JWTClaims, courseID string, req UpdateCourseRequest, meta models.RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.loadOwnedCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	course.Title = req.Title
	course.Description = req.Description
	course.Category = req.Category
	course.Level = req.Level
	course.Thumbnail = req.Thumbnail
	course.Price = req.Price
	if req.Published != nil {
		course.Published = *req.Published
	}
	course.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionCourseUpdate,
		Resource:   "courses",
		ResourceID: &course.ID,
		NewValues:  []byte(fmt.Sprintf(`{"title":%q,"published":%t}`, course.Title, course.Published)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record course update audit log", zap.Error(err))
	}

	return course, nil
}

// Delete removes a course and all of its lessons.
func (s *CourseService) Delete(ctx context.Context, actor *models.JWTClaims, courseID string, meta models.RequestMeta) error {
	course, err := s.loadOwnedCourse(ctx, actor, courseID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, course.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionCourseDelete,
		Resource:   "courses",
		ResourceID: &course.ID,
		NewValues:  []byte(fmt.Sprintf(`{"title":%q}`, course.Title)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record course delete audit log", zap.Error(err))
	}

	return nil
}

// ListLessons returns the ordered lessons of a course.
func (s *CourseService) ListLessons(ctx context.Context, actor *models.JWTClaims, courseID string) ([]models.Lesson, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !canViewCourse(actor, course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	lessons, err := s.repo.ListLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// AddLesson appends a lesson to an owned course.
func (s *CourseService) AddLesson(ctx context.Context, actor *models.JWTClaims, courseID string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if req.VideoURL != "" && !youtubeURLPattern.MatchString(req.VideoURL) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "video url must be an embeddable youtube link")
	}

	if _, err := s.loadOwnedCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}

	lesson := &models.Lesson{
		ID:              uuid.NewString(),
		CourseID:        courseID,
		Title:           req.Title,
		Content:         req.Content,
		VideoURL:        req.VideoURL,
		DurationMinutes: req.DurationMinutes,
	}

	if err := s.repo.CreateLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	return lesson, nil
}

// UpdateLesson edits a lesson of an owned course.
func (s *CourseService) UpdateLesson(ctx context.Context, actor *models.JWTClaims, courseID, lessonID string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if req.VideoURL != "" && !youtubeURLPattern.MatchString(req.VideoURL) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "video url must be an embeddable youtube link")
	}

	if _, err := s.loadOwnedCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}

	lesson, err := s.repo.FindLesson(ctx, courseID, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	lesson.Title = req.Title
	lesson.Content = req.Content
	lesson.VideoURL = req.VideoURL
	lesson.DurationMinutes = req.DurationMinutes
	lesson.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}

	return lesson, nil
}

// DeleteLesson removes a lesson from an owned course.
func (s *CourseService) DeleteLesson(ctx context.Context, actor *models.JWTClaims, courseID, lessonID string) error {
	if _, err := s.loadOwnedCourse(ctx, actor, courseID); err != nil {
		return err
	}

	if _, err := s.repo.FindLesson(ctx, courseID, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found in this course")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	if err := s.repo.DeleteLesson(ctx, courseID, lessonID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}

	return nil
}

// canViewCourse reports whether the (possibly anonymous) actor may read the
// course. Drafts are visible only to their instructor and admins.
func canViewCourse(actor *models.JWTClaims, course *models.Course) bool {
	if course.Published {
		return true
	}
	if actor == nil {
		return false
	}
	return actor.Role == models.RoleAdmin || actor.UserID == course.InstructorID
}

// loadOwnedCourse fetches a course and enforces ownership. Missing and
// foreign courses are indistinguishable to the caller.
func (s *CourseService) loadOwnedCourse(ctx context.Context, actor *models.JWTClaims, courseID string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, courseID)
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

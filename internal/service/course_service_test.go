package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type mockCourseRepo struct {
	courses map[string]*models.Course
	lessons map[string][]models.Lesson
	deleted []string
	audits  []*models.AuditLog
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{
		courses: make(map[string]*models.Course),
		lessons: make(map[string][]models.Lesson),
	}
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	var out []models.CourseSummary
	for _, course := range m.courses {
		if filter.Published != nil && course.Published != *filter.Published {
			continue
		}
		if filter.InstructorID != "" && course.InstructorID != filter.InstructorID {
			continue
		}
		out = append(out, models.CourseSummary{Course: *course})
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (m *mockCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: *course, Lessons: m.lessons[id]}, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	delete(m.courses, id)
	delete(m.lessons, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCourseRepo) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	return m.lessons[courseID], nil
}

func (m *mockCourseRepo) FindLesson(ctx context.Context, courseID, lessonID string) (*models.Lesson, error) {
	for _, lesson := range m.lessons[courseID] {
		if lesson.ID == lessonID {
			copied := lesson
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	lesson.Position = len(m.lessons[lesson.CourseID]) + 1
	m.lessons[lesson.CourseID] = append(m.lessons[lesson.CourseID], *lesson)
	return nil
}

func (m *mockCourseRepo) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	for i, existing := range m.lessons[lesson.CourseID] {
		if existing.ID == lesson.ID {
			m.lessons[lesson.CourseID][i] = *lesson
		}
	}
	return nil
}

func (m *mockCourseRepo) DeleteLesson(ctx context.Context, courseID, lessonID string) error {
	kept := m.lessons[courseID][:0]
	for _, lesson := range m.lessons[courseID] {
		if lesson.ID != lessonID {
			kept = append(kept, lesson)
		}
	}
	m.lessons[courseID] = kept
	return nil
}

func (m *mockCourseRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func ownerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teach-1", Role: models.RoleInstructor}
}

func validCourseRequest() CreateCourseRequest {
	return CreateCourseRequest{
		Title:       "Go Basics",
		Description: "An introduction",
		Category:    "programming",
		Level:       models.LevelBeginner,
		Published:   true,
	}
}

func TestCourseCreateAndGet(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), ownerClaims(), validCourseRequest(), models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "teach-1", course.InstructorID)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionCourseCreate, repo.audits[0].Action)

	detail, err := svc.Get(context.Background(), nil, course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.Title, detail.Title)
}

func TestCourseGetHidesDraftsFromAnonymous(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)
	ctx := context.Background()

	draft := validCourseRequest()
	draft.Published = false
	course, err := svc.Create(ctx, ownerClaims(), draft, models.RequestMeta{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, nil, course.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	detail, err := svc.Get(ctx, ownerClaims(), course.ID)
	require.NoError(t, err)
	assert.False(t, detail.Published)

	_, err = svc.ListLessons(ctx, nil, course.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseCreateValidation(t *testing.T) {
	svc := NewCourseService(newMockCourseRepo(), nil, nil)

	req := validCourseRequest()
	req.Level = "expert"
	_, err := svc.Create(context.Background(), ownerClaims(), req, models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseUpdateOwnershipHidesForeignCourse(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), ownerClaims(), validCourseRequest(), models.RequestMeta{})
	require.NoError(t, err)

	stranger := &models.JWTClaims{UserID: "teach-2", Role: models.RoleInstructor}
	_, err = svc.Update(context.Background(), stranger, course.ID, UpdateCourseRequest{
		Title:       "Hijacked",
		Description: "x",
		Category:    "programming",
		Level:       models.LevelBeginner,
	}, models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	updated, err := svc.Update(context.Background(), admin, course.ID, UpdateCourseRequest{
		Title:       "Moderated Title",
		Description: "x",
		Category:    "programming",
		Level:       models.LevelBeginner,
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Moderated Title", updated.Title)
}

func TestAddLessonValidatesVideoURL(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)
	ctx := context.Background()

	course, err := svc.Create(ctx, ownerClaims(), validCourseRequest(), models.RequestMeta{})
	require.NoError(t, err)

	_, err = svc.AddLesson(ctx, ownerClaims(), course.ID, LessonRequest{
		Title:    "Intro",
		VideoURL: "https://vimeo.com/12345",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	lesson, err := svc.AddLesson(ctx, ownerClaims(), course.ID, LessonRequest{
		Title:           "Intro",
		VideoURL:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		DurationMinutes: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lesson.Position)

	second, err := svc.AddLesson(ctx, ownerClaims(), course.ID, LessonRequest{Title: "Next"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)
}

func TestDeleteLesson(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)
	ctx := context.Background()

	course, err := svc.Create(ctx, ownerClaims(), validCourseRequest(), models.RequestMeta{})
	require.NoError(t, err)
	lesson, err := svc.AddLesson(ctx, ownerClaims(), course.ID, LessonRequest{Title: "Intro"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLesson(ctx, ownerClaims(), course.ID, lesson.ID))

	err = svc.DeleteLesson(ctx, ownerClaims(), course.ID, lesson.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseListFiltersPublished(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, ownerClaims(), validCourseRequest(), models.RequestMeta{})
	require.NoError(t, err)

	draft := validCourseRequest()
	draft.Published = false
	_, err = svc.Create(ctx, ownerClaims(), draft, models.RequestMeta{})
	require.NoError(t, err)

	published := true
	courses, pagination, err := svc.List(ctx, models.CourseFilter{Published: &published})
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

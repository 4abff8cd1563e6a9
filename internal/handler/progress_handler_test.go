package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-api/internal/middleware"
	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/service"
	"github.com/skillforge/skillforge-api/pkg/response"
)

type fakeProgressEnrollments struct {
	enrollment *models.Enrollment
	records    map[string]*models.LessonProgress
}

func (f *fakeProgressEnrollments) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if f.enrollment == nil || f.enrollment.UserID != userID || f.enrollment.CourseID != courseID {
		return nil, sql.ErrNoRows
	}
	copied := *f.enrollment
	return &copied, nil
}

func (f *fakeProgressEnrollments) FindLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*models.LessonProgress, error) {
	record, ok := f.records[lessonID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (f *fakeProgressEnrollments) ListLessonProgress(ctx context.Context, enrollmentID string) ([]models.LessonProgress, error) {
	var out []models.LessonProgress
	for _, record := range f.records {
		out = append(out, *record)
	}
	return out, nil
}

func (f *fakeProgressEnrollments) HasLessonProgress(ctx context.Context, enrollmentID string) (bool, error) {
	return len(f.records) > 0, nil
}

func (f *fakeProgressEnrollments) SaveProgress(ctx context.Context, enrollment *models.Enrollment, progress *models.LessonProgress) error {
	copied := *progress
	f.records[progress.LessonID] = &copied
	updated := *enrollment
	f.enrollment = &updated
	return nil
}

func (f *fakeProgressEnrollments) UpdateCourseProgress(ctx context.Context, enrollmentID string, progress int, completed bool, updatedAt time.Time) error {
	f.enrollment.Progress = progress
	f.enrollment.Completed = completed
	return nil
}

type fakeProgressCourses struct {
	lessons []models.Lesson
}

func (f *fakeProgressCourses) FindLesson(ctx context.Context, courseID, lessonID string) (*models.Lesson, error) {
	for _, lesson := range f.lessons {
		if lesson.CourseID == courseID && lesson.ID == lessonID {
			copied := lesson
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProgressCourses) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	return f.lessons, nil
}

func newProgressHandlerFixture() (*ProgressHandler, *fakeProgressEnrollments) {
	enrollments := &fakeProgressEnrollments{
		enrollment: &models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1"},
		records:    make(map[string]*models.LessonProgress),
	}
	courses := &fakeProgressCourses{lessons: []models.Lesson{
		{ID: "lesson-1", CourseID: "course-1", Title: "Intro", DurationMinutes: 10, Position: 1},
		{ID: "lesson-2", CourseID: "course-1", Title: "Next", DurationMinutes: 10, Position: 2},
	}}
	svc := service.NewProgressService(enrollments, courses, nil, nil)
	return NewProgressHandler(svc, service.NewMetricsService()), enrollments
}

func progressRequest(t *testing.T, method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, "/courses/course-1/lessons/lesson-1/progress", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "course-1"}, {Key: "lessonId", Value: "lesson-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestReportLessonAcceptsBareNumber(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPost, `540`)

	handler.ReportLesson(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	assert.Equal(t, float64(90), data["lessonProgress"])
	assert.Equal(t, float64(50), data["courseProgress"])
	assert.Equal(t, true, data["completed"])
}

func TestReportLessonAcceptsNamedField(t *testing.T) {
	handler, enrollments := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPost, `{"lastWatchedSecond": 300}`)

	handler.ReportLesson(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	assert.Equal(t, float64(50), data["lessonProgress"])
	require.Contains(t, enrollments.records, "lesson-1")
	assert.Equal(t, float64(300), enrollments.records["lesson-1"].LastWatchedSecond)
}

func TestReportLessonAcceptsSingleKeyObject(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPost, `{"currentTime": 600}`)

	handler.ReportLesson(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	assert.Equal(t, float64(100), data["lessonProgress"])
}

func TestReportLessonRejectsNonNumericBody(t *testing.T) {
	handler, enrollments := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPost, `"half way"`)

	handler.ReportLesson(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, enrollments.records)
}

func TestReportLessonRejectsNonNumericNamedField(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPost, `{"lastWatchedSecond": "deep"}`)

	handler.ReportLesson(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportLessonRequiresAuth(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/lessons/lesson-1/progress", bytes.NewBufferString(`540`))
	c.Request = req

	handler.ReportLesson(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetLessonDefaultsToZeroState(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodGet, "")

	handler.GetLesson(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	assert.Equal(t, float64(0), data["progress"])
	assert.Equal(t, float64(0), data["lastWatchedSecond"])
	assert.Equal(t, false, data["completed"])
}

func TestSetCourseRequiresProgressValue(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPut, `{}`)

	handler.SetCourse(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetCourseWritesCoarseProgress(t *testing.T) {
	handler, enrollments := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPut, `{"progress": 40}`)

	handler.SetCourse(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)
	assert.Equal(t, float64(40), data["progress"])
	assert.Equal(t, 40, enrollments.enrollment.Progress)
}

func TestSetCourseConflictsAfterLessonActivity(t *testing.T) {
	handler, _ := newProgressHandlerFixture()
	c, w := progressRequest(t, http.MethodPost, `540`)
	handler.ReportLesson(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = progressRequest(t, http.MethodPut, `{"progress": 10}`)
	handler.SetCourse(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

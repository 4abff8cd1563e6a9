package service

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/jobs"
	"github.com/skillforge/skillforge-api/pkg/storage"
)

type mockStatsEnrollmentRepo struct {
	roster    []models.EnrolledStudent
	total     int
	completed int
	average   float64
}

func (m *mockStatsEnrollmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	return m.roster, nil
}

func (m *mockStatsEnrollmentRepo) CourseAggregates(ctx context.Context, courseID string) (int, int, float64, error) {
	return m.total, m.completed, m.average, nil
}

type mockStatsCourseRepo struct {
	course        *models.Course
	lessonCount   int
	storedAverage float64
	updateCalled  bool
}

func (m *mockStatsCourseRepo) CountLessons(ctx context.Context, courseID string) (int, error) {
	return m.lessonCount, nil
}

func (m *mockStatsCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *m.course
	return &copied, nil
}

func (m *mockStatsCourseRepo) UpdateAverageProgress(ctx context.Context, id string, average float64) error {
	m.storedAverage = average
	m.updateCalled = true
	return nil
}

func newStatsFixture() (*mockStatsEnrollmentRepo, *mockStatsCourseRepo, *StatsService) {
	enrollments := &mockStatsEnrollmentRepo{
		roster: []models.EnrolledStudent{
			{UserID: "user-1", FullName: "Ada Lovelace", Email: "ada@example.com", Progress: 100, Completed: true, EnrolledAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)},
			{UserID: "user-2", FullName: "Grace Hopper", Email: "grace@example.com", Progress: 40, Completed: false, EnrolledAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
			{UserID: "user-3", FullName: "Alan Kay", Email: "alan@example.com", Progress: 10, Completed: false, EnrolledAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		},
		total:     3,
		completed: 1,
		average:   50,
	}
	courses := &mockStatsCourseRepo{course: &models.Course{ID: "course-1", Title: "Go Basics", InstructorID: "teach-1"}, lessonCount: 8}
	cache := NewCacheService(nil, nil, time.Minute, nil, false)
	svc := NewStatsService(enrollments, courses, cache, time.Minute, nil)
	return enrollments, courses, svc
}

func instructorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teach-1", Role: models.RoleInstructor}
}

func TestCourseStatsComputesRates(t *testing.T) {
	_, _, svc := newStatsFixture()

	stats, cached, err := svc.CourseStats(context.Background(), instructorClaims(), "course-1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, stats.TotalStudents)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.InDelta(t, 33.3, stats.CompletionRate, 0.05)
	assert.InDelta(t, 50.0, stats.AverageProgress, 0.01)
	assert.Equal(t, 8, stats.LessonCount)
}

func TestCourseStatsHidesForeignCourses(t *testing.T) {
	_, _, svc := newStatsFixture()

	_, _, err := svc.CourseStats(context.Background(), &models.JWTClaims{UserID: "other", Role: models.RoleInstructor}, "course-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseStatsAdminBypassesOwnership(t *testing.T) {
	_, _, svc := newStatsFixture()

	stats, _, err := svc.CourseStats(context.Background(), &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "course-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalStudents)
}

func TestExportRosterCSV(t *testing.T) {
	_, _, svc := newStatsFixture()

	payload, err := svc.ExportRosterCSV(context.Background(), instructorClaims(), "course-1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Name,Email,Progress,Completed,Enrolled At", lines[0])
	assert.Contains(t, lines[1], "Ada Lovelace")
	assert.Contains(t, lines[1], "100%")
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[3], "alan@example.com")
}

func TestExportCourseReportPDF(t *testing.T) {
	_, _, svc := newStatsFixture()

	payload, err := svc.ExportCourseReportPDF(context.Background(), instructorClaims(), "course-1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestHandleRefreshJobStoresAverage(t *testing.T) {
	_, courses, svc := newStatsFixture()

	err := svc.HandleRefreshJob(context.Background(), jobs.Job{ID: "job-1", Type: courseStatsJobType, Payload: "course-1"})
	require.NoError(t, err)
	assert.True(t, courses.updateCalled)
	assert.InDelta(t, 50.0, courses.storedAverage, 0.01)
}

func TestHandleRefreshJobDiscardsMalformedPayload(t *testing.T) {
	_, courses, svc := newStatsFixture()

	err := svc.HandleRefreshJob(context.Background(), jobs.Job{ID: "job-2", Payload: 42})
	require.NoError(t, err)
	assert.False(t, courses.updateCalled)
}

func TestArchiveExportRoundTrip(t *testing.T) {
	_, _, svc := newStatsFixture()
	svc.AttachExportStore(newTestExportStore(t), storage.NewSignedURLSigner("secret", time.Hour))

	artifact, err := svc.ArchiveExport(context.Background(), instructorClaims(), "course-1", "csv")
	require.NoError(t, err)
	require.NotEmpty(t, artifact.Token)
	assert.Equal(t, "csv", artifact.Format)
	assert.True(t, artifact.ExpiresAt.After(time.Now()))

	payload, contentType, err := svc.OpenExport(artifact.Token)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.Contains(string(payload), "Ada Lovelace"))
}

func TestArchiveExportRejectsUnknownFormat(t *testing.T) {
	_, _, svc := newStatsFixture()
	svc.AttachExportStore(newTestExportStore(t), storage.NewSignedURLSigner("secret", time.Hour))

	_, err := svc.ArchiveExport(context.Background(), instructorClaims(), "course-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOpenExportRejectsForgedToken(t *testing.T) {
	_, _, svc := newStatsFixture()
	svc.AttachExportStore(newTestExportStore(t), storage.NewSignedURLSigner("secret", time.Hour))

	_, _, err := svc.OpenExport("export-1.9999999999.abc.deadbeef")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestArchiveExportWithoutStore(t *testing.T) {
	_, _, svc := newStatsFixture()

	_, err := svc.ArchiveExport(context.Background(), instructorClaims(), "course-1", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func newTestExportStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindByUserAndCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "progress", "completed", "enrolled_at", "last_updated"}).
		AddRow("enr-1", "user-1", "course-1", 40, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, course_id, progress, completed, enrolled_at, last_updated")).
		WithArgs("user-1", "course-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByUserAndCourse(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	require.Equal(t, 40, enrollment.Progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByUserAndCourseNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, course_id")).
		WithArgs("user-1", "course-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUserAndCourse(context.Background(), "user-1", "course-9")
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{UserID: "user-1", CourseID: "course-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.False(t, enrollment.EnrolledAt.IsZero())
	require.False(t, enrollment.LastUpdated.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("user-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("user-1", "course-2").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.Exists(context.Background(), "user-1", "course-2")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySaveProgressTransaction(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()

	enrollment := &models.Enrollment{ID: "enr-1", Progress: 33, Completed: false, LastUpdated: now}
	progress := &models.LessonProgress{
		EnrollmentID:      "enr-1",
		LessonID:          "lesson-1",
		LastWatchedSecond: 540,
		Progress:          90,
		Completed:         true,
		UpdatedAt:         now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lesson_progress")).
		WithArgs(sqlmock.AnyArg(), "enr-1", "lesson-1", float64(540), 90, true, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET progress")).
		WithArgs("enr-1", 33, false, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveProgress(context.Background(), enrollment, progress))
	require.NotEmpty(t, progress.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySaveProgressRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lesson_progress")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET progress")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.SaveProgress(context.Background(),
		&models.Enrollment{ID: "enr-1", LastUpdated: now},
		&models.LessonProgress{EnrollmentID: "enr-1", LessonID: "lesson-1", UpdatedAt: now})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryHasLessonProgress(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM lesson_progress")).
		WithArgs("enr-1").
		WillReturnError(sql.ErrNoRows)

	has, err := repo.HasLessonProgress(context.Background(), "enr-1")
	require.NoError(t, err)
	require.False(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCourseAggregates(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"total", "completed", "average"}).AddRow(12, 4, 61.5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total")).
		WithArgs("course-1").
		WillReturnRows(rows)

	total, completed, average, err := repo.CourseAggregates(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.Equal(t, 4, completed)
	require.InDelta(t, 61.5, average, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListForUser(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "course_id", "progress", "completed", "enrolled_at", "last_updated",
		"course_title", "category", "level", "thumbnail", "instructor_name", "lesson_count",
	}).AddRow("enr-1", "user-1", "course-1", 67, false, now, now,
		"Go Basics", "programming", "beginner", "", "Ada Lovelace", 3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e")).
		WithArgs("user-1").
		WillReturnRows(rows)

	enrolled, err := repo.ListForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	require.Equal(t, "Go Basics", enrolled[0].CourseTitle)
	require.Equal(t, 3, enrolled[0].LessonCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments and per-lesson
// watch state. All writes to derived progress fields go through here.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByUserAndCourse returns the enrollment for the pair.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, user_id, course_id, progress, completed, enrolled_at, last_updated
        FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether an enrollment exists for the pair.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.LastUpdated.IsZero() {
		enrollment.LastUpdated = now
	}
	const query = `INSERT INTO enrollments (id, user_id, course_id, progress, completed, enrolled_at, last_updated)
        VALUES (:id, :user_id, :course_id, :progress, :completed, :enrolled_at, :last_updated)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// ListForUser returns the user's enrollments joined with course summaries.
func (r *EnrollmentRepository) ListForUser(ctx context.Context, userID string) ([]models.EnrolledCourse, error) {
	const query = `SELECT e.id, e.user_id, e.course_id, e.progress, e.completed, e.enrolled_at, e.last_updated,
        c.title AS course_title, c.category, c.level, c.thumbnail,
        u.full_name AS instructor_name,
        (SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lesson_count
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        LEFT JOIN users u ON u.id = c.instructor_id
        WHERE e.user_id = $1
        ORDER BY e.enrolled_at DESC`
	var enrolled []models.EnrolledCourse
	if err := r.db.SelectContext(ctx, &enrolled, query, userID); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return enrolled, nil
}

// ListByCourse returns the roster of students enrolled in a course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	const query = `SELECT e.user_id, u.full_name, u.email, e.progress, e.completed, e.enrolled_at
        FROM enrollments e
        JOIN users u ON u.id = e.user_id
        WHERE e.course_id = $1
        ORDER BY e.enrolled_at ASC`
	var students []models.EnrolledStudent
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return students, nil
}

// FindLessonProgress returns the stored watch state for one lesson.
func (r *EnrollmentRepository) FindLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*models.LessonProgress, error) {
	const query = `SELECT id, enrollment_id, lesson_id, last_watched_second, progress, completed, updated_at
        FROM lesson_progress WHERE enrollment_id = $1 AND lesson_id = $2`
	var progress models.LessonProgress
	if err := r.db.GetContext(ctx, &progress, query, enrollmentID, lessonID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListLessonProgress returns every watch-state row of an enrollment.
func (r *EnrollmentRepository) ListLessonProgress(ctx context.Context, enrollmentID string) ([]models.LessonProgress, error) {
	const query = `SELECT id, enrollment_id, lesson_id, last_watched_second, progress, completed, updated_at
        FROM lesson_progress WHERE enrollment_id = $1`
	var rows []models.LessonProgress
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list lesson progress: %w", err)
	}
	return rows, nil
}

// HasLessonProgress reports whether any lesson-level rows exist for the
// enrollment.
func (r *EnrollmentRepository) HasLessonProgress(ctx context.Context, enrollmentID string) (bool, error) {
	const query = `SELECT 1 FROM lesson_progress WHERE enrollment_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check lesson progress: %w", err)
	}
	return true, nil
}

// SaveProgress upserts one lesson watch-state row and rewrites the derived
// enrollment fields in a single transaction, so a progress report is never
// applied half-way.
func (r *EnrollmentRepository) SaveProgress(ctx context.Context, enrollment *models.Enrollment, progress *models.LessonProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save progress: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `INSERT INTO lesson_progress (id, enrollment_id, lesson_id, last_watched_second, progress, completed, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (enrollment_id, lesson_id) DO UPDATE SET
        last_watched_second = EXCLUDED.last_watched_second,
        progress = EXCLUDED.progress,
        completed = EXCLUDED.completed,
        updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, upsert,
		progress.ID, progress.EnrollmentID, progress.LessonID,
		progress.LastWatchedSecond, progress.Progress, progress.Completed, progress.UpdatedAt); err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}

	const update = `UPDATE enrollments SET progress = $2, completed = $3, last_updated = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		enrollment.ID, enrollment.Progress, enrollment.Completed, enrollment.LastUpdated); err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save progress: %w", err)
	}
	return nil
}

// UpdateCourseProgress rewrites only the coarse enrollment fields.
func (r *EnrollmentRepository) UpdateCourseProgress(ctx context.Context, enrollmentID string, progress int, completed bool, updatedAt time.Time) error {
	const query = `UPDATE enrollments SET progress = $2, completed = $3, last_updated = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, progress, completed, updatedAt); err != nil {
		return fmt.Errorf("update course progress: %w", err)
	}
	return nil
}

// CourseAggregates returns roster size, completion count and mean progress
// for a course in one query.
func (r *EnrollmentRepository) CourseAggregates(ctx context.Context, courseID string) (total int, completed int, average float64, err error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE completed) AS completed,
        COALESCE(AVG(progress), 0) AS average
        FROM enrollments WHERE course_id = $1`
	row := struct {
		Total     int     `db:"total"`
		Completed int     `db:"completed"`
		Average   float64 `db:"average"`
	}{}
	if err = r.db.GetContext(ctx, &row, query, courseID); err != nil {
		return 0, 0, 0, fmt.Errorf("course aggregates: %w", err)
	}
	return row.Total, row.Completed, row.Average, nil
}

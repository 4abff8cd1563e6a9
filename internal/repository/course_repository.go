package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillforge/skillforge-api/internal/models"
)

// CourseRepository handles persistence of the course catalog and lessons.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns catalog courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	base := `FROM courses c
LEFT JOIN users u ON u.id = c.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.Published != nil {
		conditions = append(conditions, fmt.Sprintf("c.published = $%d", len(args)+1))
		args = append(args, *filter.Published)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("c.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "c.created_at",
		"title":      "c.title",
		"price":      "c.price",
		"enrolled":   "c.enrolled_students",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.title, c.description, c.category, c.level, c.thumbnail, c.price,
        c.instructor_id, c.enrolled_students, c.average_progress, c.published, c.created_at, c.updated_at,
        u.full_name AS instructor_name,
        (SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lesson_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseSummary
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, description, category, level, thumbnail, price, instructor_id,
        enrolled_students, average_progress, published, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with its ordered lessons and instructor name.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var instructorName string
	if err := r.db.GetContext(ctx, &instructorName, `SELECT full_name FROM users WHERE id = $1`, course.InstructorID); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load instructor name: %w", err)
	}

	lessons, err := r.ListLessons(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.CourseDetail{Course: *course, InstructorName: instructorName, Lessons: lessons}, nil
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, category, level, thumbnail, price, instructor_id,
        enrolled_students, average_progress, published, created_at, updated_at)
        VALUES (:id, :title, :description, :category, :level, :thumbnail, :price, :instructor_id,
        :enrolled_students, :average_progress, :published, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, category = :category,
        level = :level, thumbnail = :thumbnail, price = :price, published = :published, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course and its lessons.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course lessons: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	return nil
}

// IncrementEnrolled bumps the denormalised enrolled student counter.
func (r *CourseRepository) IncrementEnrolled(ctx context.Context, id string) error {
	const query = `UPDATE courses SET enrolled_students = enrolled_students + 1, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment enrolled students: %w", err)
	}
	return nil
}

// UpdateAverageProgress stores the recomputed average enrollment progress.
func (r *CourseRepository) UpdateAverageProgress(ctx context.Context, id string, average float64) error {
	const query = `UPDATE courses SET average_progress = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, average, time.Now().UTC()); err != nil {
		return fmt.Errorf("update average progress: %w", err)
	}
	return nil
}

// CreateAuditLog appends an audit trail record for a catalog change.
func (r *CourseRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, new_values, ip_address, user_agent, created_at)
        VALUES (:id, :user_id, :action, :resource, :resource_id, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListLessons returns the ordered lessons of a course.
func (r *CourseRepository) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	const query = `SELECT id, course_id, position, title, content, video_url, duration_minutes, created_at, updated_at
        FROM lessons WHERE course_id = $1 ORDER BY position ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// FindLesson returns a lesson scoped to its course.
func (r *CourseRepository) FindLesson(ctx context.Context, courseID, lessonID string) (*models.Lesson, error) {
	const query = `SELECT id, course_id, position, title, content, video_url, duration_minutes, created_at, updated_at
        FROM lessons WHERE id = $1 AND course_id = $2`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, lessonID, courseID); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// CountLessons returns the total number of lessons in a course.
func (r *CourseRepository) CountLessons(ctx context.Context, courseID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM lessons WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return total, nil
}

// CreateLesson appends a lesson at the end of the course ordering.
func (r *CourseRepository) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	if lesson.Position <= 0 {
		var maxPos sql.NullInt64
		if err := r.db.GetContext(ctx, &maxPos, `SELECT MAX(position) FROM lessons WHERE course_id = $1`, lesson.CourseID); err != nil {
			return fmt.Errorf("next lesson position: %w", err)
		}
		lesson.Position = int(maxPos.Int64) + 1
	}
	const query = `INSERT INTO lessons (id, course_id, position, title, content, video_url, duration_minutes, created_at, updated_at)
        VALUES (:id, :course_id, :position, :title, :content, :video_url, :duration_minutes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// UpdateLesson rewrites the mutable fields of a lesson.
func (r *CourseRepository) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = :title, content = :content, video_url = :video_url,
        duration_minutes = :duration_minutes, position = :position, updated_at = :updated_at
        WHERE id = :id AND course_id = :course_id`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// DeleteLesson removes a lesson from its course.
func (r *CourseRepository) DeleteLesson(ctx context.Context, courseID, lessonID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1 AND course_id = $2`, lessonID, courseID); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}

package models

import "time"

// CourseLevel is the declared difficulty of a course.
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

// Course is a catalog entry owned by an instructor.
type Course struct {
	ID               string      `db:"id" json:"id"`
	Title            string      `db:"title" json:"title"`
	Description      string      `db:"description" json:"description"`
	Category         string      `db:"category" json:"category"`
	Level            CourseLevel `db:"level" json:"level"`
	Thumbnail        string      `db:"thumbnail" json:"thumbnail,omitempty"`
	Price            float64     `db:"price" json:"price"`
	InstructorID     string      `db:"instructor_id" json:"instructor_id"`
	EnrolledStudents int         `db:"enrolled_students" json:"enrolled_students"`
	AverageProgress  float64     `db:"average_progress" json:"average_progress"`
	Published        bool        `db:"published" json:"published"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// Lesson belongs to a course; Position gives the meaningful ordering.
// DurationMinutes is the planned length; zero means unknown.
type Lesson struct {
	ID              string    `db:"id" json:"id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	Position        int       `db:"position" json:"position"`
	Title           string    `db:"title" json:"title"`
	Content         string    `db:"content" json:"content,omitempty"`
	VideoURL        string    `db:"video_url" json:"video_url,omitempty"`
	DurationMinutes float64   `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with its ordered lessons and instructor info.
type CourseDetail struct {
	Course
	InstructorName string   `json:"instructor_name"`
	Lessons        []Lesson `json:"lessons"`
}

// CourseSummary is the catalog listing projection.
type CourseSummary struct {
	Course
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	LessonCount    int    `db:"lesson_count" json:"lesson_count"`
}

// CourseFilter provides filters for catalog listings.
type CourseFilter struct {
	Category     string
	Level        CourseLevel
	InstructorID string
	Published    *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CourseStats aggregates enrollment outcomes for an instructor's course.
type CourseStats struct {
	CourseID        string    `json:"course_id"`
	TotalStudents   int       `json:"totalStudents"`
	CompletedCount  int       `json:"completedCount"`
	CompletionRate  float64   `json:"completionRate"`
	AverageProgress float64   `json:"averageProgress"`
	LessonCount     int       `json:"lessonCount"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// ExportArtifact references an archived roster or report file together with
// its signed download token.
type ExportArtifact struct {
	ExportID  string    `json:"export_id"`
	CourseID  string    `json:"course_id"`
	Format    string    `json:"format"`
	Token     string    `json:"download_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EnrolledStudent is a roster row for an instructor's course.
type EnrolledStudent struct {
	UserID     string    `db:"user_id" json:"user_id"`
	FullName   string    `db:"full_name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Progress   int       `db:"progress" json:"progress"`
	Completed  bool      `db:"completed" json:"completed"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

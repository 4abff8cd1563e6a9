package models

import "time"

// Enrollment captures a user's registration to a course and the derived
// overall progress. Progress is a rounded percentage in [0,100]; Completed
// holds iff Progress == 100. Enrollments are never deleted.
type Enrollment struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Progress    int       `db:"progress" json:"progress"`
	Completed   bool      `db:"completed" json:"completed"`
	EnrolledAt  time.Time `db:"enrolled_at" json:"enrolled_at"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// LessonProgress is the per-lesson watch state owned by one enrollment.
// Progress and Completed are derived from LastWatchedSecond; clients never
// set them directly. At most one row exists per (enrollment, lesson).
type LessonProgress struct {
	ID                string    `db:"id" json:"id"`
	EnrollmentID      string    `db:"enrollment_id" json:"-"`
	LessonID          string    `db:"lesson_id" json:"lessonId"`
	LastWatchedSecond float64   `db:"last_watched_second" json:"lastWatchedSecond"`
	Progress          int       `db:"progress" json:"progress"`
	Completed         bool      `db:"completed" json:"completed"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// EnrolledCourse joins an enrollment with its course summary for the
// student-facing "my courses" listing.
type EnrolledCourse struct {
	Enrollment
	CourseTitle    string      `db:"course_title" json:"course_title"`
	Category       string      `db:"category" json:"category"`
	Level          CourseLevel `db:"level" json:"level"`
	Thumbnail      string      `db:"thumbnail" json:"thumbnail,omitempty"`
	InstructorName string      `db:"instructor_name" json:"instructor_name"`
	LessonCount    int         `db:"lesson_count" json:"lesson_count"`
}

// ProgressReport is returned after a lesson progress write so the client can
// render without a second fetch.
type ProgressReport struct {
	Success           bool    `json:"success"`
	LessonProgress    int     `json:"lessonProgress"`
	CourseProgress    int     `json:"courseProgress"`
	Completed         bool    `json:"completed"`
	LastWatchedSecond float64 `json:"lastWatchedSecond"`
}

// CourseProgressUpdate is returned by the coarse-grained progress endpoint.
type CourseProgressUpdate struct {
	Success   bool `json:"success"`
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
}

package models

import "time"

// Feedback is a message submitted through the public contact form.
type Feedback struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

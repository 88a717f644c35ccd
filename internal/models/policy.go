package models

import "time"

// Package-level postponement defaults, applied when neither an explicit
// policy row nor course-level defaults exist.
const (
	DefaultMinimumRequired = 6
	DefaultDeadlineDays    = 2
)

// PostponementPolicy is the per-course rule the sweep evaluates. At most one
// row per course. The sweep treats it as read-only input; only admins write.
type PostponementPolicy struct {
	ID                     string     `db:"id" json:"id"`
	CourseID               string     `db:"course_id" json:"course_id"`
	MinimumRequired        int        `db:"minimum_required" json:"minimum_required"`
	DeadlineDays           int        `db:"deadline_days" json:"deadline_days"`
	EnableAutoPostponement bool       `db:"enable_auto_postponement" json:"enable_auto_postponement"`
	NotifyUsers            bool       `db:"notify_users" json:"notify_users"`
	CustomMessage          string     `db:"custom_message" json:"custom_message,omitempty"`
	DefaultNextCourseDate  *time.Time `db:"default_next_course_date" json:"default_next_course_date,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// DefaultPolicy returns the fallback policy for courses without one.
func DefaultPolicy(courseID string) PostponementPolicy {
	return PostponementPolicy{
		CourseID:               courseID,
		MinimumRequired:        DefaultMinimumRequired,
		DeadlineDays:           DefaultDeadlineDays,
		EnableAutoPostponement: false,
		NotifyUsers:            true,
	}
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// CourseDateStatus represents the lifecycle of a scheduled session.
type CourseDateStatus string

// Possible course date statuses.
const (
	CourseDateStatusScheduled CourseDateStatus = "scheduled"
	CourseDateStatusConfirmed CourseDateStatus = "confirmed"
	CourseDateStatusPostponed CourseDateStatus = "postponed"
	CourseDateStatusCanceled  CourseDateStatus = "canceled"
	CourseDateStatusCompleted CourseDateStatus = "completed"
)

// CourseDate is a scheduled session of a course. EnrolledCount covers both
// roster enrollments and company seat blocks; EnrolledUserIDs only tracks the
// former. Version guards concurrent seat mutations (optimistic locking).
type CourseDate struct {
	ID              string           `db:"id" json:"id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	StartDate       time.Time        `db:"start_date" json:"start_date"`
	EndDate         time.Time        `db:"end_date" json:"end_date"`
	Capacity        int              `db:"capacity" json:"capacity"`
	EnrolledCount   int              `db:"enrolled_count" json:"enrolled_count"`
	MinimumRequired int              `db:"minimum_required" json:"minimum_required"`
	Instructor      string           `db:"instructor" json:"instructor"`
	Location        string           `db:"location" json:"location"`
	MeetingURL      string           `db:"meeting_url" json:"meeting_url,omitempty"`
	ZoomMeetingID   string           `db:"zoom_meeting_id" json:"zoom_meeting_id,omitempty"`
	ZoomPassword    string           `db:"zoom_password" json:"zoom_password,omitempty"`
	Status          CourseDateStatus `db:"status" json:"status"`
	EnrolledUserIDs pq.StringArray   `db:"enrolled_user_ids" json:"enrolled_user_ids"`
	Notes           string           `db:"notes" json:"notes,omitempty"`
	Metadata        Metadata         `db:"metadata" json:"metadata"`
	Version         int              `db:"version" json:"-"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// SeatsRemaining returns how many seats are still available.
func (cd *CourseDate) SeatsRemaining() int {
	return cd.Capacity - cd.EnrolledCount
}

// HasEnrolledUser reports whether the user is on the roster.
func (cd *CourseDate) HasEnrolledUser(userID string) bool {
	for _, id := range cd.EnrolledUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CourseDateDetail enriches CourseDate with catalog info.
type CourseDateDetail struct {
	CourseDate
	CourseTitle    string `db:"course_title" json:"course_title"`
	CourseCategory string `db:"course_category" json:"course_category"`
}

// CourseDateFilter provides filters for listing course dates.
type CourseDateFilter struct {
	CourseID      string
	Status        CourseDateStatus
	StartDateFrom *time.Time
	StartDateTo   *time.Time
	Featured      *bool
	Page          int
	PageSize      int
}

// SweepResult aggregates the outcome of one postponement sweep run.
type SweepResult struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Postponed int `json:"postponed"`
	Confirmed int `json:"confirmed"`
	Errors    int `json:"errors"`
}

package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Canceled and Refunded are the inactive
// states: a user may re-enroll once a prior enrollment reaches either.
const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusConfirmed EnrollmentStatus = "confirmed"
	EnrollmentStatusCanceled  EnrollmentStatus = "canceled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusPostponed EnrollmentStatus = "postponed"
	EnrollmentStatusRefunded  EnrollmentStatus = "refunded"
)

// Active reports whether the status counts against the one-active-enrollment
// invariant per (user, course date) pair.
func (s EnrollmentStatus) Active() bool {
	return s != EnrollmentStatusCanceled && s != EnrollmentStatusRefunded
}

// Enrollment captures a user's registration to a course date.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"user_id"`
	CourseDateID   string           `db:"course_date_id" json:"course_date_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	PaymentID      *string          `db:"payment_id" json:"payment_id,omitempty"`
	EmailSent      bool             `db:"email_sent" json:"email_sent"`
	EmailSentDate  *time.Time       `db:"email_sent_date" json:"email_sent_date,omitempty"`
	Feedback       *string          `db:"feedback" json:"feedback,omitempty"`
	FeedbackRating *int             `db:"feedback_rating" json:"feedback_rating,omitempty"`
	Metadata       Metadata         `db:"metadata" json:"metadata"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with user and session info.
type EnrollmentDetail struct {
	Enrollment
	UserEmail    string    `db:"user_email" json:"user_email"`
	UserFullName string    `db:"user_full_name" json:"user_full_name"`
	CourseTitle  string    `db:"course_title" json:"course_title"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID       string
	CourseDateID string
	Status       EnrollmentStatus
	Page         int
	PageSize     int
}

package models

import "time"

// PaymentStatus tracks a checkout session's progress.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is a record of a checkout attempt against the payment provider.
type Payment struct {
	ID                    string        `db:"id" json:"id"`
	Amount                float64       `db:"amount" json:"amount"`
	Currency              string        `db:"currency" json:"currency"`
	Status                PaymentStatus `db:"status" json:"status"`
	StripeSessionID       string        `db:"stripe_session_id" json:"stripe_session_id"`
	StripePaymentIntentID string        `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	CustomerEmail         string        `db:"customer_email" json:"customer_email"`
	CourseID              string        `db:"course_id" json:"course_id"`
	UserID                string        `db:"user_id" json:"user_id,omitempty"`
	SelectedDate          *time.Time    `db:"selected_date" json:"selected_date,omitempty"`
	Quantity              int           `db:"quantity" json:"quantity"`
	Metadata              Metadata      `db:"metadata" json:"metadata"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentConfirmedEvent is the already-verified "payment confirmed" signal
// consumed by the core. Provider signature verification happens upstream.
type PaymentConfirmedEvent struct {
	EventID      string    `json:"event_id"`
	CourseID     string    `json:"course_id"`
	CourseDateID string    `json:"course_date_id,omitempty"`
	SelectedDate time.Time `json:"selected_date"`
	UserID       string    `json:"user_id,omitempty"`
	PurchaseID   string    `json:"purchase_id,omitempty"`
	Quantity     int       `json:"quantity"`
	PaymentID    string    `json:"payment_id,omitempty"`
}

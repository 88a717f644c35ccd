package models

import (
	"time"

	"github.com/lib/pq"
)

// CompanyPurchaseStatus represents the lifecycle of a bulk seat request.
type CompanyPurchaseStatus string

// Possible company purchase statuses.
const (
	CompanyPurchaseStatusPending        CompanyPurchaseStatus = "pending"
	CompanyPurchaseStatusContacted      CompanyPurchaseStatus = "contacted"
	CompanyPurchaseStatusPaymentPending CompanyPurchaseStatus = "payment_pending"
	CompanyPurchaseStatusPaid           CompanyPurchaseStatus = "paid"
	CompanyPurchaseStatusCompleted      CompanyPurchaseStatus = "completed"
	CompanyPurchaseStatusCanceled       CompanyPurchaseStatus = "canceled"
)

// CompanyPurchase is a company's block reservation of seats on a course date.
// The date is requested by calendar day (SelectedDate); the concrete course
// date is resolved and recorded in metadata when the purchase is paid.
// Invariant: len(EnrollmentIDs) <= Quantity.
type CompanyPurchase struct {
	ID             string                `db:"id" json:"id"`
	RequestID      string                `db:"request_id" json:"request_id"`
	CompanyName    string                `db:"company_name" json:"company_name"`
	RFC            string                `db:"rfc" json:"rfc"`
	ContactName    string                `db:"contact_name" json:"contact_name"`
	ContactEmail   string                `db:"contact_email" json:"contact_email"`
	ContactPhone   string                `db:"contact_phone" json:"contact_phone"`
	CourseID       string                `db:"course_id" json:"course_id"`
	CourseTitle    string                `db:"course_title" json:"course_title"`
	SelectedDate   time.Time             `db:"selected_date" json:"selected_date"`
	Quantity       int                   `db:"quantity" json:"quantity"`
	AdditionalInfo string                `db:"additional_info" json:"additional_info,omitempty"`
	Status         CompanyPurchaseStatus `db:"status" json:"status"`
	EnrollmentIDs  pq.StringArray        `db:"enrollment_ids" json:"enrollment_ids"`
	AdminNotes     string                `db:"admin_notes" json:"admin_notes,omitempty"`
	PaymentMethod  string                `db:"payment_method" json:"payment_method,omitempty"`
	PaymentRef     string                `db:"payment_reference" json:"payment_reference,omitempty"`
	PaymentAmount  *float64              `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentDate    *time.Time            `db:"payment_date" json:"payment_date,omitempty"`
	Metadata       Metadata              `db:"metadata" json:"metadata"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at" json:"updated_at"`
}

// SeatsReserved returns how many seats this purchase currently holds on the
// ledger, as recorded when the purchase was paid.
func (p *CompanyPurchase) SeatsReserved() int {
	return p.Metadata.Int(MetaReservedSeats)
}

// ReservedCourseDateID returns the course date the seats were reserved on.
func (p *CompanyPurchase) ReservedCourseDateID() string {
	return p.Metadata.String(MetaCourseDateID)
}

// CompanyPurchaseFilter provides filters for listing purchases.
type CompanyPurchaseFilter struct {
	Status      CompanyPurchaseStatus
	CompanyName string
	Page        int
	PageSize    int
}

package notifier

import "context"

// Kind identifies the notification template to render.
type Kind string

const (
	KindCourseAccess         Kind = "course_access"
	KindCourseReminder       Kind = "course_reminder"
	KindCourseConfirmed      Kind = "course_confirmed"
	KindPostponement         Kind = "postponement"
	KindPostponementWarning  Kind = "postponement_warning"
	KindCancellation         Kind = "cancellation"
	KindPurchaseConfirmation Kind = "purchase_confirmation"
	KindPurchaseContacted    Kind = "purchase_contacted"
	KindPurchasePayment      Kind = "purchase_payment"
	KindPurchaseCancellation Kind = "purchase_cancellation"
	KindAdminAlert           Kind = "admin_alert"
)

// Message is one outbound notification.
type Message struct {
	To      string
	Kind    Kind
	Subject string
	Payload map[string]interface{}
}

// Notifier delivers a single message. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

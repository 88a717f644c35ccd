package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
)

var subjects = map[Kind]string{
	KindCourseAccess:         "Acceso a tu curso",
	KindCourseReminder:       "Recordatorio: tu curso inicia pronto",
	KindCourseConfirmed:      "Tu curso ha sido confirmado",
	KindPostponement:         "Tu curso ha sido pospuesto",
	KindPostponementWarning:  "Tu curso podría ser pospuesto",
	KindCancellation:         "Tu curso ha sido cancelado",
	KindPurchaseConfirmation: "Hemos recibido tu solicitud de compra",
	KindPurchaseContacted:    "Seguimiento a tu solicitud de compra",
	KindPurchasePayment:      "Pago recibido",
	KindPurchaseCancellation: "Tu solicitud de compra fue cancelada",
	KindAdminAlert:           "Alerta del sistema",
}

// EmailNotifier sends notifications over SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailNotifier builds an SMTP-backed notifier.
func NewEmailNotifier(cfg config.NotificationsConfig) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		from:   cfg.FromAddress,
	}
}

// Send delivers a single message.
func (n *EmailNotifier) Send(_ context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", subjectFor(msg))
	m.SetBody("text/plain", renderBody(msg))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s notification to %s: %w", msg.Kind, msg.To, err)
	}
	return nil
}

func subjectFor(msg Message) string {
	if msg.Subject != "" {
		return msg.Subject
	}
	if s, ok := subjects[msg.Kind]; ok {
		return s
	}
	return "Notificación"
}

// renderBody flattens the payload into a plain-text body. Templated HTML
// rendering belongs to the marketing mail provider, not this service.
func renderBody(msg Message) string {
	keys := make([]string, 0, len(msg.Payload))
	for k := range msg.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, msg.Payload[k])
	}
	return b.String()
}

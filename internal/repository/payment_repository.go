package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

const paymentColumns = `id, amount, currency, status, stripe_session_id, stripe_payment_intent_id,
        customer_email, course_id, user_id, selected_date, quantity, metadata, created_at, updated_at`

// PaymentRepository handles persistence of checkout attempts.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	if p.Metadata == nil {
		p.Metadata = models.Metadata{}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	const query = `INSERT INTO payments (id, amount, currency, status, stripe_session_id,
        stripe_payment_intent_id, customer_email, course_id, user_id, selected_date, quantity,
        metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Amount, p.Currency, p.Status, p.StripeSessionID, p.StripePaymentIntentID,
		p.CustomerEmail, p.CourseID, p.UserID, p.SelectedDate, p.Quantity, p.Metadata,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindBySessionID returns the payment record for a checkout session.
func (r *PaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE stripe_session_id = $1`, paymentColumns)
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, query, sessionID); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatus records the outcome of a checkout session.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, paymentIntentID string) error {
	const query = `UPDATE payments SET status = $1, stripe_payment_intent_id = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, paymentIntentID, id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

const companyPurchaseColumns = `id, request_id, company_name, rfc, contact_name, contact_email, contact_phone,
        course_id, course_title, selected_date, quantity, additional_info, status, enrollment_ids,
        admin_notes, payment_method, payment_reference, payment_amount, payment_date, metadata,
        created_at, updated_at`

// CompanyPurchaseRepository handles persistence of bulk seat purchases.
type CompanyPurchaseRepository struct {
	db *sqlx.DB
}

// NewCompanyPurchaseRepository constructs the repository.
func NewCompanyPurchaseRepository(db *sqlx.DB) *CompanyPurchaseRepository {
	return &CompanyPurchaseRepository{db: db}
}

// Create persists a new purchase request.
func (r *CompanyPurchaseRepository) Create(ctx context.Context, p *models.CompanyPurchase) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.CompanyPurchaseStatusPending
	}
	if p.Metadata == nil {
		p.Metadata = models.Metadata{}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	const query = `INSERT INTO company_purchases (id, request_id, company_name, rfc, contact_name,
        contact_email, contact_phone, course_id, course_title, selected_date, quantity, additional_info,
        status, enrollment_ids, admin_notes, payment_method, payment_reference, payment_amount,
        payment_date, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.RequestID, p.CompanyName, p.RFC, p.ContactName, p.ContactEmail, p.ContactPhone,
		p.CourseID, p.CourseTitle, p.SelectedDate, p.Quantity, p.AdditionalInfo, p.Status,
		p.EnrollmentIDs, p.AdminNotes, p.PaymentMethod, p.PaymentRef, p.PaymentAmount, p.PaymentDate,
		p.Metadata, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create company purchase: %w", err)
	}
	return nil
}

// FindByID returns a purchase by its ID.
func (r *CompanyPurchaseRepository) FindByID(ctx context.Context, id string) (*models.CompanyPurchase, error) {
	query := fmt.Sprintf(`SELECT %s FROM company_purchases WHERE id = $1`, companyPurchaseColumns)
	var p models.CompanyPurchase
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByRequestID returns a purchase by its public request identifier.
func (r *CompanyPurchaseRepository) FindByRequestID(ctx context.Context, requestID string) (*models.CompanyPurchase, error) {
	query := fmt.Sprintf(`SELECT %s FROM company_purchases WHERE request_id = $1`, companyPurchaseColumns)
	var p models.CompanyPurchase
	if err := r.db.GetContext(ctx, &p, query, requestID); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns purchases filtered by the provided criteria.
func (r *CompanyPurchaseRepository) List(ctx context.Context, filter models.CompanyPurchaseFilter) ([]models.CompanyPurchase, int, error) {
	base := `FROM company_purchases`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CompanyName != "" {
		conditions = append(conditions, fmt.Sprintf("company_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.CompanyName+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		companyPurchaseColumns, base+clause, size, offset)

	var purchases []models.CompanyPurchase
	if err := r.db.SelectContext(ctx, &purchases, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list company purchases: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count company purchases: %w", err)
	}
	return purchases, total, nil
}

// Update writes back the mutable fields of a purchase.
func (r *CompanyPurchaseRepository) Update(ctx context.Context, p *models.CompanyPurchase) error {
	const query = `UPDATE company_purchases
        SET company_name = $1, rfc = $2, contact_name = $3, contact_email = $4, contact_phone = $5,
            selected_date = $6, quantity = $7, additional_info = $8, status = $9, admin_notes = $10,
            payment_method = $11, payment_reference = $12, payment_amount = $13, payment_date = $14,
            metadata = $15, updated_at = NOW()
        WHERE id = $16`
	_, err := r.db.ExecContext(ctx, query,
		p.CompanyName, p.RFC, p.ContactName, p.ContactEmail, p.ContactPhone, p.SelectedDate,
		p.Quantity, p.AdditionalInfo, p.Status, p.AdminNotes, p.PaymentMethod, p.PaymentRef,
		p.PaymentAmount, p.PaymentDate, p.Metadata, p.ID)
	if err != nil {
		return fmt.Errorf("update company purchase: %w", err)
	}
	return nil
}

// AddEnrollmentID appends an enrollment to the purchase under a row lock,
// enforcing len(enrollment_ids) <= quantity. Reaching quantity while paid
// completes the purchase. Re-adding a known ID is a no-op.
func (r *CompanyPurchaseRepository) AddEnrollmentID(ctx context.Context, id, enrollmentID string) (*models.CompanyPurchase, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("add enrollment id: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM company_purchases WHERE id = $1 FOR UPDATE`, companyPurchaseColumns)
	var p models.CompanyPurchase
	if err := tx.GetContext(ctx, &p, query, id); err != nil {
		return nil, err
	}

	for _, existing := range p.EnrollmentIDs {
		if existing == enrollmentID {
			return &p, tx.Commit()
		}
	}
	if len(p.EnrollmentIDs) >= p.Quantity {
		return nil, ErrEnrollmentLimit
	}

	p.EnrollmentIDs = append(p.EnrollmentIDs, enrollmentID)
	if len(p.EnrollmentIDs) >= p.Quantity && p.Status == models.CompanyPurchaseStatusPaid {
		p.Status = models.CompanyPurchaseStatusCompleted
	}

	const update = `UPDATE company_purchases SET enrollment_ids = $1, status = $2, updated_at = NOW() WHERE id = $3`
	if _, err := tx.ExecContext(ctx, update, p.EnrollmentIDs, p.Status, p.ID); err != nil {
		return nil, fmt.Errorf("add enrollment id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("add enrollment id: %w", err)
	}
	return &p, nil
}

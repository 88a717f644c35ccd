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

const enrollmentColumns = `id, user_id, course_date_id, status, payment_id, email_sent, email_sent_date,
        feedback, feedback_rating, metadata, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Metadata == nil {
		enrollment.Metadata = models.Metadata{}
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, user_id, course_date_id, status, payment_id, email_sent,
        email_sent_date, feedback, feedback_rating, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.UserID, enrollment.CourseDateID, enrollment.Status, enrollment.PaymentID,
		enrollment.EmailSent, enrollment.EmailSentDate, enrollment.Feedback, enrollment.FeedbackRating,
		enrollment.Metadata, enrollment.CreatedAt, enrollment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment joined with user and session info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.*, u.email AS user_email, u.full_name AS user_full_name,
        c.title AS course_title, cd.start_date
        FROM enrollments e
        JOIN users u ON u.id = e.user_id
        JOIN course_dates cd ON cd.id = e.course_date_id
        JOIN courses c ON c.id = cd.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive reports whether the user already holds an active enrollment
// on the course date. Canceled and refunded enrollments do not count.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, userID, courseDateID string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM enrollments
        WHERE user_id = $1 AND course_date_id = $2 AND status NOT IN ($3, $4))`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, userID, courseDateID,
		models.EnrollmentStatusCanceled, models.EnrollmentStatusRefunded)
	if err != nil {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return exists, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN users u ON u.id = e.user_id
JOIN course_dates cd ON cd.id = e.course_date_id
JOIN courses c ON c.id = cd.course_id`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseDateID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_date_id = $%d", len(args)+1))
		args = append(args, filter.CourseDateID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf(`SELECT e.*, u.email AS user_email, u.full_name AS user_full_name,
        c.title AS course_title, cd.start_date
        %s ORDER BY e.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListByCourseDate returns enrollments on a session, optionally by status.
func (r *EnrollmentRepository) ListByCourseDate(ctx context.Context, courseDateID string, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE course_date_id = $1`, enrollmentColumns)
	args := []interface{}{courseDateID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments by course date: %w", err)
	}
	return enrollments, nil
}

// UpdateStatus transitions an enrollment's lifecycle status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SetStatusAndMetadata transitions status and replaces metadata atomically.
func (r *EnrollmentRepository) SetStatusAndMetadata(ctx context.Context, id string, status models.EnrollmentStatus, meta models.Metadata) error {
	const query = `UPDATE enrollments SET status = $1, metadata = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, meta, id)
	if err != nil {
		return fmt.Errorf("update enrollment status and metadata: %w", err)
	}
	return nil
}

// MarkEmailSent records that the access notification went out.
func (r *EnrollmentRepository) MarkEmailSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE enrollments SET email_sent = TRUE, email_sent_date = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return fmt.Errorf("mark enrollment email sent: %w", err)
	}
	return nil
}

// SaveFeedback stores course feedback on a completed enrollment.
func (r *EnrollmentRepository) SaveFeedback(ctx context.Context, id, feedback string, rating int) error {
	const query = `UPDATE enrollments SET feedback = $1, feedback_rating = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, feedback, rating, id)
	if err != nil {
		return fmt.Errorf("save enrollment feedback: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

const policyColumns = `id, course_id, minimum_required, deadline_days, enable_auto_postponement,
        notify_users, custom_message, default_next_course_date, created_at, updated_at`

// PolicyRepository handles persistence of per-course postponement policies.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// FindByCourse returns the policy for a course, sql.ErrNoRows when absent.
func (r *PolicyRepository) FindByCourse(ctx context.Context, courseID string) (*models.PostponementPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM postponement_policies WHERE course_id = $1`, policyColumns)
	var pol models.PostponementPolicy
	if err := r.db.GetContext(ctx, &pol, query, courseID); err != nil {
		return nil, err
	}
	return &pol, nil
}

// List returns every explicit policy.
func (r *PolicyRepository) List(ctx context.Context) ([]models.PostponementPolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM postponement_policies ORDER BY created_at ASC`, policyColumns)
	var policies []models.PostponementPolicy
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list postponement policies: %w", err)
	}
	return policies, nil
}

// Upsert creates or replaces the course's policy. One row per course.
func (r *PolicyRepository) Upsert(ctx context.Context, pol *models.PostponementPolicy) error {
	if pol.ID == "" {
		pol.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	const query = `INSERT INTO postponement_policies (id, course_id, minimum_required, deadline_days,
        enable_auto_postponement, notify_users, custom_message, default_next_course_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
        ON CONFLICT (course_id) DO UPDATE SET
            minimum_required = EXCLUDED.minimum_required,
            deadline_days = EXCLUDED.deadline_days,
            enable_auto_postponement = EXCLUDED.enable_auto_postponement,
            notify_users = EXCLUDED.notify_users,
            custom_message = EXCLUDED.custom_message,
            default_next_course_date = EXCLUDED.default_next_course_date,
            updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		pol.ID, pol.CourseID, pol.MinimumRequired, pol.DeadlineDays, pol.EnableAutoPostponement,
		pol.NotifyUsers, pol.CustomMessage, pol.DefaultNextCourseDate, now)
	if err != nil {
		return fmt.Errorf("upsert postponement policy: %w", err)
	}
	return nil
}

// Delete removes the course's policy, reverting it to defaults.
func (r *PolicyRepository) Delete(ctx context.Context, courseID string) error {
	const query = `DELETE FROM postponement_policies WHERE course_id = $1`
	_, err := r.db.ExecContext(ctx, query, courseID)
	if err != nil {
		return fmt.Errorf("delete postponement policy: %w", err)
	}
	return nil
}

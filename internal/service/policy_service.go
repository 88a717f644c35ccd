package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type policyRepository interface {
	FindByCourse(ctx context.Context, courseID string) (*models.PostponementPolicy, error)
	List(ctx context.Context) ([]models.PostponementPolicy, error)
	Upsert(ctx context.Context, pol *models.PostponementPolicy) error
	Delete(ctx context.Context, courseID string) error
}

// UpsertPolicyRequest holds payload for setting a course's policy.
type UpsertPolicyRequest struct {
	MinimumRequired        int        `json:"minimum_required" validate:"required,min=1"`
	DeadlineDays           int        `json:"deadline_days" validate:"required,min=1"`
	EnableAutoPostponement bool       `json:"enable_auto_postponement"`
	NotifyUsers            bool       `json:"notify_users"`
	CustomMessage          string     `json:"custom_message"`
	DefaultNextCourseDate  *time.Time `json:"default_next_course_date"`
}

// PolicyService manages per-course postponement policies and resolves the
// effective policy: explicit row, else the course's embedded defaults, else
// package defaults.
type PolicyService struct {
	repo      policyRepository
	courses   courseLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPolicyService constructs the service.
func NewPolicyService(repo policyRepository, courses courseLookup, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Effective resolves the policy applied to a course.
func (s *PolicyService) Effective(ctx context.Context, courseID string) (*models.PostponementPolicy, error) {
	pol, err := s.repo.FindByCourse(ctx, courseID)
	if err == nil {
		return pol, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load postponement policy")
	}

	fallback := models.DefaultPolicy(courseID)
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		return &fallback, nil
	}
	if course.DefaultMinimumRequired != nil && *course.DefaultMinimumRequired > 0 {
		fallback.MinimumRequired = *course.DefaultMinimumRequired
	}
	if course.DefaultDeadlineDays != nil && *course.DefaultDeadlineDays > 0 {
		fallback.DeadlineDays = *course.DefaultDeadlineDays
	}
	if course.PolicyMessage != "" {
		fallback.CustomMessage = course.PolicyMessage
	}
	return &fallback, nil
}

// Get returns the explicit policy for a course.
func (s *PolicyService) Get(ctx context.Context, courseID string) (*models.PostponementPolicy, error) {
	pol, err := s.repo.FindByCourse(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no policy set for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load postponement policy")
	}
	return pol, nil
}

// List returns every explicit policy.
func (s *PolicyService) List(ctx context.Context) ([]models.PostponementPolicy, error) {
	policies, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list postponement policies")
	}
	return policies, nil
}

// Upsert creates or replaces the policy for a course.
func (s *PolicyService) Upsert(ctx context.Context, courseID string, req UpsertPolicyRequest) (*models.PostponementPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid policy payload")
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	pol := &models.PostponementPolicy{
		CourseID:               courseID,
		MinimumRequired:        req.MinimumRequired,
		DeadlineDays:           req.DeadlineDays,
		EnableAutoPostponement: req.EnableAutoPostponement,
		NotifyUsers:            req.NotifyUsers,
		CustomMessage:          req.CustomMessage,
		DefaultNextCourseDate:  req.DefaultNextCourseDate,
	}
	if err := s.repo.Upsert(ctx, pol); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save postponement policy")
	}
	return pol, nil
}

// Delete removes a course's explicit policy.
func (s *PolicyService) Delete(ctx context.Context, courseID string) error {
	if err := s.repo.Delete(ctx, courseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete postponement policy")
	}
	return nil
}

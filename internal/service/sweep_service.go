package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	"github.com/DancingAppsDays/uniprotec-api/internal/policy"
	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

const sweepLockName = "postponement-sweep"

type sweepCourseDateRepository interface {
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]models.CourseDate, error)
}

type courseDateTransitioner interface {
	Postpone(ctx context.Context, id string, req PostponeCourseDateRequest) (*models.CourseDate, error)
	UpdateStatus(ctx context.Context, id string, status models.CourseDateStatus) (*models.CourseDate, error)
}

type sweepLocker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

type sweepMetrics interface {
	ObserveSweep(result models.SweepResult)
}

// SweepService runs the postponement check over upcoming scheduled sessions.
// Each session is resolved against its effective policy: below minimum means
// auto-postpone or an at-risk warning, at or above minimum means confirm.
// Per-item failures are counted and never abort the run.
type SweepService struct {
	repo        sweepCourseDateRepository
	transitions courseDateTransitioner
	policies    effectivePolicyResolver
	users       rosterUserLookup
	locks       sweepLocker
	dispatcher  notificationDispatcher
	metrics     sweepMetrics
	cfg         config.SweepConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewSweepService constructs the sweep.
func NewSweepService(repo sweepCourseDateRepository, transitions courseDateTransitioner, policies effectivePolicyResolver, users rosterUserLookup, locks sweepLocker, dispatcher notificationDispatcher, metrics sweepMetrics, cfg config.SweepConfig, logger *zap.Logger) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepService{
		repo:        repo,
		transitions: transitions,
		policies:    policies,
		users:       users,
		locks:       locks,
		dispatcher:  dispatcher,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one sweep. Only one run is active at a time across all
// instances; a concurrent run returns Conflict.
func (s *SweepService) Run(ctx context.Context) (*models.SweepResult, error) {
	owner := uuid.NewString()
	acquired, err := s.locks.AcquireLock(ctx, sweepLockName, owner, s.cfg.LockTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire sweep lock")
	}
	if !acquired {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a postponement check is already running")
	}
	defer func() {
		if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), sweepLockName, owner); err != nil {
			s.logger.Sugar().Warnw("failed to release sweep lock", "error", err)
		}
	}()

	now := s.now()
	dates, err := s.repo.ListScheduledBetween(ctx, now, now.Add(s.cfg.Horizon))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course dates for sweep")
	}

	result := &models.SweepResult{Total: len(dates)}
	for i := range dates {
		if ctx.Err() != nil {
			s.logger.Sugar().Warnw("sweep canceled mid-run", "processed", result.Processed, "total", result.Total)
			break
		}
		s.processItem(ctx, &dates[i], now, result)
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(*result)
	}
	s.logger.Sugar().Infow("postponement sweep finished",
		"total", result.Total, "processed", result.Processed,
		"postponed", result.Postponed, "confirmed", result.Confirmed, "errors", result.Errors)
	return result, nil
}

func (s *SweepService) processItem(ctx context.Context, cd *models.CourseDate, now time.Time, result *models.SweepResult) {
	itemCtx := ctx
	if s.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, s.cfg.ItemTimeout)
		defer cancel()
	}

	pol, err := s.policies.Effective(itemCtx, cd.CourseID)
	if err != nil {
		s.logger.Sugar().Errorw("sweep item failed", "course_date_id", cd.ID, "error", err)
		result.Errors++
		return
	}
	assessment := policy.Evaluate(cd, pol, now)

	switch {
	case !assessment.WithinDeadline:
		// Horizon is wider than this course's deadline; leave it for a
		// later run.
		result.Processed++

	case assessment.BelowMinimum && pol.EnableAutoPostponement:
		req := PostponeCourseDateRequest{
			Reason:       "Insufficient enrollment",
			NewStartDate: pol.DefaultNextCourseDate,
			Notify:       pol.NotifyUsers,
		}
		if _, err := s.transitions.Postpone(itemCtx, cd.ID, req); err != nil {
			s.logger.Sugar().Errorw("sweep failed to postpone", "course_date_id", cd.ID, "error", err)
			result.Errors++
			return
		}
		result.Postponed++
		result.Processed++

	case assessment.BelowMinimum:
		s.warnRoster(itemCtx, cd, pol, assessment)
		result.Processed++

	default:
		if _, err := s.transitions.UpdateStatus(itemCtx, cd.ID, models.CourseDateStatusConfirmed); err != nil {
			s.logger.Sugar().Errorw("sweep failed to confirm", "course_date_id", cd.ID, "error", err)
			result.Errors++
			return
		}
		result.Confirmed++
		result.Processed++
	}
}

// warnRoster tells enrolled users their session may be postponed.
func (s *SweepService) warnRoster(ctx context.Context, cd *models.CourseDate, pol *models.PostponementPolicy, assessment policy.Assessment) {
	if s.dispatcher == nil || !pol.NotifyUsers || len(cd.EnrolledUserIDs) == 0 {
		return
	}
	users, err := s.users.FindByIDs(ctx, cd.EnrolledUserIDs)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve roster for warning", "course_date_id", cd.ID, "error", err)
		return
	}
	for _, u := range users {
		s.dispatcher.Dispatch(notifier.Message{
			To:   u.Email,
			Kind: notifier.KindPostponementWarning,
			Payload: map[string]interface{}{
				"course_date_id":   cd.ID,
				"start_date":       cd.StartDate,
				"days_until_start": assessment.DaysUntilStart,
				"enrolled":         cd.EnrolledCount,
				"minimum_required": assessment.MinimumRequired,
				"message":          pol.CustomMessage,
			},
		})
	}
}

// Schedule runs the sweep on a fixed interval until ctx is canceled.
func (s *SweepService) Schedule(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Sugar().Infow("postponement sweep disabled")
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil {
					if appErrors.Is(err, appErrors.ErrConflict) {
						s.logger.Sugar().Infow("skipping sweep, another run holds the lock")
						continue
					}
					s.logger.Sugar().Errorw("scheduled sweep failed", "error", err)
				}
			}
		}
	}()
}

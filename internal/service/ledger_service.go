package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/repository"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

// maxSeatRetries bounds the optimistic-locking retry loop. Conflicts are
// short-lived; anything past this points at a stuck writer.
const maxSeatRetries = 5

type ledgerCourseDateRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseDate, error)
	UpdateSeats(ctx context.Context, cd *models.CourseDate) error
}

// LedgerService is the single serialization point for seat accounting.
// Every enrolled_count mutation in the system goes through here: roster
// enrollments, company seat blocks, and their releases. Mutations are
// applied under optimistic locking with a bounded retry loop.
type LedgerService struct {
	repo   ledgerCourseDateRepository
	logger *zap.Logger
}

// NewLedgerService constructs the ledger.
func NewLedgerService(repo ledgerCourseDateRepository, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{repo: repo, logger: logger}
}

// ReserveSeats blocks n anonymous seats on a course date. Used by paid
// company purchases; the seats count against capacity without roster
// entries. Crossing minimum_required promotes Scheduled to Confirmed.
func (s *LedgerService) ReserveSeats(ctx context.Context, courseDateID string, n int) (*models.CourseDate, error) {
	if n <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidQuantity, "seat quantity must be positive")
	}
	return s.mutate(ctx, courseDateID, func(cd *models.CourseDate) error {
		if !seatMutable(cd.Status) {
			return appErrors.Clone(appErrors.ErrPolicyViolation, "course date does not accept reservations")
		}
		if cd.EnrolledCount+n > cd.Capacity {
			return appErrors.Clone(appErrors.ErrCapacityExceeded, "not enough seats available")
		}
		cd.EnrolledCount += n
		promoteIfMinimumMet(cd)
		return nil
	})
}

// ReleaseSeats returns up to n anonymous seats to the pool, clamping at the
// current count. The status is never reverted: a Confirmed date stays
// Confirmed even if the count drops below minimum_required again.
func (s *LedgerService) ReleaseSeats(ctx context.Context, courseDateID string, n int) (*models.CourseDate, error) {
	if n <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidQuantity, "seat quantity must be positive")
	}
	return s.mutate(ctx, courseDateID, func(cd *models.CourseDate) error {
		// Clamp against the freshly read count on every attempt; a retry
		// after a version conflict must not reuse a stale clamp.
		release := n
		if release > cd.EnrolledCount {
			s.logger.Sugar().Warnw("clamping seat release",
				"course_date_id", cd.ID, "requested", n, "enrolled", cd.EnrolledCount)
			release = cd.EnrolledCount
		}
		cd.EnrolledCount -= release
		return nil
	})
}

// AddEnrolledUser takes one seat and puts the user on the roster. Duplicate
// adds and over-capacity adds are rejected here even when callers check
// first; racing callers both pass the pre-check.
func (s *LedgerService) AddEnrolledUser(ctx context.Context, courseDateID, userID string) (*models.CourseDate, error) {
	return s.mutate(ctx, courseDateID, func(cd *models.CourseDate) error {
		if !seatMutable(cd.Status) {
			return appErrors.Clone(appErrors.ErrPolicyViolation, "course date does not accept enrollments")
		}
		if cd.HasEnrolledUser(userID) {
			return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		}
		if cd.EnrolledCount >= cd.Capacity {
			return appErrors.Clone(appErrors.ErrCapacityFull, "")
		}
		cd.EnrolledUserIDs = append(cd.EnrolledUserIDs, userID)
		cd.EnrolledCount++
		promoteIfMinimumMet(cd)
		return nil
	})
}

// RemoveEnrolledUser frees the user's seat and drops them from the roster.
func (s *LedgerService) RemoveEnrolledUser(ctx context.Context, courseDateID, userID string) (*models.CourseDate, error) {
	return s.mutate(ctx, courseDateID, func(cd *models.CourseDate) error {
		if !cd.HasEnrolledUser(userID) {
			return appErrors.Clone(appErrors.ErrPolicyViolation, "user is not on the roster")
		}
		roster := cd.EnrolledUserIDs[:0]
		for _, id := range cd.EnrolledUserIDs {
			if id != userID {
				roster = append(roster, id)
			}
		}
		cd.EnrolledUserIDs = roster
		if cd.EnrolledCount > 0 {
			cd.EnrolledCount--
		}
		return nil
	})
}

// mutate re-reads the course date, applies fn and writes the result back,
// retrying on version conflicts. fn sees the freshest row on each attempt.
func (s *LedgerService) mutate(ctx context.Context, courseDateID string, fn func(*models.CourseDate) error) (*models.CourseDate, error) {
	for attempt := 0; attempt < maxSeatRetries; attempt++ {
		cd, err := s.repo.FindByID(ctx, courseDateID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
		}

		if err := fn(cd); err != nil {
			return nil, err
		}

		err = s.repo.UpdateSeats(ctx, cd)
		if err == nil {
			return cd, nil
		}
		if err != repository.ErrVersionConflict {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update seats")
		}
		s.logger.Sugar().Debugw("seat update conflict, retrying",
			"course_date_id", courseDateID, "attempt", attempt+1)
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "course date is being updated concurrently, try again")
}

func seatMutable(status models.CourseDateStatus) bool {
	return status == models.CourseDateStatusScheduled || status == models.CourseDateStatusConfirmed
}

func promoteIfMinimumMet(cd *models.CourseDate) {
	if cd.Status == models.CourseDateStatusScheduled && cd.EnrolledCount >= cd.MinimumRequired {
		cd.Status = models.CourseDateStatusConfirmed
	}
}

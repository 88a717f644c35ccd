package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
)

const reminderLockName = "course-reminders"

type reminderCourseDateRepository interface {
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.CourseDate, error)
}

type reminderEnrollmentLookup interface {
	ListByCourseDate(ctx context.Context, courseDateID string, status models.EnrollmentStatus) ([]models.Enrollment, error)
}

// ReminderService sends start-date reminders for confirmed sessions a fixed
// number of days ahead. Only confirmed enrollments are reminded.
type ReminderService struct {
	courseDates reminderCourseDateRepository
	enrollments reminderEnrollmentLookup
	users       rosterUserLookup
	locks       sweepLocker
	dispatcher  notificationDispatcher
	cfg         config.RemindersConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewReminderService constructs the service.
func NewReminderService(courseDates reminderCourseDateRepository, enrollments reminderEnrollmentLookup, users rosterUserLookup, locks sweepLocker, dispatcher notificationDispatcher, cfg config.RemindersConfig, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{
		courseDates: courseDates,
		enrollments: enrollments,
		users:       users,
		locks:       locks,
		dispatcher:  dispatcher,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Run sends reminders for sessions starting on the target day.
func (s *ReminderService) Run(ctx context.Context) (int, error) {
	owner := uuid.NewString()
	acquired, err := s.locks.AcquireLock(ctx, reminderLockName, owner, time.Hour)
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), reminderLockName, owner); err != nil {
			s.logger.Sugar().Warnw("failed to release reminder lock", "error", err)
		}
	}()

	target := s.now().UTC().AddDate(0, 0, s.cfg.LeadDays)
	dayStart := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	dates, err := s.courseDates.ListConfirmedStartingBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range dates {
		if ctx.Err() != nil {
			break
		}
		sent += s.remind(ctx, &dates[i])
	}
	s.logger.Sugar().Infow("course reminders sent", "sessions", len(dates), "reminders", sent)
	return sent, nil
}

func (s *ReminderService) remind(ctx context.Context, cd *models.CourseDate) int {
	enrollments, err := s.enrollments.ListByCourseDate(ctx, cd.ID, models.EnrollmentStatusConfirmed)
	if err != nil {
		s.logger.Sugar().Warnw("failed to list enrollments for reminders", "course_date_id", cd.ID, "error", err)
		return 0
	}
	if len(enrollments) == 0 {
		return 0
	}
	userIDs := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		userIDs = append(userIDs, e.UserID)
	}
	users, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve users for reminders", "course_date_id", cd.ID, "error", err)
		return 0
	}

	for _, u := range users {
		s.dispatcher.Dispatch(notifier.Message{
			To:   u.Email,
			Kind: notifier.KindCourseReminder,
			Payload: map[string]interface{}{
				"course_date_id": cd.ID,
				"start_date":     cd.StartDate,
				"location":       cd.Location,
				"meeting_url":    cd.MeetingURL,
			},
		})
	}
	return len(users)
}

// Schedule runs the reminder task on a fixed interval until ctx is canceled.
func (s *ReminderService) Schedule(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Sugar().Infow("course reminders disabled")
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
					s.logger.Sugar().Errorw("scheduled reminders failed", "error", err)
				}
			}
		}
	}()
}

package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, userID, courseDateID string) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	SetStatusAndMetadata(ctx context.Context, id string, status models.EnrollmentStatus, meta models.Metadata) error
	MarkEmailSent(ctx context.Context, id string, sentAt time.Time) error
	SaveFeedback(ctx context.Context, id, feedback string, rating int) error
}

type seatLedger interface {
	AddEnrolledUser(ctx context.Context, courseDateID, userID string) (*models.CourseDate, error)
	RemoveEnrolledUser(ctx context.Context, courseDateID, userID string) (*models.CourseDate, error)
}

type enrollmentUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentCourseDateLookup interface {
	FindByID(ctx context.Context, id string) (*models.CourseDate, error)
}

// CreateEnrollmentRequest holds payload for enrolling a user.
type CreateEnrollmentRequest struct {
	UserID       string  `json:"user_id" validate:"required"`
	CourseDateID string  `json:"course_date_id" validate:"required"`
	PaymentID    *string `json:"payment_id"`
}

// CancelEnrollmentRequest holds payload for canceling an enrollment.
type CancelEnrollmentRequest struct {
	Reason string `json:"reason"`
}

// FeedbackRequest holds payload for rating a completed course.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
}

// EnrollmentService handles enrollment lifecycle use-cases. Seat accounting
// is delegated to the ledger; this layer adds the user-facing checks and
// notification side effects.
type EnrollmentService struct {
	repo        enrollmentRepository
	ledger      seatLedger
	users       enrollmentUserLookup
	courseDates enrollmentCourseDateLookup
	dispatcher  notificationDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(repo enrollmentRepository, ledger seatLedger, users enrollmentUserLookup, courseDates enrollmentCourseDateLookup, dispatcher notificationDispatcher, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		ledger:      ledger,
		users:       users,
		courseDates: courseDates,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger,
	}
}

// Create enrolls a user on a course date. With a payment reference the
// enrollment starts Confirmed and the user gets their access details;
// without one it starts Pending.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	cd, err := s.courseDates.FindByID(ctx, req.CourseDateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
	}

	// Pre-checks give callers precise errors; the ledger re-checks under
	// the version lock and is authoritative.
	exists, err := s.repo.ExistsActive(ctx, req.UserID, req.CourseDateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}
	if cd.SeatsRemaining() <= 0 {
		return nil, appErrors.Clone(appErrors.ErrCapacityFull, "")
	}

	cd, err = s.ledger.AddEnrolledUser(ctx, req.CourseDateID, req.UserID)
	if err != nil {
		return nil, err
	}

	status := models.EnrollmentStatusPending
	if req.PaymentID != nil && *req.PaymentID != "" {
		status = models.EnrollmentStatusConfirmed
	}
	enrollment := &models.Enrollment{
		UserID:       req.UserID,
		CourseDateID: req.CourseDateID,
		Status:       status,
		PaymentID:    req.PaymentID,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if _, releaseErr := s.ledger.RemoveEnrolledUser(ctx, req.CourseDateID, req.UserID); releaseErr != nil {
			s.logger.Sugar().Errorw("failed to release seat after enrollment create failure",
				"course_date_id", req.CourseDateID, "user_id", req.UserID, "error", releaseErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if status == models.EnrollmentStatusConfirmed {
		s.sendAccessDetails(ctx, enrollment, user.Email, cd)
	}
	s.logger.Sugar().Infow("enrollment created",
		"enrollment_id", enrollment.ID, "course_date_id", cd.ID, "status", status)
	return enrollment, nil
}

// Get returns an enrollment with user and session info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Cancel releases the user's seat and records the reason.
func (s *EnrollmentService) Cancel(ctx context.Context, id string, req CancelEnrollmentRequest) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "enrollment is already inactive")
	}

	meta := enrollment.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}
	if req.Reason != "" {
		meta[models.MetaCancellationReason] = req.Reason
	}
	if err := s.repo.SetStatusAndMetadata(ctx, id, models.EnrollmentStatusCanceled, meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	enrollment.Status = models.EnrollmentStatusCanceled
	enrollment.Metadata = meta

	if _, err := s.ledger.RemoveEnrolledUser(ctx, enrollment.CourseDateID, enrollment.UserID); err != nil {
		// The seat may already be gone when the course date itself was
		// canceled or postponed. The cancellation stands either way.
		s.logger.Sugar().Warnw("failed to release seat on cancellation",
			"enrollment_id", id, "course_date_id", enrollment.CourseDateID, "error", err)
	}

	s.notifyUser(ctx, enrollment.UserID, notifier.KindCancellation, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"reason":        req.Reason,
	})
	return enrollment, nil
}

// UpdateStatus applies an admin status transition. Confirming sends the
// user their access details if they have not received them yet.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	switch status {
	case models.EnrollmentStatusPending, models.EnrollmentStatusConfirmed, models.EnrollmentStatusCompleted,
		models.EnrollmentStatusPostponed, models.EnrollmentStatusRefunded:
	case models.EnrollmentStatusCanceled:
		return nil, appErrors.Clone(appErrors.ErrValidation, "use the cancel operation for this transition")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	previous := enrollment.Status

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = status

	// A refund ends the enrollment, so the seat goes back to the pool like
	// on cancellation. The seat may already be gone when the course date
	// itself was canceled or postponed.
	if status == models.EnrollmentStatusRefunded && previous.Active() {
		if _, err := s.ledger.RemoveEnrolledUser(ctx, enrollment.CourseDateID, enrollment.UserID); err != nil {
			s.logger.Sugar().Warnw("failed to release seat on refund",
				"enrollment_id", id, "course_date_id", enrollment.CourseDateID, "error", err)
		}
	}

	if status == models.EnrollmentStatusConfirmed && previous != models.EnrollmentStatusConfirmed && !enrollment.EmailSent {
		cd, err := s.courseDates.FindByID(ctx, enrollment.CourseDateID)
		if err != nil {
			s.logger.Sugar().Warnw("skipping access notification", "enrollment_id", id, "error", err)
			return enrollment, nil
		}
		user, err := s.users.FindByID(ctx, enrollment.UserID)
		if err != nil {
			s.logger.Sugar().Warnw("skipping access notification", "enrollment_id", id, "error", err)
			return enrollment, nil
		}
		s.sendAccessDetails(ctx, enrollment, user.Email, cd)
	}
	return enrollment, nil
}

// ProvideFeedback stores a rating on a completed enrollment.
func (s *EnrollmentService) ProvideFeedback(ctx context.Context, id string, req FeedbackRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rating must be between 1 and 5")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "feedback is only accepted on completed enrollments")
	}

	if err := s.repo.SaveFeedback(ctx, id, req.Feedback, req.Rating); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save feedback")
	}
	enrollment.Feedback = &req.Feedback
	enrollment.FeedbackRating = &req.Rating
	return enrollment, nil
}

func (s *EnrollmentService) sendAccessDetails(ctx context.Context, enrollment *models.Enrollment, email string, cd *models.CourseDate) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(notifier.Message{
		To:   email,
		Kind: notifier.KindCourseAccess,
		Payload: map[string]interface{}{
			"enrollment_id": enrollment.ID,
			"start_date":    cd.StartDate,
			"location":      cd.Location,
			"meeting_url":   cd.MeetingURL,
			"zoom_id":       cd.ZoomMeetingID,
			"zoom_password": cd.ZoomPassword,
		},
	})
	if err := s.repo.MarkEmailSent(ctx, enrollment.ID, time.Now().UTC()); err != nil {
		s.logger.Sugar().Warnw("failed to record access email", "enrollment_id", enrollment.ID, "error", err)
	}
	enrollment.EmailSent = true
}

func (s *EnrollmentService) notifyUser(ctx context.Context, userID string, kind notifier.Kind, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve user for notification", "user_id", userID, "kind", kind, "error", err)
		return
	}
	s.dispatcher.Dispatch(notifier.Message{To: user.Email, Kind: kind, Payload: payload})
}

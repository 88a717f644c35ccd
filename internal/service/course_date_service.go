package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	"github.com/DancingAppsDays/uniprotec-api/internal/policy"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type courseDateRepository interface {
	Create(ctx context.Context, cd *models.CourseDate) error
	FindByID(ctx context.Context, id string) (*models.CourseDate, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDateDetail, error)
	List(ctx context.Context, filter models.CourseDateFilter) ([]models.CourseDateDetail, int, error)
	ListUpcoming(ctx context.Context, limit int) ([]models.CourseDateDetail, error)
	UpdateDetails(ctx context.Context, cd *models.CourseDate) error
	SetStatus(ctx context.Context, id string, status models.CourseDateStatus) error
	SetStatusAndMetadata(ctx context.Context, id string, status models.CourseDateStatus, meta models.Metadata) error
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type rosterUserLookup interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type effectivePolicyResolver interface {
	Effective(ctx context.Context, courseID string) (*models.PostponementPolicy, error)
}

type notificationDispatcher interface {
	Dispatch(msg notifier.Message)
	DispatchAdmins(msg notifier.Message)
}

// CreateCourseDateRequest holds payload for scheduling a session.
type CreateCourseDateRequest struct {
	CourseID        string    `json:"course_id" validate:"required"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Capacity        int       `json:"capacity" validate:"required,min=1"`
	MinimumRequired int       `json:"minimum_required" validate:"min=0"`
	Instructor      string    `json:"instructor" validate:"required"`
	Location        string    `json:"location" validate:"required"`
	MeetingURL      string    `json:"meeting_url"`
	ZoomMeetingID   string    `json:"zoom_meeting_id"`
	ZoomPassword    string    `json:"zoom_password"`
	Notes           string    `json:"notes"`
}

// UpdateCourseDateRequest holds payload for editing schedule fields.
type UpdateCourseDateRequest struct {
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Capacity        int       `json:"capacity" validate:"required,min=1"`
	MinimumRequired int       `json:"minimum_required" validate:"min=0"`
	Instructor      string    `json:"instructor" validate:"required"`
	Location        string    `json:"location" validate:"required"`
	MeetingURL      string    `json:"meeting_url"`
	ZoomMeetingID   string    `json:"zoom_meeting_id"`
	ZoomPassword    string    `json:"zoom_password"`
	Notes           string    `json:"notes"`
}

// PostponeCourseDateRequest holds payload for postponing a session.
type PostponeCourseDateRequest struct {
	Reason       string     `json:"reason" validate:"required"`
	NewStartDate *time.Time `json:"new_start_date"`
	Notify       bool       `json:"notify"`
}

// CancelCourseDateRequest holds payload for canceling a session.
type CancelCourseDateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// AtRiskCourseDate pairs an upcoming session with its policy assessment.
type AtRiskCourseDate struct {
	models.CourseDateDetail
	Assessment policy.Assessment `json:"assessment"`
}

// CourseDateService handles session scheduling and lifecycle transitions.
// Seat counts are out of bounds here; those belong to the ledger.
type CourseDateService struct {
	repo       courseDateRepository
	courses    courseLookup
	users      rosterUserLookup
	policies   effectivePolicyResolver
	dispatcher notificationDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewCourseDateService constructs the service.
func NewCourseDateService(repo courseDateRepository, courses courseLookup, users rosterUserLookup, policies effectivePolicyResolver, dispatcher notificationDispatcher, validate *validator.Validate, logger *zap.Logger) *CourseDateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseDateService{
		repo:       repo,
		courses:    courses,
		users:      users,
		policies:   policies,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// Create schedules a new session for an existing course.
func (s *CourseDateService) Create(ctx context.Context, req CreateCourseDateRequest) (*models.CourseDate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course date payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	minimum := req.MinimumRequired
	if minimum <= 0 {
		minimum = models.DefaultMinimumRequired
	}
	cd := &models.CourseDate{
		CourseID:        req.CourseID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Capacity:        req.Capacity,
		MinimumRequired: minimum,
		Instructor:      req.Instructor,
		Location:        req.Location,
		MeetingURL:      req.MeetingURL,
		ZoomMeetingID:   req.ZoomMeetingID,
		ZoomPassword:    req.ZoomPassword,
		Notes:           req.Notes,
	}
	if err := s.repo.Create(ctx, cd); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course date")
	}
	return cd, nil
}

// Get returns a session with catalog info.
func (s *CourseDateService) Get(ctx context.Context, id string) (*models.CourseDateDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
	}
	return detail, nil
}

// List returns sessions and pagination metadata.
func (s *CourseDateService) List(ctx context.Context, filter models.CourseDateFilter) ([]models.CourseDateDetail, *models.Pagination, error) {
	dates, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course dates")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return dates, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListUpcoming returns open sessions starting after now.
func (s *CourseDateService) ListUpcoming(ctx context.Context, limit int) ([]models.CourseDateDetail, error) {
	dates, err := s.repo.ListUpcoming(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming course dates")
	}
	return dates, nil
}

// ListAtRisk returns upcoming sessions whose enrollment is below the
// effective minimum inside the policy deadline. Dashboard view of what the
// next sweep would act on.
func (s *CourseDateService) ListAtRisk(ctx context.Context) ([]AtRiskCourseDate, error) {
	dates, err := s.repo.ListUpcoming(ctx, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming course dates")
	}

	now := s.now()
	var atRisk []AtRiskCourseDate
	for i := range dates {
		if dates[i].Status != models.CourseDateStatusScheduled {
			continue
		}
		pol, err := s.policies.Effective(ctx, dates[i].CourseID)
		if err != nil {
			s.logger.Sugar().Warnw("skipping at-risk evaluation",
				"course_date_id", dates[i].ID, "error", err)
			continue
		}
		assessment := policy.Evaluate(&dates[i].CourseDate, pol, now)
		if assessment.AtRisk {
			atRisk = append(atRisk, AtRiskCourseDate{CourseDateDetail: dates[i], Assessment: assessment})
		}
	}
	return atRisk, nil
}

// Update edits schedule fields of a session.
func (s *CourseDateService) Update(ctx context.Context, id string, req UpdateCourseDateRequest) (*models.CourseDate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course date payload")
	}
	cd, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
	}
	if req.Capacity < cd.EnrolledCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity cannot drop below current enrollment")
	}

	cd.StartDate = req.StartDate
	cd.EndDate = req.EndDate
	cd.Capacity = req.Capacity
	if req.MinimumRequired > 0 {
		cd.MinimumRequired = req.MinimumRequired
	}
	cd.Instructor = req.Instructor
	cd.Location = req.Location
	cd.MeetingURL = req.MeetingURL
	cd.ZoomMeetingID = req.ZoomMeetingID
	cd.ZoomPassword = req.ZoomPassword
	cd.Notes = req.Notes

	if err := s.repo.UpdateDetails(ctx, cd); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course date")
	}
	return cd, nil
}

// UpdateStatus applies an explicit status transition. Confirming a session
// sends the roster their access details.
func (s *CourseDateService) UpdateStatus(ctx context.Context, id string, status models.CourseDateStatus) (*models.CourseDate, error) {
	switch status {
	case models.CourseDateStatusScheduled, models.CourseDateStatusConfirmed, models.CourseDateStatusCompleted:
	case models.CourseDateStatusPostponed, models.CourseDateStatusCanceled:
		return nil, appErrors.Clone(appErrors.ErrValidation, "use the postpone or cancel operation for this transition")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course date status")
	}

	cd, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
	}

	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course date status")
	}
	previous := cd.Status
	cd.Status = status

	if status == models.CourseDateStatusConfirmed && previous != models.CourseDateStatusConfirmed {
		s.notifyRoster(ctx, cd, notifier.KindCourseConfirmed, map[string]interface{}{
			"start_date":  cd.StartDate,
			"location":    cd.Location,
			"meeting_url": cd.MeetingURL,
		})
	}
	return cd, nil
}

// Postpone moves a session to Postponed. When a new start date is given, a
// successor session is scheduled with the same capacity, instructor,
// location, roster and minimum, and the original duration preserved.
func (s *CourseDateService) Postpone(ctx context.Context, id string, req PostponeCourseDateRequest) (*models.CourseDate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid postpone payload")
	}
	cd, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
	}
	if cd.Status != models.CourseDateStatusScheduled && cd.Status != models.CourseDateStatusConfirmed {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "only scheduled or confirmed course dates can be postponed")
	}

	var successor *models.CourseDate
	if req.NewStartDate != nil {
		duration := cd.EndDate.Sub(cd.StartDate)
		successor = &models.CourseDate{
			CourseID:        cd.CourseID,
			StartDate:       *req.NewStartDate,
			EndDate:         req.NewStartDate.Add(duration),
			Capacity:        cd.Capacity,
			EnrolledCount:   cd.EnrolledCount,
			MinimumRequired: cd.MinimumRequired,
			Instructor:      cd.Instructor,
			Location:        cd.Location,
			MeetingURL:      cd.MeetingURL,
			ZoomMeetingID:   cd.ZoomMeetingID,
			ZoomPassword:    cd.ZoomPassword,
			EnrolledUserIDs: append(cd.EnrolledUserIDs[:0:0], cd.EnrolledUserIDs...),
			Notes:           cd.Notes,
		}
		if err := s.repo.Create(ctx, successor); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rescheduled course date")
		}
	}

	meta := cd.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}
	meta[models.MetaPostponementReason] = req.Reason
	if successor != nil {
		meta[models.MetaRescheduledTo] = successor.ID
	}
	if err := s.repo.SetStatusAndMetadata(ctx, id, models.CourseDateStatusPostponed, meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to postpone course date")
	}
	cd.Status = models.CourseDateStatusPostponed
	cd.Metadata = meta

	if req.Notify {
		payload := map[string]interface{}{"reason": req.Reason}
		if successor != nil {
			payload["new_start_date"] = successor.StartDate
		}
		s.notifyRoster(ctx, cd, notifier.KindPostponement, payload)
	}
	s.logger.Sugar().Infow("course date postponed",
		"course_date_id", cd.ID, "reason", req.Reason, "rescheduled", successor != nil)
	return cd, nil
}

// Cancel moves a session to Canceled and tells the roster.
func (s *CourseDateService) Cancel(ctx context.Context, id string, req CancelCourseDateRequest) (*models.CourseDate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}
	cd, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course date not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course date")
	}
	if cd.Status == models.CourseDateStatusCanceled || cd.Status == models.CourseDateStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "course date cannot be canceled in its current status")
	}

	meta := cd.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}
	meta[models.MetaCancellationReason] = req.Reason
	if err := s.repo.SetStatusAndMetadata(ctx, id, models.CourseDateStatusCanceled, meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel course date")
	}
	cd.Status = models.CourseDateStatusCanceled
	cd.Metadata = meta

	s.notifyRoster(ctx, cd, notifier.KindCancellation, map[string]interface{}{"reason": req.Reason})
	s.logger.Sugar().Infow("course date canceled", "course_date_id", cd.ID, "reason", req.Reason)
	return cd, nil
}

// notifyRoster fans a message out to everyone on the roster. Lookup failures
// are logged; notifications never fail the transition.
func (s *CourseDateService) notifyRoster(ctx context.Context, cd *models.CourseDate, kind notifier.Kind, payload map[string]interface{}) {
	if s.dispatcher == nil || len(cd.EnrolledUserIDs) == 0 {
		return
	}
	users, err := s.users.FindByIDs(ctx, cd.EnrolledUserIDs)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve roster for notification",
			"course_date_id", cd.ID, "kind", kind, "error", err)
		return
	}
	for _, u := range users {
		body := map[string]interface{}{"course_date_id": cd.ID}
		for k, v := range payload {
			body[k] = v
		}
		s.dispatcher.Dispatch(notifier.Message{To: u.Email, Kind: kind, Payload: body})
	}
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type enrollmentRepoStub struct {
	enrollments map[string]*models.Enrollment
	active      map[string]bool
	createErr   error
	emailsSent  []string
	feedback    map[string]int
}

func newEnrollmentRepoStub(enrollments ...*models.Enrollment) *enrollmentRepoStub {
	s := &enrollmentRepoStub{
		enrollments: map[string]*models.Enrollment{},
		active:      map[string]bool{},
		feedback:    map[string]int{},
	}
	for _, e := range enrollments {
		s.enrollments[e.ID] = e
	}
	return s
}

func (s *enrollmentRepoStub) Create(ctx context.Context, e *models.Enrollment) error {
	if s.createErr != nil {
		return s.createErr
	}
	e.ID = "enrollment-1"
	s.enrollments[e.ID] = e
	return nil
}

func (s *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (s *enrollmentRepoStub) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *e}, nil
}

func (s *enrollmentRepoStub) ExistsActive(ctx context.Context, userID, courseDateID string) (bool, error) {
	return s.active[userID+"/"+courseDateID], nil
}

func (s *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range s.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (s *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	e, ok := s.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	return nil
}

func (s *enrollmentRepoStub) SetStatusAndMetadata(ctx context.Context, id string, status models.EnrollmentStatus, meta models.Metadata) error {
	e, ok := s.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	e.Metadata = meta
	return nil
}

func (s *enrollmentRepoStub) MarkEmailSent(ctx context.Context, id string, sentAt time.Time) error {
	s.emailsSent = append(s.emailsSent, id)
	return nil
}

func (s *enrollmentRepoStub) SaveFeedback(ctx context.Context, id, feedback string, rating int) error {
	s.feedback[id] = rating
	return nil
}

type rosterLedgerStub struct {
	added     []seatCall
	removed   []seatCall
	addErr    error
	removeErr error
	date      *models.CourseDate
}

func (s *rosterLedgerStub) AddEnrolledUser(ctx context.Context, courseDateID, userID string) (*models.CourseDate, error) {
	if s.addErr != nil {
		return nil, s.addErr
	}
	s.added = append(s.added, seatCall{courseDateID, 1})
	if s.date != nil {
		return s.date, nil
	}
	return &models.CourseDate{ID: courseDateID}, nil
}

func (s *rosterLedgerStub) RemoveEnrolledUser(ctx context.Context, courseDateID, userID string) (*models.CourseDate, error) {
	if s.removeErr != nil {
		return nil, s.removeErr
	}
	s.removed = append(s.removed, seatCall{courseDateID, 1})
	return &models.CourseDate{ID: courseDateID}, nil
}

type dateLookupStub struct {
	dates map[string]*models.CourseDate
}

func (s *dateLookupStub) FindByID(ctx context.Context, id string) (*models.CourseDate, error) {
	cd, ok := s.dates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cd, nil
}

type enrollmentFixture struct {
	svc    *EnrollmentService
	repo   *enrollmentRepoStub
	ledger *rosterLedgerStub
	disp   *dispatcherStub
}

func newEnrollmentFixture(t *testing.T, enrollments ...*models.Enrollment) *enrollmentFixture {
	t.Helper()
	repo := newEnrollmentRepoStub(enrollments...)
	ledger := &rosterLedgerStub{}
	disp := &dispatcherStub{}
	users := &userLookupStub{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "user1@example.com"},
	}}
	dates := &dateLookupStub{dates: map[string]*models.CourseDate{
		"cd-1": {
			ID:            "cd-1",
			CourseID:      "course-1",
			StartDate:     time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
			Capacity:      20,
			EnrolledCount: 3,
			Status:        models.CourseDateStatusScheduled,
			MeetingURL:    "https://zoom.example.com/j/123",
		},
	}}
	svc := NewEnrollmentService(repo, ledger, users, dates, disp, nil, nil)
	return &enrollmentFixture{svc: svc, repo: repo, ledger: ledger, disp: disp}
}

func paymentID(id string) *string { return &id }

func TestEnrollmentCreate(t *testing.T) {
	t.Run("pending without payment", func(t *testing.T) {
		f := newEnrollmentFixture(t)

		enrollment, err := f.svc.Create(context.Background(), CreateEnrollmentRequest{
			UserID:       "user-1",
			CourseDateID: "cd-1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
		assert.Len(t, f.ledger.added, 1)
		// Access details only go out on confirmation.
		assert.Empty(t, f.disp.messages)
	})

	t.Run("confirmed with payment sends access details", func(t *testing.T) {
		f := newEnrollmentFixture(t)

		enrollment, err := f.svc.Create(context.Background(), CreateEnrollmentRequest{
			UserID:       "user-1",
			CourseDateID: "cd-1",
			PaymentID:    paymentID("pay-1"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusConfirmed, enrollment.Status)
		require.Len(t, f.disp.messages, 1)
		assert.Equal(t, notifier.KindCourseAccess, f.disp.messages[0].Kind)
		assert.Equal(t, "user1@example.com", f.disp.messages[0].To)
		assert.Equal(t, []string{"enrollment-1"}, f.repo.emailsSent)
	})

	t.Run("duplicate active enrollment", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.repo.active["user-1/cd-1"] = true

		_, err := f.svc.Create(context.Background(), CreateEnrollmentRequest{
			UserID:       "user-1",
			CourseDateID: "cd-1",
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateEnrollment))
		assert.Empty(t, f.ledger.added)
	})

	t.Run("full course date", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.ledger.addErr = appErrors.Clone(appErrors.ErrCapacityFull, "")

		_, err := f.svc.Create(context.Background(), CreateEnrollmentRequest{
			UserID:       "user-1",
			CourseDateID: "cd-1",
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrCapacityFull))
	})

	t.Run("releases the seat when persistence fails", func(t *testing.T) {
		f := newEnrollmentFixture(t)
		f.repo.createErr = errors.New("db down")

		_, err := f.svc.Create(context.Background(), CreateEnrollmentRequest{
			UserID:       "user-1",
			CourseDateID: "cd-1",
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
		assert.Len(t, f.ledger.added, 1)
		assert.Len(t, f.ledger.removed, 1)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newEnrollmentFixture(t)

		_, err := f.svc.Create(context.Background(), CreateEnrollmentRequest{
			UserID:       "ghost",
			CourseDateID: "cd-1",
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	})
}

func TestEnrollmentCancel(t *testing.T) {
	t.Run("cancels and releases the seat", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:           "enrollment-1",
			UserID:       "user-1",
			CourseDateID: "cd-1",
			Status:       models.EnrollmentStatusConfirmed,
		})

		enrollment, err := f.svc.Cancel(context.Background(), "enrollment-1", CancelEnrollmentRequest{Reason: "schedule clash"})
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCanceled, enrollment.Status)
		assert.Equal(t, "schedule clash", enrollment.Metadata.String(models.MetaCancellationReason))
		assert.Len(t, f.ledger.removed, 1)
		assert.Contains(t, f.disp.kinds(), notifier.KindCancellation)
	})

	t.Run("cancellation survives a seat release failure", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:           "enrollment-1",
			UserID:       "user-1",
			CourseDateID: "cd-1",
			Status:       models.EnrollmentStatusConfirmed,
		})
		f.ledger.removeErr = appErrors.Clone(appErrors.ErrPolicyViolation, "")

		enrollment, err := f.svc.Cancel(context.Background(), "enrollment-1", CancelEnrollmentRequest{})
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCanceled, enrollment.Status)
	})

	t.Run("inactive enrollment", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:     "enrollment-1",
			Status: models.EnrollmentStatusCanceled,
		})

		_, err := f.svc.Cancel(context.Background(), "enrollment-1", CancelEnrollmentRequest{})
		assert.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))
	})
}

func TestEnrollmentUpdateStatus(t *testing.T) {
	t.Run("confirming sends access details once", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:           "enrollment-1",
			UserID:       "user-1",
			CourseDateID: "cd-1",
			Status:       models.EnrollmentStatusPending,
		})

		enrollment, err := f.svc.UpdateStatus(context.Background(), "enrollment-1", models.EnrollmentStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusConfirmed, enrollment.Status)
		require.Len(t, f.disp.messages, 1)
		assert.Equal(t, notifier.KindCourseAccess, f.disp.messages[0].Kind)
	})

	t.Run("already notified user is not emailed again", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:           "enrollment-1",
			UserID:       "user-1",
			CourseDateID: "cd-1",
			Status:       models.EnrollmentStatusPending,
			EmailSent:    true,
		})

		_, err := f.svc.UpdateStatus(context.Background(), "enrollment-1", models.EnrollmentStatusConfirmed)
		require.NoError(t, err)
		assert.Empty(t, f.disp.messages)
	})

	t.Run("refund releases the seat", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:           "enrollment-1",
			UserID:       "user-1",
			CourseDateID: "cd-1",
			Status:       models.EnrollmentStatusConfirmed,
		})

		enrollment, err := f.svc.UpdateStatus(context.Background(), "enrollment-1", models.EnrollmentStatusRefunded)
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusRefunded, enrollment.Status)
		assert.Len(t, f.ledger.removed, 1)
	})

	t.Run("refunding an already inactive enrollment keeps the seat count", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:           "enrollment-1",
			UserID:       "user-1",
			CourseDateID: "cd-1",
			Status:       models.EnrollmentStatusRefunded,
		})

		_, err := f.svc.UpdateStatus(context.Background(), "enrollment-1", models.EnrollmentStatusRefunded)
		require.NoError(t, err)
		assert.Empty(t, f.ledger.removed)
	})

	t.Run("cancel goes through the cancel operation", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{ID: "enrollment-1"})

		_, err := f.svc.UpdateStatus(context.Background(), "enrollment-1", models.EnrollmentStatusCanceled)
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})
}

func TestEnrollmentFeedback(t *testing.T) {
	t.Run("stores rating on completed enrollment", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:     "enrollment-1",
			Status: models.EnrollmentStatusCompleted,
		})

		enrollment, err := f.svc.ProvideFeedback(context.Background(), "enrollment-1", FeedbackRequest{
			Feedback: "great course",
			Rating:   5,
		})
		require.NoError(t, err)
		require.NotNil(t, enrollment.FeedbackRating)
		assert.Equal(t, 5, *enrollment.FeedbackRating)
		assert.Equal(t, 5, f.repo.feedback["enrollment-1"])
	})

	t.Run("rejects feedback before completion", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:     "enrollment-1",
			Status: models.EnrollmentStatusConfirmed,
		})

		_, err := f.svc.ProvideFeedback(context.Background(), "enrollment-1", FeedbackRequest{Rating: 4})
		assert.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))
	})

	t.Run("rejects out of range rating", func(t *testing.T) {
		f := newEnrollmentFixture(t, &models.Enrollment{
			ID:     "enrollment-1",
			Status: models.EnrollmentStatusCompleted,
		})

		_, err := f.svc.ProvideFeedback(context.Background(), "enrollment-1", FeedbackRequest{Rating: 6})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})
}

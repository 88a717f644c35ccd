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
	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type paymentRepoStub struct {
	payments map[string]*models.Payment
}

func (s *paymentRepoStub) Create(ctx context.Context, p *models.Payment) error {
	p.ID = "payment-1"
	return nil
}

func (s *paymentRepoStub) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	p, ok := s.payments[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *paymentRepoStub) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, paymentIntentID string) error {
	return nil
}

type eventClaimerStub struct {
	claimed  map[string]bool
	released []string
}

func (s *eventClaimerStub) ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if s.claimed == nil {
		s.claimed = map[string]bool{}
	}
	if s.claimed[eventID] {
		return false, nil
	}
	s.claimed[eventID] = true
	return true, nil
}

func (s *eventClaimerStub) ReleaseEvent(ctx context.Context, eventID string) error {
	delete(s.claimed, eventID)
	s.released = append(s.released, eventID)
	return nil
}

type enrollmentCreatorStub struct {
	requests []CreateEnrollmentRequest
	err      error
}

func (s *enrollmentCreatorStub) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	return &models.Enrollment{ID: "enrollment-1", UserID: req.UserID, CourseDateID: req.CourseDateID}, nil
}

type purchasePayerStub struct {
	paid []string
}

func (s *purchasePayerStub) UpdateStatus(ctx context.Context, id string, status models.CompanyPurchaseStatus, adminNotes string) (*models.CompanyPurchase, error) {
	s.paid = append(s.paid, id)
	return &models.CompanyPurchase{ID: id, Status: status}, nil
}

type paymentFixture struct {
	svc         *PaymentService
	events      *eventClaimerStub
	enrollments *enrollmentCreatorStub
	purchases   *purchasePayerStub
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	events := &eventClaimerStub{}
	enrollments := &enrollmentCreatorStub{}
	purchases := &purchasePayerStub{}
	courses := &courseCatalogStub{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Working at Heights", Price: 1500},
	}}
	dates := &dayLookupStub{dates: map[string]*models.CourseDate{
		"course-1": {ID: "cd-1", CourseID: "course-1"},
	}}
	svc := NewPaymentService(&paymentRepoStub{}, courses, dates, enrollments, purchases, events,
		config.StripeConfig{Currency: "mxn"}, time.Hour, nil, nil)
	return &paymentFixture{svc: svc, events: events, enrollments: enrollments, purchases: purchases}
}

func TestHandlePaymentConfirmed(t *testing.T) {
	t.Run("creates an enrollment for an individual payment", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.HandlePaymentConfirmed(context.Background(), models.PaymentConfirmedEvent{
			EventID:      "evt-1",
			CourseID:     "course-1",
			CourseDateID: "cd-1",
			UserID:       "user-1",
			PaymentID:    "payment-1",
		})
		require.NoError(t, err)
		require.Len(t, f.enrollments.requests, 1)
		assert.Equal(t, "cd-1", f.enrollments.requests[0].CourseDateID)
		require.NotNil(t, f.enrollments.requests[0].PaymentID)
		assert.Equal(t, "payment-1", *f.enrollments.requests[0].PaymentID)
	})

	t.Run("resolves the course date by selected day", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.HandlePaymentConfirmed(context.Background(), models.PaymentConfirmedEvent{
			EventID:      "evt-1",
			CourseID:     "course-1",
			UserID:       "user-1",
			SelectedDate: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Len(t, f.enrollments.requests, 1)
		assert.Equal(t, "cd-1", f.enrollments.requests[0].CourseDateID)
	})

	t.Run("no course date on the selected day", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.HandlePaymentConfirmed(context.Background(), models.PaymentConfirmedEvent{
			EventID:      "evt-1",
			CourseID:     "course-2",
			UserID:       "user-1",
			SelectedDate: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrNoMatchingCourseDate))
	})

	t.Run("routes purchase payments to the bulk flow", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.HandlePaymentConfirmed(context.Background(), models.PaymentConfirmedEvent{
			EventID:    "evt-1",
			PurchaseID: "purchase-1",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"purchase-1"}, f.purchases.paid)
		assert.Empty(t, f.enrollments.requests)
	})

	t.Run("redelivered events are no-ops", func(t *testing.T) {
		f := newPaymentFixture(t)
		event := models.PaymentConfirmedEvent{
			EventID:      "evt-1",
			CourseID:     "course-1",
			CourseDateID: "cd-1",
			UserID:       "user-1",
		}

		require.NoError(t, f.svc.HandlePaymentConfirmed(context.Background(), event))
		require.NoError(t, f.svc.HandlePaymentConfirmed(context.Background(), event))
		assert.Len(t, f.enrollments.requests, 1)
	})

	t.Run("releases the claim when routing fails", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.enrollments.err = errors.New("db down")
		event := models.PaymentConfirmedEvent{
			EventID:      "evt-1",
			CourseID:     "course-1",
			CourseDateID: "cd-1",
			UserID:       "user-1",
		}

		require.Error(t, f.svc.HandlePaymentConfirmed(context.Background(), event))
		assert.Equal(t, []string{"evt-1"}, f.events.released)

		// A redelivery after the failure must go through.
		f.enrollments.err = nil
		require.NoError(t, f.svc.HandlePaymentConfirmed(context.Background(), event))
		assert.Len(t, f.enrollments.requests, 1)
	})

	t.Run("requires an event id", func(t *testing.T) {
		f := newPaymentFixture(t)

		err := f.svc.HandlePaymentConfirmed(context.Background(), models.PaymentConfirmedEvent{})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})
}

package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	"github.com/DancingAppsDays/uniprotec-api/internal/repository"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type purchaseRepoStub struct {
	purchases map[string]*models.CompanyPurchase
	nextID    int
	createErr error
	updateErr error
	addErr    error
}

func newPurchaseRepoStub(purchases ...*models.CompanyPurchase) *purchaseRepoStub {
	s := &purchaseRepoStub{purchases: map[string]*models.CompanyPurchase{}}
	for _, p := range purchases {
		s.purchases[p.ID] = p
	}
	return s
}

func (s *purchaseRepoStub) Create(ctx context.Context, p *models.CompanyPurchase) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	p.ID = "purchase-" + strconv.Itoa(s.nextID)
	s.purchases[p.ID] = p
	return nil
}

func (s *purchaseRepoStub) FindByID(ctx context.Context, id string) (*models.CompanyPurchase, error) {
	p, ok := s.purchases[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *purchaseRepoStub) FindByRequestID(ctx context.Context, requestID string) (*models.CompanyPurchase, error) {
	for _, p := range s.purchases {
		if p.RequestID == requestID {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *purchaseRepoStub) List(ctx context.Context, filter models.CompanyPurchaseFilter) ([]models.CompanyPurchase, int, error) {
	var out []models.CompanyPurchase
	for _, p := range s.purchases {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *purchaseRepoStub) Update(ctx context.Context, p *models.CompanyPurchase) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.purchases[p.ID] = p
	return nil
}

func (s *purchaseRepoStub) AddEnrollmentID(ctx context.Context, id, enrollmentID string) (*models.CompanyPurchase, error) {
	if s.addErr != nil {
		return nil, s.addErr
	}
	p, ok := s.purchases[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if len(p.EnrollmentIDs) >= p.Quantity {
		return nil, repository.ErrEnrollmentLimit
	}
	p.EnrollmentIDs = append(p.EnrollmentIDs, enrollmentID)
	if len(p.EnrollmentIDs) >= p.Quantity && p.Status == models.CompanyPurchaseStatusPaid {
		p.Status = models.CompanyPurchaseStatusCompleted
	}
	return p, nil
}

type seatCall struct {
	courseDateID string
	quantity     int
}

type blockLedgerStub struct {
	reserved   []seatCall
	released   []seatCall
	reserveErr error
	releaseErr error
}

func (s *blockLedgerStub) ReserveSeats(ctx context.Context, courseDateID string, n int) (*models.CourseDate, error) {
	if s.reserveErr != nil {
		return nil, s.reserveErr
	}
	s.reserved = append(s.reserved, seatCall{courseDateID, n})
	return &models.CourseDate{ID: courseDateID}, nil
}

func (s *blockLedgerStub) ReleaseSeats(ctx context.Context, courseDateID string, n int) (*models.CourseDate, error) {
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	s.released = append(s.released, seatCall{courseDateID, n})
	return &models.CourseDate{ID: courseDateID}, nil
}

type courseCatalogStub struct {
	courses map[string]*models.Course
}

func (s *courseCatalogStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

type dayLookupStub struct {
	dates map[string]*models.CourseDate
}

func (s *dayLookupStub) FindByCourseAndDay(ctx context.Context, courseID string, day time.Time) (*models.CourseDate, error) {
	cd, ok := s.dates[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cd, nil
}

type purchaseFixture struct {
	svc    *CompanyPurchaseService
	repo   *purchaseRepoStub
	ledger *blockLedgerStub
	disp   *dispatcherStub
}

func newPurchaseFixture(t *testing.T, purchases ...*models.CompanyPurchase) *purchaseFixture {
	t.Helper()
	repo := newPurchaseRepoStub(purchases...)
	ledger := &blockLedgerStub{}
	disp := &dispatcherStub{}
	courses := &courseCatalogStub{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Title: "Working at Heights", Price: 1500},
	}}
	dates := &dayLookupStub{dates: map[string]*models.CourseDate{
		"course-1": {ID: "cd-1", CourseID: "course-1", Capacity: 20},
	}}
	svc := NewCompanyPurchaseService(repo, ledger, courses, dates, disp, "", nil, nil)
	return &purchaseFixture{svc: svc, repo: repo, ledger: ledger, disp: disp}
}

func pendingPurchase(quantity int) *models.CompanyPurchase {
	return &models.CompanyPurchase{
		ID:           "purchase-1",
		RequestID:    "COMP-abc12345",
		CompanyName:  "Acme SA de CV",
		ContactEmail: "contact@acme.mx",
		CourseID:     "course-1",
		CourseTitle:  "Working at Heights",
		SelectedDate: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
		Quantity:     quantity,
		Status:       models.CompanyPurchaseStatusPending,
	}
}

func paidPurchase(quantity, reserved int) *models.CompanyPurchase {
	p := pendingPurchase(quantity)
	p.Status = models.CompanyPurchaseStatusPaid
	p.Metadata = models.Metadata{
		models.MetaCourseDateID:  "cd-1",
		models.MetaReservedSeats: reserved,
	}
	return p
}

func TestCompanyPurchaseCreate(t *testing.T) {
	f := newPurchaseFixture(t)

	purchase, err := f.svc.Create(context.Background(), CreateCompanyPurchaseRequest{
		CompanyName:  "Acme SA de CV",
		RFC:          "AAA010101AAA",
		ContactName:  "Laura",
		ContactEmail: "contact@acme.mx",
		ContactPhone: "5512345678",
		CourseID:     "course-1",
		SelectedDate: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
		Quantity:     10,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(purchase.RequestID, "COMP-"))
	assert.Len(t, purchase.RequestID, len("COMP-")+8)
	assert.Equal(t, models.CompanyPurchaseStatusPending, purchase.Status)
	assert.Equal(t, "Working at Heights", purchase.CourseTitle)
	// No seats are held before payment.
	assert.Empty(t, f.ledger.reserved)
	assert.Contains(t, f.disp.kinds(), notifier.KindPurchaseConfirmation)
	require.Len(t, f.disp.admin, 1)

	t.Run("unknown course", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), CreateCompanyPurchaseRequest{
			CompanyName:  "Acme SA de CV",
			RFC:          "AAA010101AAA",
			ContactName:  "Laura",
			ContactEmail: "contact@acme.mx",
			ContactPhone: "5512345678",
			CourseID:     "missing",
			SelectedDate: time.Now(),
			Quantity:     10,
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), CreateCompanyPurchaseRequest{CompanyName: "Acme"})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})
}

func TestCompanyPurchaseUpdateStatus(t *testing.T) {
	t.Run("paid reserves the block once", func(t *testing.T) {
		f := newPurchaseFixture(t, pendingPurchase(10))

		purchase, err := f.svc.UpdateStatus(context.Background(), "purchase-1", models.CompanyPurchaseStatusPaid, "")
		require.NoError(t, err)
		assert.Equal(t, models.CompanyPurchaseStatusPaid, purchase.Status)
		assert.Equal(t, []seatCall{{"cd-1", 10}}, f.ledger.reserved)
		assert.Equal(t, "cd-1", purchase.ReservedCourseDateID())
		assert.Equal(t, 10, purchase.SeatsReserved())
		assert.Contains(t, f.disp.kinds(), notifier.KindPurchasePayment)

		// A repeated Paid transition must not double-book.
		_, err = f.svc.UpdateStatus(context.Background(), "purchase-1", models.CompanyPurchaseStatusPaid, "")
		require.NoError(t, err)
		assert.Len(t, f.ledger.reserved, 1)
	})

	t.Run("no course date on the selected day", func(t *testing.T) {
		p := pendingPurchase(10)
		p.CourseID = "course-2"
		f := newPurchaseFixture(t, p)

		_, err := f.svc.UpdateStatus(context.Background(), "purchase-1", models.CompanyPurchaseStatusPaid, "")
		assert.True(t, appErrors.Is(err, appErrors.ErrNoMatchingCourseDate))
	})

	t.Run("canceled purchases are locked", func(t *testing.T) {
		p := pendingPurchase(10)
		p.Status = models.CompanyPurchaseStatusCanceled
		f := newPurchaseFixture(t, p)

		_, err := f.svc.UpdateStatus(context.Background(), "purchase-1", models.CompanyPurchaseStatusContacted, "")
		assert.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))
	})

	t.Run("cancel goes through the cancel operation", func(t *testing.T) {
		f := newPurchaseFixture(t, pendingPurchase(10))

		_, err := f.svc.UpdateStatus(context.Background(), "purchase-1", models.CompanyPurchaseStatusCanceled, "")
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("contacted notifies the contact", func(t *testing.T) {
		f := newPurchaseFixture(t, pendingPurchase(10))

		_, err := f.svc.UpdateStatus(context.Background(), "purchase-1", models.CompanyPurchaseStatusContacted, "called them")
		require.NoError(t, err)
		assert.Contains(t, f.disp.kinds(), notifier.KindPurchaseContacted)
		assert.Equal(t, "called them", f.repo.purchases["purchase-1"].AdminNotes)
	})
}

func TestCompanyPurchaseRecordPayment(t *testing.T) {
	t.Run("moves to paid and reserves", func(t *testing.T) {
		f := newPurchaseFixture(t, pendingPurchase(5))

		purchase, err := f.svc.RecordPayment(context.Background(), "purchase-1", RecordPaymentRequest{
			Method:    "transfer",
			Reference: "SPEI-001",
			Amount:    7500,
		})
		require.NoError(t, err)
		assert.Equal(t, models.CompanyPurchaseStatusPaid, purchase.Status)
		assert.Equal(t, []seatCall{{"cd-1", 5}}, f.ledger.reserved)
		assert.Equal(t, "SPEI-001", purchase.PaymentRef)
		require.NotNil(t, purchase.PaymentDate)
	})

	t.Run("already paid keeps the reservation untouched", func(t *testing.T) {
		f := newPurchaseFixture(t, paidPurchase(5, 5))

		purchase, err := f.svc.RecordPayment(context.Background(), "purchase-1", RecordPaymentRequest{
			Method:    "transfer",
			Reference: "SPEI-002",
			Amount:    7500,
		})
		require.NoError(t, err)
		assert.Empty(t, f.ledger.reserved)
		assert.Equal(t, 5, purchase.SeatsReserved())
	})
}

func TestCompanyPurchaseUpdate(t *testing.T) {
	t.Run("quantity increase reserves the delta", func(t *testing.T) {
		f := newPurchaseFixture(t, paidPurchase(5, 5))
		q := 8

		purchase, err := f.svc.Update(context.Background(), "purchase-1", UpdateCompanyPurchaseRequest{Quantity: &q})
		require.NoError(t, err)
		assert.Equal(t, 8, purchase.Quantity)
		assert.Equal(t, []seatCall{{"cd-1", 3}}, f.ledger.reserved)
		assert.Equal(t, 8, purchase.SeatsReserved())
	})

	t.Run("quantity decrease releases the delta", func(t *testing.T) {
		f := newPurchaseFixture(t, paidPurchase(5, 5))
		q := 3

		purchase, err := f.svc.Update(context.Background(), "purchase-1", UpdateCompanyPurchaseRequest{Quantity: &q})
		require.NoError(t, err)
		assert.Equal(t, []seatCall{{"cd-1", 2}}, f.ledger.released)
		assert.Equal(t, 3, purchase.SeatsReserved())
	})

	t.Run("quantity cannot drop below assigned enrollments", func(t *testing.T) {
		p := paidPurchase(5, 5)
		p.EnrollmentIDs = []string{"e-1", "e-2", "e-3"}
		f := newPurchaseFixture(t, p)
		q := 2

		_, err := f.svc.Update(context.Background(), "purchase-1", UpdateCompanyPurchaseRequest{Quantity: &q})
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidQuantity))
		assert.Empty(t, f.ledger.released)
	})

	t.Run("quantity matching enrollments completes the purchase", func(t *testing.T) {
		p := paidPurchase(5, 5)
		p.EnrollmentIDs = []string{"e-1", "e-2", "e-3"}
		f := newPurchaseFixture(t, p)
		q := 3

		purchase, err := f.svc.Update(context.Background(), "purchase-1", UpdateCompanyPurchaseRequest{Quantity: &q})
		require.NoError(t, err)
		assert.Equal(t, models.CompanyPurchaseStatusCompleted, purchase.Status)
	})

	t.Run("pending purchase adjusts nothing on the ledger", func(t *testing.T) {
		f := newPurchaseFixture(t, pendingPurchase(5))
		q := 8

		purchase, err := f.svc.Update(context.Background(), "purchase-1", UpdateCompanyPurchaseRequest{Quantity: &q})
		require.NoError(t, err)
		assert.Equal(t, 8, purchase.Quantity)
		assert.Empty(t, f.ledger.reserved)
	})
}

func TestCompanyPurchaseAddEnrollment(t *testing.T) {
	t.Run("assigns and auto completes", func(t *testing.T) {
		p := paidPurchase(2, 2)
		p.EnrollmentIDs = []string{"e-1"}
		f := newPurchaseFixture(t, p)

		purchase, err := f.svc.AddEnrollment(context.Background(), "purchase-1", "e-2")
		require.NoError(t, err)
		assert.Equal(t, pq.StringArray{"e-1", "e-2"}, purchase.EnrollmentIDs)
		assert.Equal(t, models.CompanyPurchaseStatusCompleted, purchase.Status)
	})

	t.Run("rejects when every seat is taken", func(t *testing.T) {
		p := paidPurchase(1, 1)
		p.EnrollmentIDs = []string{"e-1"}
		f := newPurchaseFixture(t, p)

		_, err := f.svc.AddEnrollment(context.Background(), "purchase-1", "e-2")
		assert.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))
	})

	t.Run("requires an enrollment id", func(t *testing.T) {
		f := newPurchaseFixture(t, paidPurchase(2, 2))

		_, err := f.svc.AddEnrollment(context.Background(), "purchase-1", "")
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})
}

func TestCompanyPurchaseCancel(t *testing.T) {
	t.Run("releases the reserved block", func(t *testing.T) {
		f := newPurchaseFixture(t, paidPurchase(5, 5))

		purchase, err := f.svc.Cancel(context.Background(), "purchase-1", CancelCompanyPurchaseRequest{Reason: "client desisted"})
		require.NoError(t, err)
		assert.Equal(t, models.CompanyPurchaseStatusCanceled, purchase.Status)
		assert.Equal(t, []seatCall{{"cd-1", 5}}, f.ledger.released)
		assert.Equal(t, 0, purchase.SeatsReserved())
		assert.Equal(t, 5, purchase.Metadata.Int(models.MetaReleasedSeats))
		assert.Contains(t, f.disp.kinds(), notifier.KindPurchaseCancellation)
	})

	t.Run("pending purchase has nothing to release", func(t *testing.T) {
		f := newPurchaseFixture(t, pendingPurchase(5))

		_, err := f.svc.Cancel(context.Background(), "purchase-1", CancelCompanyPurchaseRequest{Reason: "client desisted"})
		require.NoError(t, err)
		assert.Empty(t, f.ledger.released)
	})

	t.Run("completed purchases cannot be canceled", func(t *testing.T) {
		p := paidPurchase(2, 2)
		p.Status = models.CompanyPurchaseStatusCompleted
		f := newPurchaseFixture(t, p)

		_, err := f.svc.Cancel(context.Background(), "purchase-1", CancelCompanyPurchaseRequest{Reason: "late"})
		assert.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))
	})
}

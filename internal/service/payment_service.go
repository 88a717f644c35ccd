package service

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type paymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, paymentIntentID string) error
}

type eventClaimer interface {
	ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

type enrollmentCreator interface {
	Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error)
}

type purchasePayer interface {
	UpdateStatus(ctx context.Context, id string, status models.CompanyPurchaseStatus, adminNotes string) (*models.CompanyPurchase, error)
}

// CreateCheckoutRequest holds payload for starting a checkout session.
type CreateCheckoutRequest struct {
	CourseID      string    `json:"course_id" validate:"required"`
	CourseDateID  string    `json:"course_date_id"`
	SelectedDate  time.Time `json:"selected_date" validate:"required"`
	UserID        string    `json:"user_id"`
	CustomerEmail string    `json:"customer_email" validate:"required,email"`
	Quantity      int       `json:"quantity" validate:"required,min=1"`
}

// CheckoutSession is the provider session handed back to the client.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	PaymentID string `json:"payment_id"`
}

// PaymentService creates checkout sessions and routes confirmed payments
// into the enrollment or bulk purchase flows. Provider signature
// verification happens upstream; this layer consumes verified events with
// Redis-backed idempotency on the event id.
type PaymentService struct {
	repo        paymentRepository
	courses     courseLookup
	courseDates courseDateDayLookup
	enrollments enrollmentCreator
	purchases   purchasePayer
	events      eventClaimer
	cfg         config.StripeConfig
	eventTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs the service and sets the provider key.
func NewPaymentService(repo paymentRepository, courses courseLookup, courseDates courseDateDayLookup, enrollments enrollmentCreator, purchases purchasePayer, events eventClaimer, cfg config.StripeConfig, eventTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stripe.Key = cfg.SecretKey
	return &PaymentService{
		repo:        repo,
		courses:     courses,
		courseDates: courseDates,
		enrollments: enrollments,
		purchases:   purchases,
		events:      events,
		cfg:         cfg,
		eventTTL:    eventTTL,
		validator:   validate,
		logger:      logger,
	}
}

// CreateCheckout opens a provider checkout session for a course and records
// the pending payment.
func (s *PaymentService) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*CheckoutSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	amount := course.Price * float64(req.Quantity)
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(int64(math.Round(course.Price * 100))),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(course.Title),
					},
				},
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(s.cfg.SuccessURL),
		CancelURL:     stripe.String(s.cfg.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		Metadata: map[string]string{
			"course_id":      req.CourseID,
			"course_date_id": req.CourseDateID,
			"user_id":        req.UserID,
		},
	}
	session, err := checkoutsession.New(params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create checkout session")
	}

	selected := req.SelectedDate
	payment := &models.Payment{
		Amount:          amount,
		Currency:        s.cfg.Currency,
		StripeSessionID: session.ID,
		CustomerEmail:   req.CustomerEmail,
		CourseID:        req.CourseID,
		UserID:          req.UserID,
		SelectedDate:    &selected,
		Quantity:        req.Quantity,
		Metadata: models.Metadata{
			models.MetaCourseDateID: req.CourseDateID,
		},
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.logger.Sugar().Infow("checkout session created",
		"payment_id", payment.ID, "session_id", session.ID, "amount", amount)
	return &CheckoutSession{SessionID: session.ID, URL: session.URL, PaymentID: payment.ID}, nil
}

// VerifySession checks a checkout session against the provider and, when
// paid, records completion and routes the confirmed payment.
func (s *PaymentService) VerifySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	payment, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusCompleted {
		return payment, nil
	}

	session, err := checkoutsession.Get(sessionID, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify checkout session")
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return payment, nil
	}

	paymentIntentID := ""
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}
	if err := s.repo.UpdateStatus(ctx, payment.ID, models.PaymentStatusCompleted, paymentIntentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	payment.Status = models.PaymentStatusCompleted
	payment.StripePaymentIntentID = paymentIntentID

	event := models.PaymentConfirmedEvent{
		EventID:      sessionID,
		CourseID:     payment.CourseID,
		CourseDateID: payment.Metadata.String(models.MetaCourseDateID),
		UserID:       payment.UserID,
		Quantity:     payment.Quantity,
		PaymentID:    payment.ID,
	}
	if payment.SelectedDate != nil {
		event.SelectedDate = *payment.SelectedDate
	}
	if err := s.HandlePaymentConfirmed(ctx, event); err != nil {
		return nil, err
	}
	return payment, nil
}

// HandlePaymentConfirmed consumes an already-verified payment event.
// A purchase id routes to the bulk Paid transition; otherwise an individual
// enrollment is created. Redelivered events are no-ops.
func (s *PaymentService) HandlePaymentConfirmed(ctx context.Context, event models.PaymentConfirmedEvent) error {
	if event.EventID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "event id is required")
	}
	claimed, err := s.events.ClaimEvent(ctx, event.EventID, s.eventTTL)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim payment event")
	}
	if !claimed {
		s.logger.Sugar().Infow("payment event already processed", "event_id", event.EventID)
		return nil
	}

	if err := s.route(ctx, event); err != nil {
		// Give the claim back so a redelivery can retry; otherwise the
		// event is lost until the idempotency key expires.
		if relErr := s.events.ReleaseEvent(context.WithoutCancel(ctx), event.EventID); relErr != nil {
			s.logger.Sugar().Errorw("failed to release payment event claim",
				"event_id", event.EventID, "error", relErr)
		}
		return err
	}
	return nil
}

func (s *PaymentService) route(ctx context.Context, event models.PaymentConfirmedEvent) error {
	if event.PurchaseID != "" {
		_, err := s.purchases.UpdateStatus(ctx, event.PurchaseID, models.CompanyPurchaseStatusPaid, "")
		return err
	}

	courseDateID := event.CourseDateID
	if courseDateID == "" {
		cd, err := s.courseDates.FindByCourseAndDay(ctx, event.CourseID, event.SelectedDate)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNoMatchingCourseDate, "")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course date")
		}
		courseDateID = cd.ID
	}

	paymentID := event.PaymentID
	_, err := s.enrollments.Create(ctx, CreateEnrollmentRequest{
		UserID:       event.UserID,
		CourseDateID: courseDateID,
		PaymentID:    &paymentID,
	})
	return err
}

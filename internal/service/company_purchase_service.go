package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	"github.com/DancingAppsDays/uniprotec-api/internal/repository"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
)

type companyPurchaseRepository interface {
	Create(ctx context.Context, p *models.CompanyPurchase) error
	FindByID(ctx context.Context, id string) (*models.CompanyPurchase, error)
	FindByRequestID(ctx context.Context, requestID string) (*models.CompanyPurchase, error)
	List(ctx context.Context, filter models.CompanyPurchaseFilter) ([]models.CompanyPurchase, int, error)
	Update(ctx context.Context, p *models.CompanyPurchase) error
	AddEnrollmentID(ctx context.Context, id, enrollmentID string) (*models.CompanyPurchase, error)
}

type blockSeatLedger interface {
	ReserveSeats(ctx context.Context, courseDateID string, n int) (*models.CourseDate, error)
	ReleaseSeats(ctx context.Context, courseDateID string, n int) (*models.CourseDate, error)
}

type courseDateDayLookup interface {
	FindByCourseAndDay(ctx context.Context, courseID string, day time.Time) (*models.CourseDate, error)
}

// CreateCompanyPurchaseRequest holds payload for a bulk seat request.
type CreateCompanyPurchaseRequest struct {
	CompanyName    string    `json:"company_name" validate:"required"`
	RFC            string    `json:"rfc" validate:"required"`
	ContactName    string    `json:"contact_name" validate:"required"`
	ContactEmail   string    `json:"contact_email" validate:"required,email"`
	ContactPhone   string    `json:"contact_phone" validate:"required"`
	CourseID       string    `json:"course_id" validate:"required"`
	SelectedDate   time.Time `json:"selected_date" validate:"required"`
	Quantity       int       `json:"quantity" validate:"required,min=1"`
	AdditionalInfo string    `json:"additional_info"`
}

// UpdateCompanyPurchaseRequest holds the fields an admin may edit.
type UpdateCompanyPurchaseRequest struct {
	ContactName    string     `json:"contact_name"`
	ContactEmail   string     `json:"contact_email" validate:"omitempty,email"`
	ContactPhone   string     `json:"contact_phone"`
	SelectedDate   *time.Time `json:"selected_date"`
	Quantity       *int       `json:"quantity"`
	AdditionalInfo *string    `json:"additional_info"`
	AdminNotes     *string    `json:"admin_notes"`
}

// RecordPaymentRequest holds payment details for a purchase.
type RecordPaymentRequest struct {
	Method    string     `json:"method" validate:"required"`
	Reference string     `json:"reference" validate:"required"`
	Amount    float64    `json:"amount" validate:"required,gt=0"`
	Date      *time.Time `json:"date"`
}

// CancelCompanyPurchaseRequest holds payload for canceling a purchase.
type CancelCompanyPurchaseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CompanyPurchaseService handles the bulk reservation flow. Seats are
// reserved on the ledger exactly once, at the Paid transition, and released
// symmetrically on cancellation or quantity decrease.
type CompanyPurchaseService struct {
	repo        companyPurchaseRepository
	ledger      blockSeatLedger
	courses     courseLookup
	courseDates courseDateDayLookup
	dispatcher  notificationDispatcher
	validator   *validator.Validate
	logger      *zap.Logger

	webhookURL string
	httpClient *http.Client
}

// NewCompanyPurchaseService constructs the service. webhookURL may be empty.
func NewCompanyPurchaseService(repo companyPurchaseRepository, ledger blockSeatLedger, courses courseLookup, courseDates courseDateDayLookup, dispatcher notificationDispatcher, webhookURL string, validate *validator.Validate, logger *zap.Logger) *CompanyPurchaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyPurchaseService{
		repo:        repo,
		ledger:      ledger,
		courses:     courses,
		courseDates: courseDates,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger,
		webhookURL:  webhookURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Create registers a new bulk seat request in Pending and notifies the
// company contact and the admins.
func (s *CompanyPurchaseService) Create(ctx context.Context, req CreateCompanyPurchaseRequest) (*models.CompanyPurchase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid company purchase payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	purchase := &models.CompanyPurchase{
		RequestID:      "COMP-" + uuid.NewString()[:8],
		CompanyName:    req.CompanyName,
		RFC:            req.RFC,
		ContactName:    req.ContactName,
		ContactEmail:   req.ContactEmail,
		ContactPhone:   req.ContactPhone,
		CourseID:       req.CourseID,
		CourseTitle:    course.Title,
		SelectedDate:   req.SelectedDate,
		Quantity:       req.Quantity,
		AdditionalInfo: req.AdditionalInfo,
		Status:         models.CompanyPurchaseStatusPending,
	}
	if err := s.repo.Create(ctx, purchase); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create company purchase")
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(notifier.Message{
			To:   purchase.ContactEmail,
			Kind: notifier.KindPurchaseConfirmation,
			Payload: map[string]interface{}{
				"request_id":   purchase.RequestID,
				"course_title": purchase.CourseTitle,
				"quantity":     purchase.Quantity,
			},
		})
		s.dispatcher.DispatchAdmins(notifier.Message{
			Kind: notifier.KindAdminAlert,
			Payload: map[string]interface{}{
				"event":      "company purchase received",
				"request_id": purchase.RequestID,
				"company":    purchase.CompanyName,
				"quantity":   purchase.Quantity,
			},
		})
	}
	s.postWebhook(purchase)

	s.logger.Sugar().Infow("company purchase created",
		"purchase_id", purchase.ID, "request_id", purchase.RequestID, "quantity", purchase.Quantity)
	return purchase, nil
}

// Get returns a purchase by ID.
func (s *CompanyPurchaseService) Get(ctx context.Context, id string) (*models.CompanyPurchase, error) {
	purchase, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company purchase not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company purchase")
	}
	return purchase, nil
}

// GetByRequestID returns a purchase by its public tracking ID.
func (s *CompanyPurchaseService) GetByRequestID(ctx context.Context, requestID string) (*models.CompanyPurchase, error) {
	purchase, err := s.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company purchase not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company purchase")
	}
	return purchase, nil
}

// List returns purchases and pagination metadata.
func (s *CompanyPurchaseService) List(ctx context.Context, filter models.CompanyPurchaseFilter) ([]models.CompanyPurchase, *models.Pagination, error) {
	purchases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list company purchases")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return purchases, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus transitions a purchase. Moving to Paid reserves the seat
// block exactly once; a purchase already Paid or Completed keeps its
// reservation untouched.
func (s *CompanyPurchaseService) UpdateStatus(ctx context.Context, id string, status models.CompanyPurchaseStatus, adminNotes string) (*models.CompanyPurchase, error) {
	switch status {
	case models.CompanyPurchaseStatusPending, models.CompanyPurchaseStatusContacted,
		models.CompanyPurchaseStatusPaymentPending, models.CompanyPurchaseStatusPaid,
		models.CompanyPurchaseStatusCompleted:
	case models.CompanyPurchaseStatusCanceled:
		return nil, appErrors.Clone(appErrors.ErrValidation, "use the cancel operation for this transition")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown company purchase status")
	}

	purchase, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if purchase.Status == models.CompanyPurchaseStatusCanceled {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "canceled purchases cannot change status")
	}
	previous := purchase.Status

	if status == models.CompanyPurchaseStatusPaid &&
		previous != models.CompanyPurchaseStatusPaid && previous != models.CompanyPurchaseStatusCompleted {
		if err := s.reserveBlock(ctx, purchase); err != nil {
			return nil, err
		}
	}

	purchase.Status = status
	if adminNotes != "" {
		purchase.AdminNotes = adminNotes
	}
	if err := s.repo.Update(ctx, purchase); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update company purchase")
	}

	if s.dispatcher != nil && previous != status {
		switch status {
		case models.CompanyPurchaseStatusContacted:
			s.notifyContact(purchase, notifier.KindPurchaseContacted, nil)
		case models.CompanyPurchaseStatusPaid:
			s.notifyContact(purchase, notifier.KindPurchasePayment, map[string]interface{}{
				"reserved_seats": purchase.SeatsReserved(),
			})
		}
	}
	return purchase, nil
}

// RecordPayment stores payment details and moves the purchase to Paid
// through the same idempotent reservation path.
func (s *CompanyPurchaseService) RecordPayment(ctx context.Context, id string, req RecordPaymentRequest) (*models.CompanyPurchase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	purchase, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if purchase.Status == models.CompanyPurchaseStatusCanceled {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "canceled purchases cannot record payments")
	}
	previous := purchase.Status

	if previous != models.CompanyPurchaseStatusPaid && previous != models.CompanyPurchaseStatusCompleted {
		if err := s.reserveBlock(ctx, purchase); err != nil {
			return nil, err
		}
		purchase.Status = models.CompanyPurchaseStatusPaid
	}

	paymentDate := req.Date
	if paymentDate == nil {
		now := time.Now().UTC()
		paymentDate = &now
	}
	purchase.PaymentMethod = req.Method
	purchase.PaymentRef = req.Reference
	purchase.PaymentAmount = &req.Amount
	purchase.PaymentDate = paymentDate

	if err := s.repo.Update(ctx, purchase); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	if s.dispatcher != nil && previous != purchase.Status {
		s.notifyContact(purchase, notifier.KindPurchasePayment, map[string]interface{}{
			"reserved_seats": purchase.SeatsReserved(),
		})
	}
	return purchase, nil
}

// Update edits purchase fields. Quantity changes on a Paid purchase adjust
// the reserved block by the delta; the quantity can never drop below the
// enrollments already assigned.
func (s *CompanyPurchaseService) Update(ctx context.Context, id string, req UpdateCompanyPurchaseRequest) (*models.CompanyPurchase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid company purchase payload")
	}
	purchase, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if purchase.Status == models.CompanyPurchaseStatusCanceled {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "canceled purchases cannot be edited")
	}

	if req.ContactName != "" {
		purchase.ContactName = req.ContactName
	}
	if req.ContactEmail != "" {
		purchase.ContactEmail = req.ContactEmail
	}
	if req.ContactPhone != "" {
		purchase.ContactPhone = req.ContactPhone
	}
	if req.SelectedDate != nil {
		purchase.SelectedDate = *req.SelectedDate
	}
	if req.AdditionalInfo != nil {
		purchase.AdditionalInfo = *req.AdditionalInfo
	}
	if req.AdminNotes != nil {
		purchase.AdminNotes = *req.AdminNotes
	}

	if req.Quantity != nil && *req.Quantity != purchase.Quantity {
		newQuantity := *req.Quantity
		if newQuantity < 1 || newQuantity < len(purchase.EnrollmentIDs) {
			return nil, appErrors.Clone(appErrors.ErrInvalidQuantity, "quantity cannot drop below assigned enrollments")
		}
		if err := s.adjustReservedBlock(ctx, purchase, newQuantity); err != nil {
			return nil, err
		}
		purchase.Quantity = newQuantity
		if purchase.Status == models.CompanyPurchaseStatusPaid && len(purchase.EnrollmentIDs) == newQuantity {
			purchase.Status = models.CompanyPurchaseStatusCompleted
		}
	}

	if err := s.repo.Update(ctx, purchase); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update company purchase")
	}
	return purchase, nil
}

// AddEnrollment assigns an individual enrollment to the purchase. The
// purchase auto-completes when all seats have enrollments.
func (s *CompanyPurchaseService) AddEnrollment(ctx context.Context, id, enrollmentID string) (*models.CompanyPurchase, error) {
	if enrollmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required")
	}
	purchase, err := s.repo.AddEnrollmentID(ctx, id, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company purchase not found")
		}
		if err == repository.ErrEnrollmentLimit {
			return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "purchase already has an enrollment for every seat")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign enrollment")
	}
	return purchase, nil
}

// Cancel voids the purchase and returns any reserved seats to the pool.
func (s *CompanyPurchaseService) Cancel(ctx context.Context, id string, req CancelCompanyPurchaseRequest) (*models.CompanyPurchase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}
	purchase, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if purchase.Status == models.CompanyPurchaseStatusCanceled || purchase.Status == models.CompanyPurchaseStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "purchase cannot be canceled in its current status")
	}

	if reserved := purchase.SeatsReserved(); reserved > 0 {
		courseDateID := purchase.ReservedCourseDateID()
		if _, err := s.ledger.ReleaseSeats(ctx, courseDateID, reserved); err != nil {
			s.logger.Sugar().Warnw("failed to release reserved block on cancellation",
				"purchase_id", id, "course_date_id", courseDateID, "seats", reserved, "error", err)
		} else {
			purchase.Metadata[models.MetaReleasedSeats] = reserved
			purchase.Metadata[models.MetaReservedSeats] = 0
		}
	}

	if purchase.Metadata == nil {
		purchase.Metadata = models.Metadata{}
	}
	purchase.Metadata[models.MetaCancellationReason] = req.Reason
	purchase.Status = models.CompanyPurchaseStatusCanceled
	if err := s.repo.Update(ctx, purchase); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel company purchase")
	}

	if s.dispatcher != nil {
		s.notifyContact(purchase, notifier.KindPurchaseCancellation, map[string]interface{}{"reason": req.Reason})
	}
	s.logger.Sugar().Infow("company purchase canceled", "purchase_id", id, "reason", req.Reason)
	return purchase, nil
}

// reserveBlock resolves the concrete course date by calendar day and
// reserves the full seat block, recording the reservation in metadata.
func (s *CompanyPurchaseService) reserveBlock(ctx context.Context, purchase *models.CompanyPurchase) error {
	cd, err := s.courseDates.FindByCourseAndDay(ctx, purchase.CourseID, purchase.SelectedDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNoMatchingCourseDate, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course date")
	}
	if _, err := s.ledger.ReserveSeats(ctx, cd.ID, purchase.Quantity); err != nil {
		return err
	}

	if purchase.Metadata == nil {
		purchase.Metadata = models.Metadata{}
	}
	purchase.Metadata[models.MetaCourseDateID] = cd.ID
	purchase.Metadata[models.MetaReservedSeats] = purchase.Quantity
	purchase.Metadata[models.MetaReservedAt] = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// adjustReservedBlock applies a quantity change to an existing reservation.
func (s *CompanyPurchaseService) adjustReservedBlock(ctx context.Context, purchase *models.CompanyPurchase, newQuantity int) error {
	reserved := purchase.SeatsReserved()
	if reserved == 0 {
		return nil
	}
	courseDateID := purchase.ReservedCourseDateID()
	delta := newQuantity - reserved

	switch {
	case delta > 0:
		if _, err := s.ledger.ReserveSeats(ctx, courseDateID, delta); err != nil {
			return err
		}
	case delta < 0:
		if _, err := s.ledger.ReleaseSeats(ctx, courseDateID, -delta); err != nil {
			return err
		}
	default:
		return nil
	}
	purchase.Metadata[models.MetaReservedSeats] = newQuantity
	return nil
}

func (s *CompanyPurchaseService) notifyContact(purchase *models.CompanyPurchase, kind notifier.Kind, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"request_id":   purchase.RequestID,
		"course_title": purchase.CourseTitle,
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.dispatcher.Dispatch(notifier.Message{To: purchase.ContactEmail, Kind: kind, Payload: payload})
}

// postWebhook pushes new purchases to the configured admin endpoint.
// Best effort, runs detached from the request.
func (s *CompanyPurchaseService) postWebhook(purchase *models.CompanyPurchase) {
	if s.webhookURL == "" {
		return
	}
	body, err := json.Marshal(purchase)
	if err != nil {
		s.logger.Sugar().Warnw("failed to encode webhook payload", "purchase_id", purchase.ID, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			s.logger.Sugar().Warnw("failed to build webhook request", "purchase_id", purchase.ID, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Sugar().Warnw("admin webhook failed", "purchase_id", purchase.ID, "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.logger.Sugar().Warnw("admin webhook rejected", "purchase_id", purchase.ID, "status", fmt.Sprint(resp.StatusCode))
		}
	}()
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/service"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
	"github.com/DancingAppsDays/uniprotec-api/pkg/response"
)

// PaymentHandler exposes checkout endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateCheckout godoc
// @Summary Start a checkout session
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.CreateCheckoutRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Router /payments/checkout [post]
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req service.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.payments.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// VerifySession godoc
// @Summary Verify a checkout session and apply the payment
// @Tags Payments
// @Produce json
// @Param sessionId path string true "Checkout session ID"
// @Success 200 {object} response.Envelope
// @Router /payments/verify/{sessionId} [get]
func (h *PaymentHandler) VerifySession(c *gin.Context) {
	payment, err := h.payments.VerifySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Confirmed godoc
// @Summary Consume a verified payment-confirmed event
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.PaymentConfirmedEvent true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /admin/payments/confirmed [post]
func (h *PaymentHandler) Confirmed(c *gin.Context) {
	var event models.PaymentConfirmedEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.payments.HandlePaymentConfirmed(c.Request.Context(), event); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "processed"}, nil)
}

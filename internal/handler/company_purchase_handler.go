package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/service"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
	"github.com/DancingAppsDays/uniprotec-api/pkg/response"
)

// CompanyPurchaseHandler exposes bulk purchase endpoints.
type CompanyPurchaseHandler struct {
	purchases *service.CompanyPurchaseService
}

// NewCompanyPurchaseHandler constructs CompanyPurchaseHandler.
func NewCompanyPurchaseHandler(purchases *service.CompanyPurchaseService) *CompanyPurchaseHandler {
	return &CompanyPurchaseHandler{purchases: purchases}
}

// Create godoc
// @Summary Submit a company seat purchase request
// @Tags CompanyPurchases
// @Accept json
// @Produce json
// @Param payload body service.CreateCompanyPurchaseRequest true "Purchase payload"
// @Success 201 {object} response.Envelope
// @Router /company-purchases [post]
func (h *CompanyPurchaseHandler) Create(c *gin.Context) {
	var req service.CreateCompanyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.purchases.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, purchase)
}

// List godoc
// @Summary List company purchases
// @Tags CompanyPurchases
// @Produce json
// @Param status query string false "Filter by status"
// @Param company query string false "Filter by company name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases [get]
func (h *CompanyPurchaseHandler) List(c *gin.Context) {
	var filter models.CompanyPurchaseFilter
	filter.Status = models.CompanyPurchaseStatus(c.Query("status"))
	filter.CompanyName = c.Query("company")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	purchases, pagination, err := h.purchases.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchases, pagination)
}

// Get godoc
// @Summary Get a company purchase
// @Tags CompanyPurchases
// @Produce json
// @Param id path string true "Purchase ID"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases/{id} [get]
func (h *CompanyPurchaseHandler) Get(c *gin.Context) {
	purchase, err := h.purchases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

// Track godoc
// @Summary Track a company purchase by request id
// @Tags CompanyPurchases
// @Produce json
// @Param requestId path string true "Public request ID"
// @Success 200 {object} response.Envelope
// @Router /company-purchases/track/{requestId} [get]
func (h *CompanyPurchaseHandler) Track(c *gin.Context) {
	purchase, err := h.purchases.GetByRequestID(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

// Update godoc
// @Summary Update a company purchase
// @Tags CompanyPurchases
// @Accept json
// @Produce json
// @Param id path string true "Purchase ID"
// @Param payload body service.UpdateCompanyPurchaseRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases/{id} [put]
func (h *CompanyPurchaseHandler) Update(c *gin.Context) {
	var req service.UpdateCompanyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.purchases.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

type updatePurchaseStatusRequest struct {
	Status     models.CompanyPurchaseStatus `json:"status" binding:"required"`
	AdminNotes string                       `json:"admin_notes"`
}

// UpdateStatus godoc
// @Summary Update company purchase status
// @Tags CompanyPurchases
// @Accept json
// @Produce json
// @Param id path string true "Purchase ID"
// @Param payload body updatePurchaseStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases/{id}/status [patch]
func (h *CompanyPurchaseHandler) UpdateStatus(c *gin.Context) {
	var req updatePurchaseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.purchases.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.AdminNotes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

// RecordPayment godoc
// @Summary Record a payment on a company purchase
// @Tags CompanyPurchases
// @Accept json
// @Produce json
// @Param id path string true "Purchase ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases/{id}/payment [post]
func (h *CompanyPurchaseHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.purchases.RecordPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

type addEnrollmentRequest struct {
	EnrollmentID string `json:"enrollment_id" binding:"required"`
}

// AddEnrollment godoc
// @Summary Assign an enrollment to a company purchase
// @Tags CompanyPurchases
// @Accept json
// @Produce json
// @Param id path string true "Purchase ID"
// @Param payload body addEnrollmentRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases/{id}/enrollments [post]
func (h *CompanyPurchaseHandler) AddEnrollment(c *gin.Context) {
	var req addEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.purchases.AddEnrollment(c.Request.Context(), c.Param("id"), req.EnrollmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

// Cancel godoc
// @Summary Cancel a company purchase
// @Tags CompanyPurchases
// @Accept json
// @Produce json
// @Param id path string true "Purchase ID"
// @Param payload body service.CancelCompanyPurchaseRequest true "Cancel payload"
// @Success 200 {object} response.Envelope
// @Router /admin/company-purchases/{id}/cancel [post]
func (h *CompanyPurchaseHandler) Cancel(c *gin.Context) {
	var req service.CancelCompanyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.purchases.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchase, nil)
}

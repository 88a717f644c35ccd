package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DancingAppsDays/uniprotec-api/internal/service"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
	"github.com/DancingAppsDays/uniprotec-api/pkg/response"
)

// PolicyHandler exposes postponement policy endpoints.
type PolicyHandler struct {
	policies *service.PolicyService
}

// NewPolicyHandler constructs PolicyHandler.
func NewPolicyHandler(policies *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// List godoc
// @Summary List explicit postponement policies
// @Tags Policies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.policies.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies, nil)
}

// Get godoc
// @Summary Get a course's explicit policy
// @Tags Policies
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /admin/policies/{courseId} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	pol, err := h.policies.Get(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pol, nil)
}

// Effective godoc
// @Summary Get the effective policy applied to a course
// @Tags Policies
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /admin/policies/{courseId}/effective [get]
func (h *PolicyHandler) Effective(c *gin.Context) {
	pol, err := h.policies.Effective(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pol, nil)
}

// Upsert godoc
// @Summary Create or replace a course's policy
// @Tags Policies
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body service.UpsertPolicyRequest true "Policy payload"
// @Success 200 {object} response.Envelope
// @Router /admin/policies/{courseId} [put]
func (h *PolicyHandler) Upsert(c *gin.Context) {
	var req service.UpsertPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pol, err := h.policies.Upsert(c.Request.Context(), c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pol, nil)
}

// Delete godoc
// @Summary Delete a course's explicit policy
// @Tags Policies
// @Param courseId path string true "Course ID"
// @Success 204
// @Router /admin/policies/{courseId} [delete]
func (h *PolicyHandler) Delete(c *gin.Context) {
	if err := h.policies.Delete(c.Request.Context(), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

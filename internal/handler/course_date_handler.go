package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/service"
	appErrors "github.com/DancingAppsDays/uniprotec-api/pkg/errors"
	"github.com/DancingAppsDays/uniprotec-api/pkg/response"
)

// CourseDateHandler exposes session scheduling endpoints.
type CourseDateHandler struct {
	courseDates *service.CourseDateService
}

// NewCourseDateHandler constructs CourseDateHandler.
func NewCourseDateHandler(courseDates *service.CourseDateService) *CourseDateHandler {
	return &CourseDateHandler{courseDates: courseDates}
}

// List godoc
// @Summary List course dates
// @Tags CourseDates
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param from query string false "Start date lower bound (RFC3339)"
// @Param to query string false "Start date upper bound (RFC3339)"
// @Param featured query bool false "Only featured courses"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /course-dates [get]
func (h *CourseDateHandler) List(c *gin.Context) {
	var filter models.CourseDateFilter
	filter.CourseID = c.Query("courseId")
	filter.Status = models.CourseDateStatus(c.Query("status"))
	filter.Featured = boolQuery(c, "featured")
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.StartDateFrom = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.StartDateTo = &t
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	dates, pagination, err := h.courseDates.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, pagination)
}

// Upcoming godoc
// @Summary List upcoming course dates
// @Tags CourseDates
// @Produce json
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Router /course-dates/upcoming [get]
func (h *CourseDateHandler) Upcoming(c *gin.Context) {
	limit := 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		limit = v
	}
	dates, err := h.courseDates.ListUpcoming(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil)
}

// AtRisk godoc
// @Summary List course dates at risk of postponement
// @Tags CourseDates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/course-dates/at-risk [get]
func (h *CourseDateHandler) AtRisk(c *gin.Context) {
	dates, err := h.courseDates.ListAtRisk(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil)
}

// Get godoc
// @Summary Get course date detail
// @Tags CourseDates
// @Produce json
// @Param id path string true "Course date ID"
// @Success 200 {object} response.Envelope
// @Router /course-dates/{id} [get]
func (h *CourseDateHandler) Get(c *gin.Context) {
	detail, err := h.courseDates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Schedule a course date
// @Tags CourseDates
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseDateRequest true "Course date payload"
// @Success 201 {object} response.Envelope
// @Router /admin/course-dates [post]
func (h *CourseDateHandler) Create(c *gin.Context) {
	var req service.CreateCourseDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cd, err := h.courseDates.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cd)
}

// Update godoc
// @Summary Update a course date
// @Tags CourseDates
// @Accept json
// @Produce json
// @Param id path string true "Course date ID"
// @Param payload body service.UpdateCourseDateRequest true "Course date payload"
// @Success 200 {object} response.Envelope
// @Router /admin/course-dates/{id} [put]
func (h *CourseDateHandler) Update(c *gin.Context) {
	var req service.UpdateCourseDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cd, err := h.courseDates.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cd, nil)
}

type updateCourseDateStatusRequest struct {
	Status models.CourseDateStatus `json:"status" binding:"required"`
}

// UpdateStatus godoc
// @Summary Update course date status
// @Tags CourseDates
// @Accept json
// @Produce json
// @Param id path string true "Course date ID"
// @Param payload body updateCourseDateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /admin/course-dates/{id}/status [patch]
func (h *CourseDateHandler) UpdateStatus(c *gin.Context) {
	var req updateCourseDateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cd, err := h.courseDates.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cd, nil)
}

// Postpone godoc
// @Summary Postpone a course date
// @Tags CourseDates
// @Accept json
// @Produce json
// @Param id path string true "Course date ID"
// @Param payload body service.PostponeCourseDateRequest true "Postpone payload"
// @Success 200 {object} response.Envelope
// @Router /admin/course-dates/{id}/postpone [post]
func (h *CourseDateHandler) Postpone(c *gin.Context) {
	var req service.PostponeCourseDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cd, err := h.courseDates.Postpone(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cd, nil)
}

// Cancel godoc
// @Summary Cancel a course date
// @Tags CourseDates
// @Accept json
// @Produce json
// @Param id path string true "Course date ID"
// @Param payload body service.CancelCourseDateRequest true "Cancel payload"
// @Success 200 {object} response.Envelope
// @Router /admin/course-dates/{id}/cancel [post]
func (h *CourseDateHandler) Cancel(c *gin.Context) {
	var req service.CancelCourseDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cd, err := h.courseDates.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cd, nil)
}

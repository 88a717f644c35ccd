package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DancingAppsDays/uniprotec-api/internal/service"
	"github.com/DancingAppsDays/uniprotec-api/pkg/response"
)

// TaskHandler exposes manual triggers for scheduled tasks.
type TaskHandler struct {
	sweep     *service.SweepService
	reminders *service.ReminderService
}

// NewTaskHandler constructs TaskHandler.
func NewTaskHandler(sweep *service.SweepService, reminders *service.ReminderService) *TaskHandler {
	return &TaskHandler{sweep: sweep, reminders: reminders}
}

// PostponementCheck godoc
// @Summary Run the postponement check now
// @Tags Tasks
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/tasks/postponement-check [post]
func (h *TaskHandler) PostponementCheck(c *gin.Context) {
	result, err := h.sweep.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SendReminders godoc
// @Summary Send course reminders now
// @Tags Tasks
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/tasks/reminders [post]
func (h *TaskHandler) SendReminders(c *gin.Context) {
	sent, err := h.reminders.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reminders_sent": sent}, nil)
}

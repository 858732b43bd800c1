package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/service"
)

// @Summary Create process
// @Tags workflow
// @Accept json
// @Produce json
// @Param body body service.ProcessInput true "process"
// @Success 201 {object} models.Process
// @Router /api/processes [post]
func (h *Handler) CreateProcess(c *gin.Context) {
	var req service.ProcessInput
	if !h.bind(c, &req) {
		return
	}
	proc, err := h.Workflow.CreateProcess(c.Request.Context(), req, actor(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proc)
}

// @Summary Process audit trail
// @Tags workflow
// @Produce json
// @Param id path string true "process id"
// @Success 200 {array} models.LogEntry
// @Router /api/processes/{id}/logs [get]
func (h *Handler) ProcessLogs(c *gin.Context) {
	logs, err := h.Workflow.ProcessLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

type StepRequest struct {
	Name            string `json:"name" validate:"required"`
	ActivityType    string `json:"activity_type"`
	ParticipantID   string `json:"participant_id" validate:"required"`
	ParticipantType string `json:"participant_type"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

// @Summary Add a step to a process
// @Tags workflow
// @Accept json
// @Produce json
// @Param id path string true "process id"
// @Param body body StepRequest true "step"
// @Success 201 {object} map[string]any
// @Router /api/processes/{id}/steps [post]
func (h *Handler) CreateStep(c *gin.Context) {
	var req StepRequest
	if !h.bind(c, &req) {
		return
	}
	act, item, err := h.Workflow.CreateStep(c.Request.Context(), service.StepInput{
		ProcessID:       c.Param("id"),
		Name:            req.Name,
		ActivityType:    req.ActivityType,
		ParticipantID:   req.ParticipantID,
		ParticipantType: req.ParticipantType,
		Duration:        time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"activity": act, "work_item": item})
}

type CompleteRequest struct {
	Note string `json:"note"`
}

// @Summary Complete work item
// @Tags workflow
// @Accept json
// @Produce json
// @Param id path string true "work item id"
// @Param body body CompleteRequest false "note"
// @Success 200 {object} models.OwnedWorkItem
// @Failure 409 {object} map[string]any
// @Router /api/work-items/{id}/complete [post]
func (h *Handler) CompleteWorkItem(c *gin.Context) {
	var req CompleteRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	owned, err := h.Workflow.CompleteWorkItem(c.Request.Context(), c.Param("id"), actor(c), req.Note)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, owned)
}

type CompleteSyncRequest struct {
	Resolution string `json:"resolution" validate:"required"`
	service.CompleteOptions
}

// @Summary Complete work item and resolve the WispHub ticket
// @Tags workflow
// @Accept json
// @Produce json
// @Param id path string true "work item id"
// @Param body body CompleteSyncRequest true "resolution"
// @Success 200 {object} service.CompletionResult
// @Router /api/work-items/{id}/complete-sync [post]
func (h *Handler) CompleteAndSync(c *gin.Context) {
	var req CompleteSyncRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Workflow.CompleteAndSyncWorkItem(c.Request.Context(), c.Param("id"), actor(c), req.Resolution, req.CompleteOptions)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type ReassignRequest struct {
	ParticipantID string `json:"participant_id" validate:"required"`
}

// @Summary Reassign work item
// @Tags workflow
// @Accept json
// @Produce json
// @Param id path string true "work item id"
// @Param body body ReassignRequest true "new participant"
// @Success 200 {object} service.ReassignResult
// @Router /api/work-items/{id}/reassign [post]
func (h *Handler) Reassign(c *gin.Context) {
	var req ReassignRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Workflow.ReassignWorkItem(c.Request.Context(), c.Param("id"), req.ParticipantID, actor(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Escalate work item
// @Tags escalation
// @Accept json
// @Produce json
// @Param id path string true "work item id"
// @Param body body service.EscalationRequest true "escalation"
// @Success 200 {object} service.EscalationResult
// @Failure 409 {object} map[string]any
// @Router /api/work-items/{id}/escalate [post]
func (h *Handler) Escalate(c *gin.Context) {
	var req service.EscalationRequest
	if !h.bind(c, &req) {
		return
	}
	req.WorkItemID = c.Param("id")
	req.ActorID = actor(c)
	res, err := h.Workflow.EscalateWorkItem(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Run the timeout sweep
// @Tags escalation
// @Produce json
// @Success 200 {object} service.SweepReport
// @Router /api/escalations/check [post]
func (h *Handler) CheckTimeouts(c *gin.Context) {
	report, err := h.Workflow.CheckTimeouts(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

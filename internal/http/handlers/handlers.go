package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rapilink/backend/internal/http/middleware"
	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/service"
)

// Workflow is the part of service.WorkflowService the API exposes.
type Workflow interface {
	SyncWithWispHub(ctx context.Context, userID string, forceFull bool) (service.SyncReport, service.SweepReport, error)
	SyncMyTickets(ctx context.Context, userID string, forceFull bool) (service.SyncReport, error)
	SyncGlobalTickets(ctx context.Context, daysBack int, onProgress func(service.SyncProgress)) (service.SyncReport, error)
	ScoreQueue(ctx context.Context, userID string) ([]service.QueueEntry, error)

	CreateProcess(ctx context.Context, in service.ProcessInput, actorID string) (models.Process, error)
	CreateStep(ctx context.Context, in service.StepInput) (models.Activity, models.WorkItem, error)
	ProcessLogs(ctx context.Context, processID string) ([]models.LogEntry, error)
	CompleteWorkItem(ctx context.Context, id, actorID, note string) (models.OwnedWorkItem, error)
	CompleteAndSyncWorkItem(ctx context.Context, id, actorID, resolution string, opts service.CompleteOptions) (service.CompletionResult, error)
	ReassignWorkItem(ctx context.Context, id, newParticipantID, actorID string) (service.ReassignResult, error)
	EscalateWorkItem(ctx context.Context, req service.EscalationRequest) (service.EscalationResult, error)
	CheckTimeouts(ctx context.Context) (service.SweepReport, error)

	Neighborhoods(ctx context.Context) ([]models.Neighborhood, error)
	CreateNeighborhood(ctx context.Context, in service.NeighborhoodInput) (models.Neighborhood, error)
	UpdateNeighborhood(ctx context.Context, id string, in service.NeighborhoodInput) (models.Neighborhood, error)
	DeleteNeighborhood(ctx context.Context, id string) error
	GeocodeNeighborhoods(ctx context.Context, force bool) (service.GeocodeReport, error)
	NearestNeighborhood(ctx context.Context, lat, lon float64) (models.Neighborhood, float64, error)
}

var _ Workflow = (*service.WorkflowService)(nil)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Workflow  Workflow
	DB        Pinger
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bind decodes and validates a JSON body, writing the error response itself on failure.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func actor(c *gin.Context) string {
	return c.GetString(middleware.ActorKey)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps service sentinels onto status codes. Anything unrecognised is a 500
// and gets logged.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", err.Error())
	case errors.Is(err, service.ErrEscalationCeiling):
		writeError(c, http.StatusConflict, "ESCALATION_CEILING", "Process is already at the top escalation level", err.Error())
	case errors.Is(err, service.ErrInvalidState):
		writeError(c, http.StatusConflict, "INVALID_STATE", "Work item is not pending", err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "Conflicts with existing work", err.Error())
	case errors.Is(err, service.ErrUnresolvedIdentity):
		writeError(c, http.StatusUnprocessableEntity, "UNRESOLVED_IDENTITY", "No WispHub identity for this user", err.Error())
	case errors.Is(err, service.ErrUpstreamMapping):
		writeError(c, http.StatusUnprocessableEntity, "UPSTREAM_MAPPING", "Participant has no WispHub staff id", err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(c, http.StatusUnprocessableEntity, "INVALID_INPUT", "Invalid input", err.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable):
		writeError(c, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "WispHub is unavailable", err.Error())
	case errors.Is(err, service.ErrGeocoderDisabled):
		writeError(c, http.StatusServiceUnavailable, "GEOCODER_DISABLED", "Geocoder not configured", nil)
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Request failed", err.Error())
	}
}

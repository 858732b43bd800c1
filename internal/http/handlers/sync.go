package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rapilink/backend/internal/service"
)

func forceFull(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("full"))
	return v
}

// @Summary Sync my tickets and run the timeout sweep
// @Tags sync
// @Produce json
// @Param full query bool false "use the long lookback window"
// @Success 200 {object} map[string]any
// @Failure 422 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/sync [post]
func (h *Handler) Sync(c *gin.Context) {
	report, sweep, err := h.Workflow.SyncWithWispHub(c.Request.Context(), actor(c), forceFull(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sync": report, "sweep": sweep})
}

// @Summary Sync my tickets
// @Tags sync
// @Produce json
// @Param full query bool false "use the long lookback window"
// @Success 200 {object} service.SyncReport
// @Router /api/sync/mine [post]
func (h *Handler) SyncMine(c *gin.Context) {
	report, err := h.Workflow.SyncMyTickets(c.Request.Context(), actor(c), forceFull(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Mirror every recent ticket
// @Tags sync
// @Produce json
// @Param days query int false "lookback window in days"
// @Success 200 {object} service.SyncReport
// @Router /api/sync/global [post]
func (h *Handler) SyncGlobal(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "days must be a non-negative integer", nil)
			return
		}
		days = n
	}
	progress := func(p service.SyncProgress) {
		h.Logger.Debug().Str("phase", p.Phase).Int("page", p.Page).Int("fetched", p.Fetched).
			Int("processed", p.Processed).Int("total", p.Total).Msg("global sync progress")
	}
	report, err := h.Workflow.SyncGlobalTickets(c.Request.Context(), days, progress)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary My pending work ordered by dispatch score
// @Tags dispatch
// @Produce json
// @Success 200 {array} service.QueueEntry
// @Router /api/queue [get]
func (h *Handler) Queue(c *gin.Context) {
	queue, err := h.Workflow.ScoreQueue(c.Request.Context(), actor(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if queue == nil {
		queue = []service.QueueEntry{}
	}
	c.JSON(http.StatusOK, queue)
}

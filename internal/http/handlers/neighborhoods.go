package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/service"
	"github.com/rapilink/backend/internal/utils"
)

// @Summary List neighborhoods
// @Tags neighborhoods
// @Produce json
// @Success 200 {array} models.Neighborhood
// @Router /api/neighborhoods [get]
func (h *Handler) NeighborhoodsList(c *gin.Context) {
	items, err := h.Workflow.Neighborhoods(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if items == nil {
		items = []models.Neighborhood{}
	}
	c.JSON(http.StatusOK, items)
}

// @Summary Nearest neighborhood to a point
// @Tags neighborhoods
// @Produce json
// @Param lat query number true "latitude"
// @Param lon query number true "longitude"
// @Success 200 {object} map[string]any
// @Router /api/neighborhoods/nearest [get]
func (h *Handler) NeighborhoodNearest(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil || !utils.ValidCoordinate(lat, lon) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "lat and lon must be valid coordinates", nil)
		return
	}
	n, km, err := h.Workflow.NearestNeighborhood(c.Request.Context(), lat, lon)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"neighborhood": n, "distance_km": km})
}

// @Summary Create neighborhood
// @Tags neighborhoods
// @Accept json
// @Produce json
// @Param body body service.NeighborhoodInput true "neighborhood"
// @Success 201 {object} models.Neighborhood
// @Router /api/neighborhoods [post]
func (h *Handler) NeighborhoodCreate(c *gin.Context) {
	var req service.NeighborhoodInput
	if !h.bind(c, &req) {
		return
	}
	n, err := h.Workflow.CreateNeighborhood(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// @Summary Update neighborhood
// @Tags neighborhoods
// @Accept json
// @Produce json
// @Param id path string true "neighborhood id"
// @Param body body service.NeighborhoodInput true "neighborhood"
// @Success 200 {object} models.Neighborhood
// @Router /api/neighborhoods/{id} [put]
func (h *Handler) NeighborhoodUpdate(c *gin.Context) {
	var req service.NeighborhoodInput
	if !h.bind(c, &req) {
		return
	}
	n, err := h.Workflow.UpdateNeighborhood(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// @Summary Delete neighborhood
// @Tags neighborhoods
// @Param id path string true "neighborhood id"
// @Success 204
// @Router /api/neighborhoods/{id} [delete]
func (h *Handler) NeighborhoodDelete(c *gin.Context) {
	if err := h.Workflow.DeleteNeighborhood(c.Request.Context(), c.Param("id")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Geocode neighborhoods
// @Tags neighborhoods
// @Produce json
// @Param force query bool false "refresh coordinates that are already set"
// @Success 200 {object} service.GeocodeReport
// @Router /api/neighborhoods/geocode [post]
func (h *Handler) NeighborhoodsGeocode(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))
	report, err := h.Workflow.GeocodeNeighborhoods(c.Request.Context(), force)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

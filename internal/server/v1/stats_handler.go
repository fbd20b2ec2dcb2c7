package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/internal/analytics"
	"github.com/nulzo/modelmart/pkg/api"
)

const maxStatsDays = 365

type StatsHandler struct {
	service analytics.Service
}

func NewStatsHandler(service analytics.Service) *StatsHandler {
	return &StatsHandler{
		service: service,
	}
}

// Overview returns marketplace totals.
//
// GET /api/v1/stats
func (h *StatsHandler) Overview(c *gin.Context) {
	stats, err := h.service.Overview(c.Request.Context())
	if err != nil {
		_ = c.Error(api.InternalError("Failed to fetch stats", err))
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Daily returns per-day deployment counts and volume.
//
// GET /api/v1/stats/daily?days=7
func (h *StatsHandler) Daily(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > maxStatsDays {
		_ = c.Error(api.BadRequestError("Invalid 'days' parameter",
			api.WithExtension("errors", map[string]string{"days": "must be an integer between 1 and 365"}),
		))
		return
	}

	stats, err := h.service.Daily(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to fetch analytics", err))
		return
	}

	c.JSON(http.StatusOK, stats)
}

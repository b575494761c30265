package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/colorize-be/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// StatsHandler serves aggregate usage figures.
type StatsHandler struct {
	logger *slog.Logger
	stats  StatsProvider
}

func NewStatsHandler(deps *Dependencies) *StatsHandler {
	return &StatsHandler{logger: deps.Logger, stats: deps.Stats}
}

// Get handles GET /stats
func (h *StatsHandler) Get(c *gin.Context) {
	snapshot, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		respondInternal(c, h.logger, "Failed to retrieve stats", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewStatsResponse(snapshot))
}

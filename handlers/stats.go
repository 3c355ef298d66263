package handlers

import (
	"net/http"
	"time"

	"roadalert/database"
	"roadalert/models"
	"roadalert/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// StatsHandler serves the read-only aggregation endpoints.
type StatsHandler struct {
	stats *database.StatsService
}

func NewStatsHandler(stats *database.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) Statistics(c *gin.Context) {
	stats, err := h.stats.Collect(c.Request.Context(), time.Now())
	if err != nil {
		log.Errorf("Failed to collect statistics: %v", err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatisticsResponse{Success: true, Statistics: stats})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"message": "RoadAlert API is running",
	})
}

func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get("roadalert"))
}

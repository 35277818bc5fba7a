package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"perpscope/internal/aggregator"
)

type HealthHandler struct {
	Snapshot  *aggregator.SnapshotCache
	StartedAt time.Time
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	out := gin.H{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.Snapshot != nil {
		if _, takenAt, ok := h.Snapshot.Get(); ok {
			out["lastRefresh"] = takenAt.UnixMilli()
		}
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	// No databases to ping; serving traffic only needs the process up.
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

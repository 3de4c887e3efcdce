package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"executor/internal/metrics"
)

const readyTimeout = 2 * time.Second

// OpsHandler serves liveness, readiness and metrics for the worker.
type OpsHandler struct {
	Worker  string
	Ping    func(ctx context.Context) error
	Metrics *metrics.Metrics
}

func (h *OpsHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{})))
	}
}

func (h *OpsHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "worker": h.Worker})
}

func (h *OpsHandler) ready(c *gin.Context) {
	if h.Ping == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()
	if err := h.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

package handler

import (
	"net/http"

	"ufmedic/internal/service"
	"ufmedic/pkg/config"

	"github.com/gin-gonic/gin"
)

// PlaybookLister reports the playbook files currently deployed.
type PlaybookLister interface {
	Playbooks() []string
}

// HealthHandler serves the root and health endpoints
type HealthHandler struct {
	cfg       *config.Config
	orch      *service.Orchestrator
	playbooks PlaybookLister
}

// NewHealthHandler creates health handler
func NewHealthHandler(cfg *config.Config, orch *service.Orchestrator, playbooks PlaybookLister) *HealthHandler {
	return &HealthHandler{cfg: cfg, orch: orch, playbooks: playbooks}
}

// Root identifies the service
// @Summary Service info
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.cfg.Server.Name,
		"version": h.cfg.Server.Version,
		"status":  "running",
	})
}

// Health reports service health, task statistics, breaker states and
// available playbooks
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	playbooks := h.playbooks.Playbooks()

	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"service":          h.cfg.Server.Name,
		"version":          h.cfg.Server.Version,
		"statistics":       h.orch.Stats(c.Request.Context()),
		"circuit_breakers": h.orch.BreakerStates(),
		"playbooks":        playbooks,
		"playbooks_found":  len(playbooks),
	})
}

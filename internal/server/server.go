// Package server exposes the admin HTTP API: alert config CRUD, the alert
// lifecycle operations, and the live event stream.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
)

// HistoryStore serves resolved alert history. Optional; without it the
// history endpoint reports unavailable.
type HistoryStore interface {
	AlertHistory(ctx context.Context, configID string, limit int) ([]alerting.TriggeredAlert, error)
}

// HealthChecker probes notification providers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// Server is the admin HTTP surface over the alert manager.
type Server struct {
	logger   *zap.Logger
	manager  *alerting.Manager
	history  HistoryStore
	health   HealthChecker
	hub      *Hub
	gatherer prometheus.Gatherer
}

// NewServer wires the HTTP surface. history, health, hub and gatherer may
// be nil; the matching endpoints degrade.
func NewServer(logger *zap.Logger, manager *alerting.Manager, history HistoryStore, health HealthChecker, hub *Hub, gatherer prometheus.Gatherer) *Server {
	return &Server{
		logger:   logger,
		manager:  manager,
		history:  history,
		health:   health,
		hub:      hub,
		gatherer: gatherer,
	}
}

// Hub returns the event stream hub, for wiring as an event publisher.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the HTTP router.
func (s *Server) Router(corsOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))

	corsCfg := cors.DefaultConfig()
	if len(corsOrigins) > 0 {
		corsCfg.AllowOrigins = corsOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	alerts := router.Group("/api/v1/alerts")
	{
		alerts.GET("/configs", s.handleListConfigs)
		alerts.POST("/configs", s.handleCreateConfig)
		alerts.GET("/configs/:id", s.handleGetConfig)
		alerts.PUT("/configs/:id", s.handleUpdateConfig)
		alerts.DELETE("/configs/:id", s.handleDeleteConfig)

		alerts.GET("/active", s.handleActiveAlerts)
		alerts.GET("/summary", s.handleSummary)
		alerts.GET("/history", s.handleHistory)
		alerts.GET("/:id", s.handleGetAlert)
		alerts.POST("/:id/acknowledge", s.handleAcknowledge)
		alerts.POST("/:id/resolve", s.handleResolve)

		alerts.GET("/stream", s.handleStream)
	}

	return router
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, alerting.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, alerting.ErrConfigNotFound), errors.Is(err, alerting.ErrAlertNotFound):
		status = http.StatusNotFound
	case errors.Is(err, alerting.ErrAlertResolved):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.health != nil {
		providers := gin.H{}
		for key, err := range s.health.HealthCheck(c.Request.Context()) {
			if err != nil {
				providers[key] = err.Error()
				resp["status"] = "degraded"
			} else {
				providers[key] = "ok"
			}
		}
		if len(providers) > 0 {
			resp["providers"] = providers
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"configs": s.manager.ListConfigs()})
}

func (s *Server) handleCreateConfig(c *gin.Context) {
	var cfg alerting.AlertConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := s.manager.CreateConfig(c.Request.Context(), &cfg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.manager.GetConfig(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var cfg alerting.AlertConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	cfg.ID = c.Param("id")
	if err := s.manager.UpdateConfig(c.Request.Context(), &cfg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleDeleteConfig(c *gin.Context) {
	if err := s.manager.DeleteConfig(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "config deleted"})
}

func (s *Server) handleActiveAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.manager.ActiveAlerts()})
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.AlertSummary())
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert history unavailable"})
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	alerts, err := s.history.AlertHistory(c.Request.Context(), c.Query("config_id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleGetAlert(c *gin.Context) {
	alert, err := s.manager.GetAlert(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type lifecycleRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Note       string `json:"note"`
	Resolution string `json:"resolution"`
}

func (s *Server) handleAcknowledge(c *gin.Context) {
	var req lifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := s.manager.Acknowledge(c.Request.Context(), c.Param("id"), req.UserID, req.Note); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert acknowledged"})
}

func (s *Server) handleResolve(c *gin.Context) {
	var req lifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := s.manager.Resolve(c.Request.Context(), c.Param("id"), req.UserID, req.Resolution); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert resolved"})
}

func (s *Server) handleStream(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert stream unavailable"})
		return
	}
	s.hub.ServeWS(c.Writer, c.Request)
}

package handler

import (
	"context"
	"net/http"
	"time"

	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BuildInfo is reported by /api/version
type BuildInfo struct {
	Version     string
	Environment string
	SentryDSN   string
}

type SystemHandler struct {
	db   Pinger
	info BuildInfo
}

func NewSystemHandler(db Pinger, info BuildInfo) *SystemHandler {
	return &SystemHandler{db: db, info: info}
}

func (h *SystemHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/health", h.Health)
	router.GET("/api/version", h.Version)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Health pings the database
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /api/health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "database unreachable"))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"database": "ok"}))
}

func (h *SystemHandler) Version(c *gin.Context) {
	reporting := "disabled"
	if h.info.SentryDSN != "" {
		reporting = "enabled"
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"version":         h.info.Version,
		"environment":     h.info.Environment,
		"error_reporting": reporting,
	}))
}

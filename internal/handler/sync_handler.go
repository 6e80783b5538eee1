package handler

import (
	"context"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/scheduler"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// SyncController is the part of the scheduler the HTTP surface drives
type SyncController interface {
	Start() error
	Stop()
	Status() scheduler.Status
	RunSyncNow(ctx context.Context, provider string) error
}

type SyncHandler struct {
	scheduler SyncController
}

func NewSyncHandler(s SyncController) *SyncHandler {
	return &SyncHandler{scheduler: s}
}

func (h *SyncHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	sync := router.Group("/api/sync", auth.RequireRole(model.RoleAdmin, model.RoleManager))
	{
		sync.GET("/status", h.Status)
		sync.POST("/start-automated", h.Start)
		sync.POST("/stop-automated", h.Stop)
		sync.POST("/trigger-immediate", h.TriggerImmediate)
	}
}

// Status reports whether automated sync is running and when it last and next runs
// @Summary      Sync scheduler status
// @Tags         sync
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=scheduler.Status}
// @Router       /api/sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.scheduler.Status()))
}

func (h *SyncHandler) Start(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Automated sync started", h.scheduler.Status()))
}

func (h *SyncHandler) Stop(c *gin.Context) {
	h.scheduler.Stop()
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Automated sync stopped", h.scheduler.Status()))
}

// TriggerImmediate runs one cycle now and returns its error
// @Summary      Run sync now
// @Tags         sync
// @Produce      json
// @Security     BearerAuth
// @Param        provider  query     string  false  "quickbooks, google_calendar, database_connections or all"
// @Success      200       {object}  response.Response{data=scheduler.Status}
// @Failure      500       {object}  response.Response
// @Router       /api/sync/trigger-immediate [post]
func (h *SyncHandler) TriggerImmediate(c *gin.Context) {
	provider := c.DefaultQuery("provider", scheduler.ProviderAll)
	if err := h.scheduler.RunSyncNow(c.Request.Context(), provider); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Sync completed", h.scheduler.Status()))
}

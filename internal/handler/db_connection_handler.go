package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type DatabaseConnectionHandler struct {
	connectionService service.DatabaseConnectionService
}

func NewDatabaseConnectionHandler(connectionService service.DatabaseConnectionService) *DatabaseConnectionHandler {
	return &DatabaseConnectionHandler{connectionService: connectionService}
}

func (h *DatabaseConnectionHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	conns := router.Group("/api/database-connections", auth.RequireRole(model.RoleAdmin))
	{
		conns.GET("", h.List)
		conns.POST("", h.Create)
		conns.GET("/:id", h.Get)
		conns.PUT("/:id", h.Update)
		conns.DELETE("/:id", h.Delete)
		conns.POST("/:id/test", h.Test)
		conns.POST("/:id/sync", h.Sync)
		conns.PATCH("/:id/auto-sync", h.ToggleAutoSync)
	}
}

// List returns every registered database connection
// @Summary      List database connections
// @Tags         database-connections
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.DatabaseConnection}
// @Router       /api/database-connections [get]
func (h *DatabaseConnectionHandler) List(c *gin.Context) {
	conns, err := h.connectionService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, conns))
}

func (h *DatabaseConnectionHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	conn, err := h.connectionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, conn))
}

// Create registers a database connection
// @Summary      Create database connection
// @Tags         database-connections
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.DatabaseConnectionRequest  true  "Connection details"
// @Success      201      {object}  response.Response{data=model.DatabaseConnection}
// @Failure      400      {object}  response.Response
// @Router       /api/database-connections [post]
func (h *DatabaseConnectionHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DatabaseConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	conn, err := h.connectionService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, conn))
}

// Update replaces a connection's settings. A blank password keeps the stored one.
func (h *DatabaseConnectionHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.DatabaseConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	conn, err := h.connectionService.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, conn))
}

func (h *DatabaseConnectionHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.connectionService.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Database connection deleted", nil))
}

// Test probes the connection without recording the result
// @Summary      Test database connection
// @Tags         database-connections
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Connection ID"
// @Success      200  {object}  response.Response{data=service.ConnectionTestResult}
// @Router       /api/database-connections/{id}/test [post]
func (h *DatabaseConnectionHandler) Test(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.connectionService.Test(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, result.Message, result))
}

func (h *DatabaseConnectionHandler) Sync(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.connectionService.Sync(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, result.Message, result))
}

// ToggleAutoSync turns the connection's participation in scheduled syncs on or off
// @Summary      Toggle auto-sync
// @Tags         database-connections
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Connection ID"
// @Param        payload  body      service.ToggleAutoSyncRequest  true  "Desired state"
// @Success      200      {object}  response.Response{data=model.DatabaseConnection}
// @Router       /api/database-connections/{id}/auto-sync [patch]
func (h *DatabaseConnectionHandler) ToggleAutoSync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ToggleAutoSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	conn, err := h.connectionService.ToggleAutoSync(c.Request.Context(), userID, id, req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, conn))
}

package handler

import (
	"errors"
	"io"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClockHandler struct {
	clockService service.ClockService
}

func NewClockHandler(clockService service.ClockService) *ClockHandler {
	return &ClockHandler{clockService: clockService}
}

func (h *ClockHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	clock := router.Group("/api/clock", auth.RequireRole())
	{
		clock.POST("/in", h.ClockIn)
		clock.POST("/out", h.ClockOut)
		clock.GET("/status", h.Status)
		clock.GET("/history", h.History)
	}
}

// bindOptionalJSON accepts an empty body
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// ClockIn opens a work session. The calendar field reports whether the session was mirrored.
// @Summary      Clock in
// @Tags         clock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ClockInRequest  false  "Optional customer and notes"
// @Success      201      {object}  response.Response{data=service.ClockResult}
// @Failure      409      {object}  response.Response
// @Router       /api/clock/in [post]
func (h *ClockHandler) ClockIn(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ClockInRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.clockService.ClockIn(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Message(http.StatusCreated, "Clocked in", result))
}

// ClockOut closes the active work session
// @Summary      Clock out
// @Tags         clock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ClockOutRequest  false  "Optional notes"
// @Success      200      {object}  response.Response{data=service.ClockResult}
// @Failure      404      {object}  response.Response
// @Router       /api/clock/out [post]
func (h *ClockHandler) ClockOut(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ClockOutRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.clockService.ClockOut(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Clocked out", result))
}

func (h *ClockHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.clockService.Status(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

func (h *ClockHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	entries, total, err := h.clockService.History(c.Request.Context(), userID, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, entries, total, p.Page, p.Limit))
}

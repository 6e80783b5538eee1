package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ActivityHandler struct {
	activityService service.ActivityService
}

func NewActivityHandler(activityService service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

func (h *ActivityHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	router.GET("/api/activity", auth.RequireRole(model.RoleAdmin, model.RoleManager), h.List)
}

// List returns the activity log, newest first
// @Summary      Activity log
// @Tags         activity
// @Produce      json
// @Security     BearerAuth
// @Param        type   query     string  false  "Filter by activity type"
// @Param        page   query     int     false  "Page number"
// @Param        limit  query     int     false  "Items per page"
// @Success      200    {object}  response.Page{data=[]model.ActivityLog}
// @Router       /api/activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	logs, total, err := h.activityService.List(c.Request.Context(), c.Query("type"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, logs, total, p.Page, p.Limit))
}

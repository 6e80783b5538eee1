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

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	approvals := router.Group("/api/pending-approvals", auth.RequireRole())
	{
		approvals.GET("", h.ListApprovals)
		approvals.POST("", h.SubmitApproval)
		approvals.GET("/:id", h.GetApproval)
		approvals.POST("/:id/approve", auth.RequireRole(model.RoleAdmin, model.RoleManager), h.Approve)
		approvals.POST("/:id/deny", auth.RequireRole(model.RoleAdmin, model.RoleManager), h.Deny)
	}
}

// ListApprovals returns approvals, optionally filtered by status
// @Summary      List approvals
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "pending, approved or denied"
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Page{data=[]model.PendingApproval}
// @Router       /api/pending-approvals [get]
func (h *ApprovalHandler) ListApprovals(c *gin.Context) {
	p := pagination.Parse(c)
	approvals, total, err := h.approvalService.List(c.Request.Context(), service.ApprovalFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, approvals, total, p.Page, p.Limit))
}

// SubmitApproval stages a form for an administrator's decision
// @Summary      Submit a form for approval
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitApprovalRequest  true  "Form type and payload"
// @Success      201      {object}  response.Response{data=model.PendingApproval}
// @Failure      400      {object}  response.Response
// @Router       /api/pending-approvals [post]
func (h *ApprovalHandler) SubmitApproval(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.SubmitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	approval, err := h.approvalService.Submit(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, approval))
}

func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	approval, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, approval))
}

// Approve decides a pending approval and returns what it materialized
// @Summary      Approve a pending request
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Approval ID"
// @Success      200  {object}  response.Response{data=service.ApprovalOutcome}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/pending-approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	outcome, err := h.approvalService.Approve(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Request approved", outcome))
}

// Deny rejects a pending approval with a reason
// @Summary      Deny a pending request
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Approval ID"
// @Param        payload  body      service.DenyApprovalRequest  true  "Reason"
// @Success      200      {object}  response.Response{data=model.PendingApproval}
// @Failure      409      {object}  response.Response
// @Router       /api/pending-approvals/{id}/deny [post]
func (h *ApprovalHandler) Deny(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.DenyApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "A denial reason is required")
		return
	}

	approval, err := h.approvalService.Deny(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Request denied", approval))
}

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

type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	readers := auth.RequireRole(model.RoleAdmin, model.RoleManager)

	router.GET("/api/invoices", readers, h.ListInvoices)
	router.GET("/api/invoices/:id", readers, h.GetInvoice)
	router.GET("/api/pending-approvals/:id/invoice", readers, h.GetApprovalInvoice)
}

// ListInvoices returns invoices from approvals and accounting sync
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        status    query     string  false  "open, paid or voided"
// @Param        source    query     string  false  "approval or quickbooks"
// @Param        owner_id  query     string  false  "Owning user"
// @Param        page      query     int     false  "Page"
// @Param        limit     query     int     false  "Page size"
// @Success      200       {object}  response.Page{data=[]model.Invoice}
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)
	invoices, total, err := h.invoiceService.List(c.Request.Context(), service.InvoiceFilter{
		OwnerID: c.Query("owner_id"),
		Status:  c.Query("status"),
		Source:  c.Query("source"),
		Page:    p.Page,
		Limit:   p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, invoices, total, p.Page, p.Limit))
}

// GetInvoice returns one invoice with its lines
// @Summary      Get invoice
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=model.Invoice}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func (h *InvoiceHandler) GetApprovalInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoice, err := h.invoiceService.GetByApproval(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

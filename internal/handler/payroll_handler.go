package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PayrollHandler struct {
	payrollService service.PayrollService
}

func NewPayrollHandler(payrollService service.PayrollService) *PayrollHandler {
	return &PayrollHandler{payrollService: payrollService}
}

func (h *PayrollHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	payroll := router.Group("/api/payroll", auth.RequireRole(model.RoleAdmin, model.RoleManager))
	{
		payroll.GET("", h.ListWeek)
		payroll.GET("/export", h.Export)
	}
}

// ListWeek returns approved payroll for the week containing ?week=
// @Summary      Weekly payroll
// @Tags         payroll
// @Produce      json
// @Security     BearerAuth
// @Param        week  query     string  true  "Any date in the week (YYYY-MM-DD)"
// @Success      200   {object}  response.Response{data=[]model.WeeklyPayroll}
// @Router       /api/payroll [get]
func (h *PayrollHandler) ListWeek(c *gin.Context) {
	rows, err := h.payrollService.ListWeek(c.Request.Context(), c.Query("week"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// Export streams the week's approved payroll as a spreadsheet
// @Summary      Export weekly payroll
// @Tags         payroll
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        week  query  string  true  "Any date in the week (YYYY-MM-DD)"
// @Success      200
// @Router       /api/payroll/export [get]
func (h *PayrollHandler) Export(c *gin.Context) {
	week := c.Query("week")

	// buffered so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := h.payrollService.ExportWeek(c.Request.Context(), week, &buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="payroll-%s.xlsx"`, week))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

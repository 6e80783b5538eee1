package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/quickbooks"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// RedirectConfig names the frontend pages OAuth callbacks return to
type RedirectConfig struct {
	QuickBooksFrontendURL string
	GoogleFrontendURL     string
}

type IntegrationHandler struct {
	integrations service.IntegrationService
	accounting   service.AccountingService
	calendar     service.CalendarService
	redirects    RedirectConfig
}

func NewIntegrationHandler(
	integrations service.IntegrationService,
	accounting service.AccountingService,
	calendar service.CalendarService,
	redirects RedirectConfig,
) *IntegrationHandler {
	return &IntegrationHandler{
		integrations: integrations,
		accounting:   accounting,
		calendar:     calendar,
		redirects:    redirects,
	}
}

func (h *IntegrationHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	syncers := auth.RequireRole(model.RoleAdmin, model.RoleManager)

	api := router.Group("/api/integrations")
	{
		api.GET("", auth.RequireRole(), h.List)
		api.DELETE("/:provider", auth.RequireRole(), h.Disconnect)

		// Callbacks are public; the OAuth state identifies the user
		api.GET("/quickbooks/connect", auth.RequireRole(), h.QuickBooksConnect)
		api.GET("/quickbooks/callback", h.QuickBooksCallback)
		api.GET("/quickbooks/status", auth.RequireRole(), h.QuickBooksStatus)
		api.POST("/quickbooks/sync", syncers, h.QuickBooksSync)
		api.POST("/quickbooks/initial-sync", syncers, h.QuickBooksInitialSync)

		api.GET("/google/connect", auth.RequireRole(), h.GoogleConnect)
		api.GET("/google/callback", h.GoogleCallback)
		api.POST("/google/sync", auth.RequireRole(), h.GoogleSync)
	}

	router.POST("/quickbooks/webhook", h.QuickBooksWebhook)
}

// List returns the current user's integrations
// @Summary      List integrations
// @Tags         integrations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.Integration}
// @Router       /api/integrations [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	integrations, err := h.integrations.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, integrations))
}

// Disconnect deactivates an integration and clears its tokens
// @Summary      Disconnect an integration
// @Tags         integrations
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "quickbooks or google_calendar"
// @Success      200       {object}  response.Response
// @Failure      404       {object}  response.Response
// @Router       /api/integrations/{provider} [delete]
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	provider := c.Param("provider")
	if provider == "google" {
		provider = model.ProviderGoogleCalendar
	}
	if err := h.integrations.Disconnect(c.Request.Context(), userID, provider); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, provider+" disconnected", nil))
}

// beginOAuth redirects browsers to the provider; API clients asking for JSON get the URL instead
func beginOAuth(c *gin.Context, authURL string) {
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"url": authURL}))
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// QuickBooksConnect starts the QuickBooks OAuth flow
// @Summary      Connect QuickBooks
// @Tags         integrations
// @Security     BearerAuth
// @Success      302
// @Router       /api/integrations/quickbooks/connect [get]
func (h *IntegrationHandler) QuickBooksConnect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	authURL, err := h.integrations.BeginConnect(c.Request.Context(), userID, model.ProviderQuickBooks)
	if err != nil {
		respondError(c, err)
		return
	}
	beginOAuth(c, authURL)
}

// QuickBooksCallback finishes the OAuth flow and sends the browser back to the settings page
// @Summary      QuickBooks OAuth callback
// @Tags         integrations
// @Param        code     query  string  true  "Authorization code"
// @Param        state    query  string  true  "OAuth state"
// @Param        realmId  query  string  true  "Company id"
// @Success      302
// @Router       /api/integrations/quickbooks/callback [get]
func (h *IntegrationHandler) QuickBooksCallback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		redirectWith(c, h.redirects.QuickBooksFrontendURL, url.Values{"qb_error": {msg}})
		return
	}

	integration, err := h.integrations.CompleteConnect(c.Request.Context(), model.ProviderQuickBooks, service.CallbackParams{
		State:   c.Query("state"),
		Code:    c.Query("code"),
		RealmID: c.Query("realmId"),
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("QuickBooks callback failed", slog.Any("error", err))
		redirectWith(c, h.redirects.QuickBooksFrontendURL, url.Values{"qb_error": {err.Error()}})
		return
	}

	realmID := ""
	if integration.RealmID != nil {
		realmID = *integration.RealmID
	}
	redirectWith(c, h.redirects.QuickBooksFrontendURL, url.Values{"qb_success": {"1"}, "realmId": {realmID}})
}

// QuickBooksStatus reports whether the current user has a usable QuickBooks connection
// @Summary      QuickBooks connection status
// @Tags         integrations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.IntegrationStatus}
// @Router       /api/integrations/quickbooks/status [get]
func (h *IntegrationHandler) QuickBooksStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.integrations.Status(c.Request.Context(), userID, model.ProviderQuickBooks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// QuickBooksSync runs a full sync for the current user
// @Summary      Sync QuickBooks
// @Tags         integrations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.SyncResult}
// @Failure      400  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/integrations/quickbooks/sync [post]
func (h *IntegrationHandler) QuickBooksSync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	result, err := h.accounting.FullSync(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "QuickBooks sync completed", result))
}

// QuickBooksInitialSync pulls customers, items and invoices one stage at a time
func (h *IntegrationHandler) QuickBooksInitialSync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var result service.SyncResult
	var err error
	if result.Customers, err = h.accounting.SyncCustomers(ctx, userID); err != nil {
		respondError(c, err)
		return
	}
	if result.Items, err = h.accounting.SyncItems(ctx, userID); err != nil {
		respondError(c, err)
		return
	}
	if result.Invoices, err = h.accounting.SyncInvoices(ctx, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Message(http.StatusOK, "Initial QuickBooks import completed", result))
}

// QuickBooksWebhook verifies the provider signature before touching the payload
// @Summary      QuickBooks webhook intake
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        intuit-signature  header    string  true  "HMAC-SHA256 signature"
// @Success      200               {object}  response.Response{data=service.WebhookResult}
// @Failure      401               {object}  response.Response
// @Router       /quickbooks/webhook [post]
func (h *IntegrationHandler) QuickBooksWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "Failed to read body")
		return
	}

	if !h.accounting.VerifyWebhookSignature(payload, c.GetHeader(quickbooks.SignatureHeader)) {
		respondError(c, domain.ErrSignatureInvalid)
		return
	}

	result, err := h.accounting.ProcessWebhook(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func (h *IntegrationHandler) GoogleConnect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	authURL, err := h.calendar.GetAuthorizationURL(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	beginOAuth(c, authURL)
}

func (h *IntegrationHandler) GoogleCallback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		redirectWith(c, h.redirects.GoogleFrontendURL, url.Values{"google_error": {msg}})
		return
	}

	_, err := h.calendar.ExchangeCodeForTokens(c.Request.Context(), service.CallbackParams{
		State: c.Query("state"),
		Code:  c.Query("code"),
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("Google callback failed", slog.Any("error", err))
		redirectWith(c, h.redirects.GoogleFrontendURL, url.Values{"google_error": {err.Error()}})
		return
	}
	redirectWith(c, h.redirects.GoogleFrontendURL, url.Values{"google_success": {"1"}})
}

// GoogleSync pulls the next week of the current user's calendar
// @Summary      Sync Google Calendar schedule
// @Tags         integrations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.ScheduledShift}
// @Router       /api/integrations/google/sync [post]
func (h *IntegrationHandler) GoogleSync(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	shifts, err := h.calendar.SyncEmployeeSchedules(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, shifts))
}

// redirectWith appends params to base, keeping any query it already has
func redirectWith(c *gin.Context, base string, params url.Values) {
	u, err := url.Parse(base)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "invalid redirect target"))
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

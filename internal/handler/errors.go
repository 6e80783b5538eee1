package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"backoffice/internal/domain"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusFor maps the error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthenticationRequired), errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrIntegrationNotConnected), errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error envelope. Internal errors are logged and
// their message is not echoed to the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := response.Error(status, err.Error())

	if errors.Is(err, domain.ErrIntegrationNotConnected) {
		body.NeedsConnection = true
	}
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		body.Error = "internal server error"
	}

	_ = c.Error(err)
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// currentUser reads the user id set by the auth middleware
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, domain.ErrAuthenticationRequired.Error()))
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the :id route parameter
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id format")
		return uuid.Nil, false
	}
	return id, true
}

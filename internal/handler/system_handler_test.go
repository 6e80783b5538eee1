package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestSystemHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var pingErr error
	h := NewSystemHandler(pingerFunc(func(context.Context) error { return pingErr }), BuildInfo{
		Version:     "1.4.0",
		Environment: "test",
	})
	r := gin.New()
	h.RegisterRoutes(&r.RouterGroup)

	w := do(r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	pingErr = errors.New("connection refused")
	w = do(r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, "/api/version", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := string(decode(t, w).Data)
	assert.Contains(t, data, `"version":"1.4.0"`)
	assert.Contains(t, data, `"error_reporting":"disabled"`)

	w = do(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

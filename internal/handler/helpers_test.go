package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("handler-secret")

type routes interface {
	RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth)
}

func newTestRouter(h routes) (*gin.Engine, *middleware.Auth) {
	gin.SetMode(gin.TestMode)
	auth := middleware.NewAuth(testSecret, false)
	r := gin.New()
	h.RegisterRoutes(&r.RouterGroup, auth)
	return r, auth
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(r http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doWithHeader(r http.Handler, path string, body []byte, key, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(key, value)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status          string          `json:"status"`
	StatusCode      int             `json:"status_code"`
	Message         string          `json:"message"`
	Data            json.RawMessage `json:"data"`
	Error           string          `json:"error"`
	NeedsConnection bool            `json:"needsConnection"`
	Total           int64           `json:"total"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

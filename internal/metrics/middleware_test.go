package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/items/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/items/:id", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(HTTPRequestsInFlight))
}

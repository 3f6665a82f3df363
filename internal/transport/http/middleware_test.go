package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/linkbio/commerce-service/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddlewarePerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := logger.NewLogger()

	r := gin.New()
	r.Use(LoggingMiddleware(log), RateLimitMiddleware(1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

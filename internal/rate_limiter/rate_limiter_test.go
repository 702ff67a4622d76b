package rate_limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIsAllowedSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.IsAllowed("user:7"))
	assert.True(t, rl.IsAllowed("user:7"))
	assert.False(t, rl.IsAllowed("user:7"))
	assert.True(t, rl.IsAllowed("user:8"))
	assert.Equal(t, 0, rl.GetRemainingRequests("user:7"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, 2, rl.GetRemainingRequests("user:7"))
	assert.True(t, rl.IsAllowed("user:7"))
}

func TestMiddlewareThrottlesWritesOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/assets", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/assets", func(c *gin.Context) { c.Status(http.StatusCreated) })

	do := func(method string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(method, "/assets", nil)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost))
	assert.Equal(t, http.StatusOK, do(http.MethodGet))
	assert.Equal(t, http.StatusOK, do(http.MethodGet))
}

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthStatus struct {
	Status      string    `json:"status"`
	Database    string    `json:"database"`
	LastChecked time.Time `json:"last_checked"`
	Uptime      string    `json:"uptime"`
	Version     string    `json:"version"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthChecker struct {
	db            Pinger
	version       string
	startTime     time.Time
	cacheDuration time.Duration

	mu           sync.Mutex
	lastStatus   HealthStatus
	lastResponse time.Time
}

func NewHealthChecker(db Pinger, version string) *HealthChecker {
	return &HealthChecker{
		db:            db,
		version:       version,
		startTime:     time.Now(),
		cacheDuration: 5 * time.Second,
	}
}

// Handler reports liveness and database reachability. Results are cached
// briefly so probes do not hammer the pool.
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.check(c.Request.Context())

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

func (h *HealthChecker) check(ctx context.Context) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lastResponse.IsZero() && time.Since(h.lastResponse) < h.cacheDuration {
		return h.lastStatus
	}

	status := HealthStatus{
		Status:      "ok",
		Database:    "ok",
		LastChecked: time.Now(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Version:     h.version,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(pingCtx); err != nil {
		status.Status = "degraded"
		status.Database = err.Error()
	}

	h.lastStatus = status
	h.lastResponse = status.LastChecked
	return status
}

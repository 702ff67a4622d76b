package metrics

import (
	"strconv"
	"sync"
	"time"

	custom_error "sitewarehouse/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkflowTransitions counts every attempted state transition.
	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of workflow transitions by aggregate, transition and outcome",
		},
		[]string{"aggregate", "transition", "outcome"},
	)

	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	registerOnce sync.Once
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(WorkflowTransitions, RequestCounter, RequestDurationHistogram)
	})
}

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Outcome classifies err: nil succeeds, domain errors are rejections and
// anything else is a failure.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case custom_error.IsDomainError(err):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func ObserveTransition(aggregate, transition string, err error) {
	WorkflowTransitions.WithLabelValues(aggregate, transition, Outcome(err)).Inc()
}

// Middleware records request count and latency keyed by the route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		RequestCounter.WithLabelValues(c.Request.Method, path, status).Inc()
		RequestDurationHistogram.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

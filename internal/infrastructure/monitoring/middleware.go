package monitoring

import (
	"github.com/gin-gonic/gin"
	"github.com/zoobzio/clockz"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/tracing"
)

// Middleware creates a Gin middleware for metrics collection. Either
// argument may be nil: metrics feeds the local Prometheus collectors and
// recorder ships a RequestMetric per request.
func Middleware(metrics *Metrics, recorder *Recorder) gin.HandlerFunc {
	var clock clockz.Clock = clockz.RealClock
	if recorder != nil {
		clock = recorder.clock
	}

	return func(c *gin.Context) {
		start := clock.Now()
		method := c.Request.Method

		// Get request size
		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		// Process request
		c.Next()

		// Route templates keep label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		duration := clock.Now().Sub(start)
		status := c.Writer.Status()
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		if metrics != nil {
			metrics.RecordHTTPRequest(method, path, status, duration)
		}
		if recorder != nil {
			traceID, _ := tracing.CorrelationIDs(c.Request.Context())
			recorder.Record(RequestMetric{
				Method:        method,
				Path:          path,
				StatusCode:    status,
				DurationMs:    float64(duration.Microseconds()) / 1000,
				RequestBytes:  reqSize,
				ResponseBytes: respSize,
				Timestamp:     start.UTC().Format("2006-01-02T15:04:05.000Z"),
				TraceID:       traceID,
			})
		}
	}
}

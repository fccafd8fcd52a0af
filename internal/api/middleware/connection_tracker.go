package middleware

import (
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// ConnectionTracker counts in-flight requests. Streams stay counted until
// their last byte is written, which is what graceful shutdown waits on.
type ConnectionTracker struct {
	count atomic.Int64
}

func (ct *ConnectionTracker) begin() {
	ct.count.Add(1)
	if IsMetricsEnabled() {
		activeConnections.Inc()
	}
}

func (ct *ConnectionTracker) end() {
	ct.count.Add(-1)
	if IsMetricsEnabled() {
		activeConnections.Dec()
	}
}

// Count returns the number of requests currently being served.
func (ct *ConnectionTracker) Count() int64 {
	return ct.count.Load()
}

// ActiveConnections is the tracker used by the server.
var ActiveConnections = &ConnectionTracker{}

// ConnectionTrackerMiddleware counts the request for its whole lifetime.
func ConnectionTrackerMiddleware(ct *ConnectionTracker) gin.HandlerFunc {
	if ct == nil {
		ct = ActiveConnections
	}
	return func(c *gin.Context) {
		ct.begin()
		defer ct.end()
		c.Next()
	}
}

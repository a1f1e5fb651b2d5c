package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zoobzio/clockz"
	"golang.org/x/time/rate"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

// idleTimeout is how long an unused limiter is kept.
const idleTimeout = 10 * time.Minute

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	Clock             clockz.Clock
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// RateLimit creates a rate limiting middleware keyed by ingestion token.
// Requests without a token share a limiter per client IP.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep time.Time
	)
	clock := cfg.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if token := c.GetHeader(transport.TokenHeader); token != "" {
			key = "token:" + token
		}
		now := clock.Now()

		mu.Lock()
		if now.Sub(lastSweep) > idleTimeout {
			for k, cl := range clients {
				if now.Sub(cl.lastSeen) > idleTimeout {
					delete(clients, k)
				}
			}
			lastSweep = now
		}
		cl, exists := clients[key]
		if !exists {
			cl = &client{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			clients[key] = cl
		}
		cl.lastSeen = now
		allowed := cl.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

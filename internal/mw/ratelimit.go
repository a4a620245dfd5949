package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 10 * time.Minute

// ClientRateLimiter hands out one token bucket per client key. Buckets of
// idle clients expire so the table does not grow without bound.
type ClientRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
}

// NewClientRateLimiter creates a limiter allowing r requests per second with
// bursts of b for each client.
func NewClientRateLimiter(r rate.Limit, b int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: cache.New(limiterIdleTTL, 2*limiterIdleTTL),
		r:        r,
		b:        b,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *ClientRateLimiter) Allow(key string) bool {
	limiter := rate.NewLimiter(l.r, l.b)
	// Add fails when a live bucket already exists.
	if err := l.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
		if existing, ok := l.limiters.Get(key); ok {
			limiter = existing.(*rate.Limiter)
		}
	}
	// Refresh the idle timer.
	l.limiters.SetDefault(key, limiter)
	return limiter.Allow()
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewClientRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/serviciomed/serviciomed/pkg/metrics"
)

const rateLimitMessage = "Demasiadas solicitudes, intenta de nuevo en un momento"

// per-key limiter store (simple in-memory token-bucket)
type limiterStore struct {
	m sync.Map // map[string]*rate.Limiter
}

// get returns (and lazily creates) a token-bucket limiter for the given key
func (s *limiterStore) get(key string, rps float64, burst int) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
	return v.(*rate.Limiter)
}

// limitKey prefers the logged-in record number so students behind one NAT
// do not share a bucket; anonymous requests are keyed by client IP.
func limitKey(c *gin.Context) string {
	if sess := CurrentSession(c); sess != nil {
		return "rec:" + sess.RecordNumber
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func rejectRateLimited(c *gin.Context, limiter, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	metrics.RateLimitRejected.WithLabelValues(limiter).Inc()
	c.String(http.StatusTooManyRequests, rateLimitMessage)
	c.Abort()
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// rps = allowed events per second, burst = maximum tokens in bucket.
// Each call gets its own limiter set.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{}
	return func(c *gin.Context) {
		if !store.get(limitKey(c), rps, burst).Allow() {
			rejectRateLimited(c, "memory", "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}

package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	sweepEvery  = 5 * time.Minute
	visitorIdle = 10 * time.Minute
)

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// visitorLimiter keeps one token bucket per client IP.
type visitorLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
}

func newVisitorLimiter(rps, burst int) *visitorLimiter {
	return &visitorLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// allow takes a token from ip's bucket, creating the bucket on first sight.
func (l *visitorLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.seen = now
	l.mu.Unlock()
	return v.bucket.AllowN(now, 1)
}

// sweep forgets visitors idle for longer than idle and returns how many
// were dropped.
func (l *visitorLimiter) sweep(idle time.Duration, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for ip, v := range l.visitors {
		if now.Sub(v.seen) > idle {
			delete(l.visitors, ip)
			dropped++
		}
	}
	return dropped
}

// RateLimiter returns a Gin middleware enforcing a per-IP token bucket of
// rps requests per second with the given burst. Idle visitors are swept
// until ctx is cancelled.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	l := newVisitorLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.sweep(visitorIdle, now)
			}
		}
	}()

	return func(c *gin.Context) {
		if l.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	}
}

package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPLimiter is an in-process token bucket per client IP guarding the whole API.
// Buckets idle for longer than one window are evicted.
type IPLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter allows maxRequests per window for each client IP. A non-positive limit disables it.
func NewIPLimiter(maxRequests int, window time.Duration) *IPLimiter {
	if maxRequests <= 0 || window <= 0 {
		return nil
	}
	return &IPLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:    maxRequests,
		idle:     window,
		now:      time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (l *IPLimiter) WithClock(now func() time.Time) *IPLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Handler returns the middleware. A nil limiter lets every request through.
func (l *IPLimiter) Handler() gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		now := l.now()
		reservation := l.bucket(c.ClientIP(), now).ReserveN(now, 1)
		if !reservation.OK() {
			respondRateLimited(c, l.idle)
			return
		}
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			respondRateLimited(c, delay)
			return
		}
		c.Next()
	}
}

func (l *IPLimiter) bucket(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idle {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client token buckets keyed by IP.
type RateLimiter struct {
	clients map[string]*visitor
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idle    time.Duration
	logger  *zap.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*visitor),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		logger:  logger,
	}
}

func (rl *RateLimiter) getLimiter(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.clients[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Sweep drops limiters that have been idle for longer than the idle window.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, v := range rl.clients {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// Middleware returns the Gin middleware handler.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.getLimiter(ip, time.Now())

		if !limiter.Allow() {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", ip),
				zap.String("path", c.Request.URL.Path),
			)
			retry := time.Duration(float64(time.Second) / float64(rl.rps))
			c.Header("Retry-After", strconv.Itoa(max(1, int(retry.Seconds()))))
			problem := api.RateLimitError("rate limit exceeded")
			c.AbortWithStatusJSON(problem.Status, problem)
			return
		}

		c.Next()
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"egharbari/api/internal/config"
	"egharbari/api/internal/utils"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTTL         = 30 * time.Minute
)

// clientLimiter stores the rate limiter for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware keeps a token bucket per client IP.
type RateLimiterMiddleware struct {
	name    string
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
	mu      sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewRateLimiterMiddleware creates the global limiter from the RATE_LIMIT_* settings.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	return NewTokenBucketLimiter("global", rate.Limit(cfg.RateLimitRefillRate), cfg.RateLimitBucketSize)
}

// NewInquiryRateLimiter creates the stricter limiter for inquiry submissions.
func NewInquiryRateLimiter(cfg *config.Config) *RateLimiterMiddleware {
	perSecond := rate.Limit(float64(cfg.InquiryRateLimitRefillPerMinute) / 60)
	return NewTokenBucketLimiter("inquiry", perSecond, cfg.InquiryRateLimitBucketSize)
}

// NewTokenBucketLimiter creates a limiter refilling at limit tokens per second up to burst.
func NewTokenBucketLimiter(name string, limit rate.Limit, burst int) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		name:    name,
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	// Start a background goroutine to clean up old client entries
	go rm.cleanupClients()
	return rm
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rm *RateLimiterMiddleware) Stop() {
	rm.stopOnce.Do(func() { close(rm.stop) })
	<-rm.stopped
}

// getClientLimiter retrieves or creates the rate limiter for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, now time.Time) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	client, exists := rm.clients[identifier]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rm.limit, rm.burst)}
		rm.clients[identifier] = client
	}
	client.lastSeen = now
	return client.limiter
}

// sweep removes clients idle since before cutoff and returns how many were removed.
func (rm *RateLimiterMiddleware) sweep(cutoff time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// cleanupClients periodically removes old client entries from the map.
func (rm *RateLimiterMiddleware) cleanupClients() {
	defer close(rm.stopped)
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case now := <-ticker.C:
			if count := rm.sweep(now.Add(-limiterIdleTTL)); count > 0 {
				utils.Logger.Debugf("Rate limiter %s cleanup removed %d old client entries.", rm.name, count)
			}
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.ClientIP()
		if !rm.getClientLimiter(clientKey, time.Now()).Allow() {
			utils.Logger.Warnf("Rate limit %s exceeded for client %s on %s %s", rm.name, clientKey, c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}

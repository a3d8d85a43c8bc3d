package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"intake-service/internal/metrics"
)

// SubmissionRateLimitConfig holds per-IP admission limits for the intake routes
type SubmissionRateLimitConfig struct {
	PerMinute      int
	Burst          int
	RedisKeyPrefix string
}

// SubmissionRateLimiter limits form submissions per client IP.
// Redis gives a shared fixed window across replicas; without it each
// process keeps a token bucket per IP.
type SubmissionRateLimiter struct {
	config      SubmissionRateLimitConfig
	redisClient *redis.Client
	logger      *logrus.Entry
	metrics     *metrics.Metrics

	// In-memory fallback when Redis is unavailable
	local   map[string]*localLimiter
	localMu sync.Mutex
	now     func() time.Time
}

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSubmissionRateLimiter creates a limiter. redisClient may be nil.
func NewSubmissionRateLimiter(redisClient *redis.Client, config SubmissionRateLimitConfig, m *metrics.Metrics, logger *logrus.Logger) *SubmissionRateLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.PerMinute <= 0 {
		config.PerMinute = 10
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "intake:ratelimit:"
	}
	return &SubmissionRateLimiter{
		config:      config,
		redisClient: redisClient,
		logger:      logger.WithField("component", "submission_rate_limiter"),
		metrics:     m,
		local:       make(map[string]*localLimiter),
		now:         time.Now,
	}
}

// Allow reports whether ip may submit now
func (r *SubmissionRateLimiter) Allow(ctx context.Context, ip string) bool {
	if r.redisClient != nil {
		key := fmt.Sprintf("%s%s:%d", r.config.RedisKeyPrefix, ip, r.now().Unix()/60)
		pipe := r.redisClient.Pipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Minute)
		_, err := pipe.Exec(ctx)
		if err == nil {
			return incr.Val() <= int64(r.config.PerMinute)
		}
		r.logger.WithError(err).Warn("Redis increment failed, using local fallback")
	}

	r.localMu.Lock()
	defer r.localMu.Unlock()

	entry, exists := r.local[ip]
	if !exists {
		entry = &localLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.config.PerMinute)), r.config.Burst),
		}
		r.local[ip] = entry
	}
	entry.lastSeen = r.now()
	return entry.limiter.AllowN(entry.lastSeen, 1)
}

// Sweep forgets local limiters idle for longer than idle
func (r *SubmissionRateLimiter) Sweep(idle time.Duration) int {
	r.localMu.Lock()
	defer r.localMu.Unlock()

	removed := 0
	cutoff := r.now().Add(-idle)
	for ip, entry := range r.local {
		if entry.lastSeen.Before(cutoff) {
			delete(r.local, ip)
			removed++
		}
	}
	return removed
}

// Middleware rejects over-limit clients with 429
func (r *SubmissionRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !r.Allow(c.Request.Context(), ip) {
			r.metrics.RecordRateLimited(c.FullPath())
			r.logger.WithFields(logrus.Fields{
				"ip":   ip,
				"path": c.FullPath(),
			}).Warn("Rate limit exceeded")
			c.Header("Retry-After", strconv.Itoa(60))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// Package httpmiddleware holds the gin middleware shared by every route.
package httpmiddleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket is an in-memory per-key limiter refilled continuously at rate per minute.
type TokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates limiter with capacity tokens and rate per minute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow takes one token for key.
func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: float64(l.capacity - 1), last: now}
		return true, nil
	}
	b.tokens += now.Sub(b.last).Minutes() * float64(l.rate)
	if b.tokens > float64(l.capacity) {
		b.tokens = float64(l.capacity)
	}
	b.last = now
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// RedisWindow is a fixed one-minute window counter shared by every API instance.
type RedisWindow struct {
	client    *redis.Client
	prefix    string
	perMinute int
	now       func() time.Time
}

// NewRedisWindow builds a limiter allowing perMinute requests per key per minute.
func NewRedisWindow(client *redis.Client, perMinute int) *RedisWindow {
	return &RedisWindow{client: client, prefix: "attendance:ratelimit:", perMinute: perMinute, now: time.Now}
}

// Allow counts one request for key in the current minute.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := strconv.FormatInt(l.now().Unix()/60, 10)
	k := l.prefix + key + ":" + window
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, time.Minute)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.perMinute), nil
}

// RateLimit returns gin handler enforcing per-IP limits. Limiter errors let the request through.
func RateLimit(l Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ok, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "too many requests"})
			return
		}
		c.Next()
	}
}

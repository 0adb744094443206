package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces a fixed-window limit shared by every instance that
// talks to the same Redis. Each (key, window) pair is one counter that
// expires with its window. When Redis is unreachable requests are allowed
// and the failure is logged.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	keyFn  keyFunc
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per window per key. A nil keyFn
// means KeyByAdminOrIP.
func NewRedisLimiter(rdb redis.Cmdable, limit int, window time.Duration, keyFn keyFunc) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if keyFn == nil {
		keyFn = KeyByAdminOrIP()
	}
	return &RedisLimiter{
		rdb:    rdb,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
		keyFn:  keyFn,
		now:    time.Now,
	}
}

// Allow counts one hit for key and reports whether it is within the limit,
// plus the time left in the current window.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := rl.now()
	slot := now.UnixNano() / int64(rl.window)
	left := time.Duration((slot+1)*int64(rl.window) - now.UnixNano())
	rkey := rl.prefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, rkey)
		p.PExpire(ctx, rkey, rl.window)
		return nil
	})
	if err != nil {
		return true, 0, err
	}
	return incr.Val() <= rl.limit, left, nil
}

// Handler enforces the limit. Replays of stored submissions pass for free.
func (rl *RedisLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		ok, left, err := rl.Allow(c.Request.Context(), rl.keyFn(c))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable; allowing request")
		}
		if ok {
			c.Next()
			return
		}
		rateLimited(c, left)
	}
}

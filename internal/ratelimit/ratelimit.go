package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "llm_hub:ratelimit:"

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// Limiter caps chat requests per client in fixed hourly windows.
type Limiter struct {
	redis redis.Cmdable
	limit int64
}

func New(rdb redis.Cmdable, limit int64) *Limiter {
	return &Limiter{redis: rdb, limit: limit}
}

// Enabled is false for a nil limiter or a non-positive limit.
func (l *Limiter) Enabled() bool {
	return l != nil && l.redis != nil && l.limit > 0
}

func (l *Limiter) Allow(ctx context.Context, client string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	if !l.Enabled() {
		return true, 0, windowEnd, nil
	}
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := keyPrefix + client + ":" + windowStart.Format("2006010215")
	res, err := incrWithTTLScript.Run(ctx, l.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= l.limit, res, windowEnd, nil
}

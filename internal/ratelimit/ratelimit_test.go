package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := New(rdb, 2)
	now := time.Date(2026, 2, 13, 10, 15, 0, 0, time.UTC)
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		allowed, used, resetAt, err := rl.Allow(ctx, "10.0.0.1", now)
		if err != nil {
			t.Fatalf("allow#%d: %v", i+1, err)
		}
		if allowed != want || used != int64(i+1) {
			t.Fatalf("allow#%d: allowed=%v used=%d", i+1, allowed, used)
		}
		if !resetAt.Equal(time.Date(2026, 2, 13, 11, 0, 0, 0, time.UTC)) {
			t.Fatalf("reset at %v", resetAt)
		}
	}

	allowed, _, _, err := rl.Allow(ctx, "10.0.0.2", now)
	if err != nil || !allowed {
		t.Fatalf("other client should have its own window: allowed=%v err=%v", allowed, err)
	}

	allowed, used, _, err := rl.Allow(ctx, "10.0.0.1", now.Add(time.Hour))
	if err != nil || !allowed || used != 1 {
		t.Fatalf("next window should reset: allowed=%v used=%d err=%v", allowed, used, err)
	}

	ttl := mr.TTL(keyPrefix + "10.0.0.1:2026021310")
	if ttl != 45*time.Minute {
		t.Fatalf("window ttl = %v, want 45m", ttl)
	}
}

func TestDisabledLimiter(t *testing.T) {
	var nilLimiter *Limiter
	allowed, _, _, err := nilLimiter.Allow(context.Background(), "x", time.Now())
	if err != nil || !allowed {
		t.Fatalf("nil limiter must allow: %v %v", allowed, err)
	}
	allowed, _, _, err = New(nil, 0).Allow(context.Background(), "x", time.Now())
	if err != nil || !allowed {
		t.Fatalf("zero limit must allow: %v %v", allowed, err)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"llmhub/internal/domain"
)

const KeyPrefix = "llm_hub:session:"

// RedisStore keeps each session as one value whose TTL tracks expires_at.
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	codec  Codec
	logger zerolog.Logger
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, codec Codec, logger zerolog.Logger) *RedisStore {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		codec:  codec,
		logger: logger.With().Str("component", "redis_store").Logger(),
		now:    time.Now,
	}
}

var _ Store = (*RedisStore)(nil)

func (r *RedisStore) Name() string { return "redis" }

func key(id string) string { return KeyPrefix + id }

func (r *RedisStore) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	ttl := r.ttl
	if s.ExpiresAt != nil {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl < time.Second {
			ttl = time.Second
		}
	} else {
		exp := r.now().UTC().Add(r.ttl)
		s.ExpiresAt = &exp
	}

	payload, err := r.codec.Encode(s)
	if err != nil {
		return nil, err
	}
	if err := r.rdb.Set(ctx, key(s.ID), payload, ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set session: %w", err)
	}
	r.logger.Debug().Str("session_id", s.ID).Dur("ttl", ttl).Msg("session created")
	return s.Clone(), nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	s, err := r.codec.Decode(id, raw)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(r.now()) {
		s.Status = domain.SessionExpired
	}
	return s, nil
}

// Update rewrites the payload and keeps the key's remaining TTL.
func (r *RedisStore) Update(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	s.UpdatedAt = r.now().UTC()
	k := key(s.ID)

	ttl, err := r.rdb.TTL(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ttl session: %w", err)
	}
	if ttl == -2*time.Nanosecond {
		return nil, ErrNotFound
	}
	if ttl <= 0 {
		ttl = r.ttl
	}

	payload, err := r.codec.Encode(s)
	if err != nil {
		return nil, err
	}
	if err := r.rdb.Set(ctx, k, payload, ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set session: %w", err)
	}
	return s.Clone(), nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Del(ctx, key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := r.rdb.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan sessions: %w", err)
	}
	return n, nil
}

// List scans every session key, so it is meant for admin views, not hot paths.
func (r *RedisStore) List(ctx context.Context, limit, offset int) ([]*domain.Session, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return []*domain.Session{}, nil
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget sessions: %w", err)
	}
	out := make([]*domain.Session, 0, len(vals))
	now := r.now()
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		id := strings.TrimPrefix(keys[i], KeyPrefix)
		s, err := r.codec.Decode(id, []byte(str))
		if err != nil {
			r.logger.Warn().Err(err).Str("session_id", id).Msg("skipping undecodable session")
			continue
		}
		if s.IsExpired(now) {
			s.Status = domain.SessionExpired
		}
		out = append(out, s)
	}
	sortNewestFirst(out)
	return page(out, limit, offset), nil
}

func (r *RedisStore) HealthCheck(ctx context.Context) domain.ComponentHealth {
	start := r.now()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return domain.Unhealthy(err)
	}
	return domain.Healthy(r.now().Sub(start))
}

// Close leaves the client open; it is owned by whoever passed it in.
func (r *RedisStore) Close() error {
	return nil
}

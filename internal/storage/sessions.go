package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"llmhub/internal/domain"
	"llmhub/internal/session"
)

var (
	_ session.Store   = (*Store)(nil)
	_ session.Sweeper = (*Store)(nil)
)

var ErrNotFound = session.ErrNotFound

func (s *Store) Name() string { return s.driver }

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func (s *Store) Create(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	if sess.ExpiresAt == nil {
		sess.SetTTL(s.ttl)
	}
	payload, err := s.codec.Encode(sess)
	if err != nil {
		return nil, err
	}
	q := s.sql.Insert("sessions").
		Columns("id", "provider", "model", "status", "message_count", "payload", "created_at", "updated_at", "expires_at").
		Values(sess.ID, sess.Provider, sess.Model, string(sess.Status), len(sess.Messages), string(payload),
			millis(sess.CreatedAt), millis(sess.UpdatedAt), nullMillis(sess.ExpiresAt))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build create session query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	query, args, err := s.sql.Select("payload").From("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get session query: %w", err)
	}
	var payload string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess, err := s.codec.Decode(id, []byte(payload))
	if err != nil {
		return nil, err
	}
	if sess.IsExpired(s.now()) {
		sess.Status = domain.SessionExpired
	}
	return sess, nil
}

func (s *Store) Update(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	sess.UpdatedAt = s.now().UTC()
	payload, err := s.codec.Encode(sess)
	if err != nil {
		return nil, err
	}
	q := s.sql.Update("sessions").
		Set("model", sess.Model).
		Set("status", string(sess.Status)).
		Set("message_count", len(sess.Messages)).
		Set("payload", string(payload)).
		Set("updated_at", millis(sess.UpdatedAt)).
		Set("expires_at", nullMillis(sess.ExpiresAt)).
		Where(sq.Eq{"id": sess.ID})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update session query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update session rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	sqlStr, args, err := s.sql.Delete("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete session query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	query, args, err := s.sql.Select("1").From("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists session query: %w", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists session: %w", err)
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]*domain.Session, error) {
	if limit <= 0 {
		return []*domain.Session{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	query, args, err := s.sql.Select("id", "payload").
		From("sessions").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []*domain.Session{}
	now := s.now()
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := s.codec.Decode(id, []byte(payload))
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("skipping undecodable session")
			continue
		}
		if sess.IsExpired(now) {
			sess.Status = domain.SessionExpired
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := s.sql.Select("COUNT(*)").From("sessions").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count sessions query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	sqlStr, args, err := s.sql.Delete("sessions").
		Where(sq.And{sq.NotEq{"expires_at": nil}, sq.Lt{"expires_at": millis(s.now())}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) HealthCheck(ctx context.Context) domain.ComponentHealth {
	start := s.now()
	if err := s.db.PingContext(ctx); err != nil {
		return domain.Unhealthy(err)
	}
	return domain.Healthy(s.now().Sub(start))
}

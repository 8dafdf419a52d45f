package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"llmhub/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

// Store is the SQL session backend for Postgres (pgx) and SQLite (modernc).
type Store struct {
	db     *sql.DB
	driver string
	sql    sq.StatementBuilderType
	codec  session.Codec
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

type Options struct {
	Driver      string
	DSN         string
	AutoMigrate bool
	TTL         time.Duration
	Codec       session.Codec
	Logger      zerolog.Logger
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := normalizeDriver(opts.Driver)
	if opts.DSN == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	sqlDriver, dialect := driver, driver
	switch driver {
	case "postgres":
		sqlDriver = "pgx"
	case "sqlite":
		dialect = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	db, err := sql.Open(sqlDriver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == "sqlite" {
		// one writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if opts.AutoMigrate {
		if err := migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == "postgres" {
		placeholder = sq.Dollar
	}
	codec := opts.Codec
	if codec == nil {
		codec = session.JSONCodec{}
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Store{
		db:     db,
		ttl:    ttl,
		driver: driver,
		sql:    sq.StatementBuilder.PlaceholderFormat(placeholder),
		codec:  codec,
		logger: opts.Logger.With().Str("component", "sql_store").Str("driver", driver).Logger(),
		now:    time.Now,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func normalizeDriver(driver string) string {
	d := strings.ToLower(strings.TrimSpace(driver))
	switch d {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return d
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/crypto"
	"llmhub/internal/domain"
	"llmhub/internal/session"
	"llmhub/internal/session/sessiontest"
)

func openSQLite(t *testing.T, codec session.Codec) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "hub.db")
	store, err := Open(context.Background(), Options{
		Driver:      "sqlite3",
		DSN:         dsn,
		AutoMigrate: true,
		Codec:       codec,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	sessiontest.RunContract(t, openSQLite(t, nil))
}

func TestSQLiteStoreSealedPayload(t *testing.T) {
	sealer, err := crypto.NewSealer("k1", map[string][]byte{"k1": make([]byte, 32)})
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	store := openSQLite(t, session.NewCodec(sealer))
	sessiontest.RunContract(t, store)

	var payload string
	if err := store.DB().QueryRow("SELECT payload FROM sessions LIMIT 1").Scan(&payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !crypto.IsSealed([]byte(payload)) {
		t.Fatalf("payload stored in plaintext: %s", payload)
	}
}

func TestSQLiteCleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	short := domain.NewSession("claude", "m", now)
	short.SetTTL(time.Minute)
	long := domain.NewSession("claude", "m", now)
	long.SetTTL(time.Hour)
	for _, s := range []*domain.Session{short, long} {
		if _, err := store.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	now = now.Add(10 * time.Minute)
	got, err := store.Get(ctx, short.ID)
	if err != nil || got.Status != domain.SessionExpired {
		t.Fatalf("expected expired status, got %+v %v", got, err)
	}

	n, err := store.CleanupExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if ok, _ := store.Exists(ctx, long.ID); !ok {
		t.Fatalf("live session must survive the sweep")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "hub.db")
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), Options{Driver: "sqlite", DSN: dsn, AutoMigrate: true, Logger: zerolog.Nop()})
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		_ = store.Close()
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/staff-portal/internal/config"
	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, _, err := Initialize(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to initialize database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSessionRepository(pool)
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("SaveAndGet", func(t *testing.T) {
		err := repo.Save(ctx, database.StoredSession{
			ID:          "s1",
			IdentityKey: "ann@example.com",
			Method:      database.MethodFace,
			CreatedAt:   now,
			ExpiresAt:   now.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := repo.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil || got.IdentityKey != "ann@example.com" || got.Method != database.MethodFace {
			t.Errorf("unexpected session %+v", got)
		}
	})

	t.Run("ExpiredIsHidden", func(t *testing.T) {
		err := repo.Save(ctx, database.StoredSession{
			ID:          "old",
			IdentityKey: "bob@example.com",
			Method:      database.MethodPassword,
			CreatedAt:   now.Add(-2 * time.Hour),
			ExpiresAt:   now.Add(-time.Hour),
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := repo.Get(ctx, "old")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != nil {
			t.Errorf("expected expired session to be hidden, got %+v", got)
		}
		n, err := repo.DeleteExpired(ctx)
		if err != nil {
			t.Fatalf("DeleteExpired: %v", err)
		}
		if n != 1 {
			t.Errorf("DeleteExpired removed %d, want 1", n)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "s1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		got, _ := repo.Get(ctx, "s1")
		if got != nil {
			t.Error("session still present after delete")
		}
	})
}

func TestLoginEventRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewLoginEventRepository(pool)
	dist := 0.31
	base := time.Now().UTC().Add(-time.Minute)

	events := []database.LoginEvent{
		{IdentityKey: "ann@example.com", Method: database.MethodFace, Success: true, Distance: &dist, CreatedAt: base,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
		{Method: database.MethodFace, Success: false, Reason: "not-recognized", CreatedAt: base.Add(time.Second)},
	}
	for _, e := range events {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Reason != "not-recognized" || got[0].Distance != nil {
		t.Errorf("newest event mismatch: %+v", got[0])
	}
	if got[1].Distance == nil || *got[1].Distance != dist {
		t.Errorf("distance not round-tripped: %+v", got[1])
	}
	if got[1].Browser != "Chrome" || got[1].OS != "Windows" || got[1].Device != "desktop" {
		t.Errorf("user agent not parsed: browser=%q os=%q device=%q", got[1].Browser, got[1].OS, got[1].Device)
	}
}

func TestDescriptorRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewDescriptorRepository(pool)
	hash := database.ContentHash([]byte("face image"))

	desc := make([]float32, 128)
	for i := range desc {
		desc[i] = float32(i) / 128.0
	}

	got, err := repo.Get(ctx, hash, "face-128")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatal("expected cache miss")
	}

	if err := repo.Put(ctx, database.StoredDescriptor{ContentHash: hash, Model: "face-128", Descriptor: desc}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// second put replaces
	if err := repo.Put(ctx, database.StoredDescriptor{ContentHash: hash, Model: "face-128", Descriptor: desc}); err != nil {
		t.Fatalf("Put again: %v", err)
	}

	got, err = repo.Get(ctx, hash, "face-128")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || len(got.Descriptor) != 128 || got.Descriptor[5] != desc[5] {
		t.Errorf("descriptor not round-tripped: %+v", got)
	}

	other, err := repo.Get(ctx, hash, "other-model")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if other != nil {
		t.Error("model is part of the cache key")
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_sessions.sql",
		"002_login_events.sql",
		"003_descriptor_cache.sql",
	}
	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}
	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// re-running is a no-op
	again, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no pending migrations, got %v", again)
	}
}

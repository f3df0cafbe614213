package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestFactoryMemory(t *testing.T) {
	store, err := New(Config{Driver: DriverMemory}, Dependencies{})
	if err != nil {
		t.Fatalf("New memory store: %v", err)
	}
	defer store.Close(context.Background())
}

func TestFactorySQLite(t *testing.T) {
	db := newTestSQLiteDB(t)

	store, err := New(Config{
		Driver: DriverSQLite,
		TTL:    time.Second,
	}, Dependencies{SQLiteDB: db})
	if err != nil {
		t.Fatalf("New sqlite store: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Save(context.Background(), Session{TokenID: "factory-sqlite", UserID: 1}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
}

func TestFactoryRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store, err := New(Config{
		Driver: DriverRedis,
		TTL:    time.Second,
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New redis store: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Save(context.Background(), Session{TokenID: "factory-redis", UserID: 1}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
}

func TestFactoryUnsupported(t *testing.T) {
	if _, err := New(Config{Driver: "unknown"}, Dependencies{}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

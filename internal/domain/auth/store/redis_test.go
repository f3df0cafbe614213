package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedis(Config{
		TTL: time.Second,
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	session := Session{
		TokenID: "redis-token",
		UserID:  7,
		Email:   "deck@example.com",
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.Get(ctx, session.TokenID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.TokenID != session.TokenID || got.Email != session.Email {
		t.Fatalf("unexpected session: %+v", got)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0] != session.TokenID {
		t.Fatalf("unexpected list: %v", list)
	}

	if err := store.Remove(ctx, session.TokenID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := store.Get(ctx, session.TokenID); err == nil {
		t.Fatalf("expected missing session after removal")
	}
}

func TestRedisStoreExpiryRidesOnKeyTTL(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedis(Config{
		TTL: time.Second,
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	if err := store.Save(ctx, Session{TokenID: "ttl-token", UserID: 7}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := store.Get(ctx, "ttl-token"); err == nil {
		t.Fatalf("expected key to expire with the TTL")
	}
}

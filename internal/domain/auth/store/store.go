// Package store persists issued login sessions. A session row exists for
// every live token; removing it revokes the token ahead of its JWT expiry.
package store

import (
	"context"
	"time"
)

// Session is the server-side record for one issued token.
type Session struct {
	TokenID   string     `json:"token_id"`
	UserID    uint       `json:"user_id"`
	Email     string     `json:"email"`
	IP        string     `json:"ip,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store defines the behaviour required by the auth manager.
type Store interface {
	Save(ctx context.Context, session Session) error
	Get(ctx context.Context, tokenID string) (Session, error)
	Remove(ctx context.Context, tokenID string) error
	List(ctx context.Context) ([]string, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
	SQLite *SQLiteConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

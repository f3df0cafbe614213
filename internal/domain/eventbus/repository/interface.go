package repository

import (
	"context"
	"time"
)

// EventRepository is the persistence contract for the audit trail.
type EventRepository interface {
	// Store writes one event row.
	Store(ctx context.Context, event Event) error

	// FindBySessionID returns the events of one session, oldest first.
	FindBySessionID(ctx context.Context, sessionID string) ([]Event, error)

	// FindByEventType returns recent events of one type, newest first.
	FindByEventType(ctx context.Context, eventType string, limit int) ([]Event, error)

	// FindByTimeRange returns events inside [startTime, endTime].
	FindByTimeRange(ctx context.Context, startTime, endTime time.Time) ([]Event, error)

	// FindByUserID returns all events attributed to one user.
	FindByUserID(ctx context.Context, userID string) ([]Event, error)

	// DeleteOldEvents prunes events created before the cutoff.
	DeleteOldEvents(ctx context.Context, beforeTime time.Time) error

	// GetEventStats counts stored events per type.
	GetEventStats(ctx context.Context) (map[string]int64, error)
}

// Event is one audited bus event.
type Event struct {
	ID        string      `json:"id"`
	EventType string      `json:"event_type"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

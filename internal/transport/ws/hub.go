package ws

import (
	"sort"
	"sync"
	"time"

	"command-deck-server-go/internal/platform/logging"
)

// SessionInfo is the dashboard-facing view of one live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Email     string    `json:"email"`
	StartedAt time.Time `json:"started_at"`
}

// Hub tracks the active websocket sessions for a transport instance.
type Hub struct {
	logger   *logging.Logger
	sessions sync.Map // map[string]*Session
}

// NewHub builds a fresh session hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// Register adds a new session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// CloseAll terminates all active sessions and waits for their shutdown.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// Count exposes the number of active websocket sessions.
func (h *Hub) Count() int {
	count := 0
	h.sessions.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// Snapshot lists the live sessions ordered oldest-first for the dashboard.
func (h *Hub) Snapshot() []SessionInfo {
	infos := make([]SessionInfo, 0)
	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok {
			return true
		}
		identity := session.Identity()
		infos = append(infos, SessionInfo{
			ID:        session.ID(),
			UserID:    identity.UserID,
			Email:     identity.Email,
			StartedAt: session.StartedAt(),
		})
		return true
	})

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

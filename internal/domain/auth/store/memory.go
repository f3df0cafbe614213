package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	items       map[string]Session
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory session store.
func NewMemory(cfg Config) Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]Session),
		ttl:         ttl,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Save(_ context.Context, session Session) error {
	if session.TokenID == "" {
		return fmt.Errorf("token id required")
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt == nil && s.ttl > 0 {
		exp := now.Add(s.ttl)
		session.ExpiresAt = &exp
	}

	s.mutex.Lock()
	s.items[session.TokenID] = session
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, tokenID string) (Session, error) {
	s.mutex.RLock()
	session, ok := s.items[tokenID]
	s.mutex.RUnlock()
	if !ok {
		return Session{}, fmt.Errorf("session not found: %s", tokenID)
	}
	if session.ExpiresAt != nil && time.Now().After(*session.ExpiresAt) {
		return Session{}, fmt.Errorf("session expired: %s", tokenID)
	}
	return session, nil
}

func (s *memoryStore) Remove(_ context.Context, tokenID string) error {
	s.mutex.Lock()
	delete(s.items, tokenID)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]string, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id, item := range s.items {
		if item.ExpiresAt == nil || now.Before(*item.ExpiresAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for id, item := range s.items {
		if item.ExpiresAt != nil && now.After(*item.ExpiresAt) {
			delete(s.items, id)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := len(s.items)
	active := 0
	for _, session := range s.items {
		if session.ExpiresAt == nil || now.Before(*session.ExpiresAt) {
			active++
		}
	}
	return map[string]any{
		"type":        "memory",
		"total":       total,
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

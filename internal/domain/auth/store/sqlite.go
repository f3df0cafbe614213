package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"command-deck-server-go/internal/models"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a SQLite-backed session store on the shared database.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		ttl: cfg.TTL,
	}, nil
}

func (s *sqliteStore) Save(ctx context.Context, session Session) error {
	if session.TokenID == "" {
		return fmt.Errorf("token id required")
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt == nil && s.ttl > 0 {
		exp := session.CreatedAt.Add(s.ttl)
		session.ExpiresAt = &exp
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_id = ?", session.TokenID).Delete(&models.AuthSession{}).Error; err != nil {
			return err
		}
		record := &models.AuthSession{
			TokenID:   session.TokenID,
			UserID:    session.UserID,
			Email:     session.Email,
			IP:        session.IP,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) Get(ctx context.Context, tokenID string) (Session, error) {
	session, err := s.fetch(ctx, tokenID)
	if err != nil {
		return Session{}, err
	}
	if session.ExpiresAt != nil && time.Now().After(*session.ExpiresAt) {
		return Session{}, fmt.Errorf("session expired: %s", tokenID)
	}
	return session, nil
}

func (s *sqliteStore) Remove(ctx context.Context, tokenID string) error {
	return s.db.WithContext(ctx).Where("token_id = ?", tokenID).Delete(&models.AuthSession{}).Error
}

func (s *sqliteStore) List(ctx context.Context) ([]string, error) {
	var sessions []models.AuthSession
	if err := s.db.WithContext(ctx).Select("token_id", "expires_at").Find(&sessions).Error; err != nil {
		return nil, err
	}
	now := time.Now()
	ids := make([]string, 0, len(sessions))
	for _, row := range sessions {
		if row.ExpiresAt == nil || now.Before(*row.ExpiresAt) {
			ids = append(ids, row.TokenID)
		}
	}
	return ids, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&models.AuthSession{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.AuthSession{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "sqlite",
		"total": total,
		"ttl":   int(s.ttl.Seconds()),
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func (s *sqliteStore) fetch(ctx context.Context, tokenID string) (Session, error) {
	var row models.AuthSession
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&row).Error
	if errorsIsNotFound(err) {
		return Session{}, fmt.Errorf("session not found: %s", tokenID)
	}
	if err != nil {
		return Session{}, err
	}
	return Session{
		TokenID:   row.TokenID,
		UserID:    row.UserID,
		Email:     row.Email,
		IP:        row.IP,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func errorsIsNotFound(err error) bool {
	return err != nil && errors.Is(err, gorm.ErrRecordNotFound)
}

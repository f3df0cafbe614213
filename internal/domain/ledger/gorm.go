package ledger

import (
	"context"
	"errors"
	"time"

	"command-deck-server-go/internal/models"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewGorm builds the database-backed ledger store. Counter updates are
// single UPDATE statements so concurrent sessions never read-modify-write
// through Go.
func NewGorm(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, account *models.Account) error {
	if account.LastReset.IsZero() {
		account.LastReset = startOfDay(time.Now())
	}
	return s.db.WithContext(ctx).Create(account).Error
}

func (s *gormStore) Get(ctx context.Context, userID, accountID uint) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", accountID, userID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *gormStore) List(ctx context.Context, userID uint) ([]models.Account, error) {
	if err := s.ResetDailyQuotas(ctx); err != nil {
		return nil, err
	}
	var accounts []models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *gormStore) Toggle(ctx context.Context, userID, accountID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND user_id = ?", accountID, userID).
		Update("is_active", gorm.Expr("NOT is_active"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrAccountNotFound
	}
	account, err := s.Get(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	return account.IsActive, nil
}

func (s *gormStore) Delete(ctx context.Context, userID, accountID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", accountID, userID).
		Delete(&models.Account{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *gormStore) BestAccount(ctx context.Context, userID uint) (*models.Account, error) {
	if err := s.ResetDailyQuotas(ctx); err != nil {
		return nil, err
	}
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND (daily_limit - daily_used) > 0", userID, true).
		Order("(daily_limit - daily_used) DESC, id ASC").
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *gormStore) RecordSuccess(ctx context.Context, accountID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("daily_used", gorm.Expr("daily_used + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *gormStore) RecordExhaustion(ctx context.Context, accountID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("daily_used", gorm.Expr("daily_limit"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *gormStore) AggregateStatus(ctx context.Context, userID uint) (QuotaStatus, error) {
	if err := s.ResetDailyQuotas(ctx); err != nil {
		return QuotaStatus{}, err
	}

	var row struct {
		Total      int
		Active     int
		TotalLimit int
		TotalUsed  int
	}
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active, "+
			"COALESCE(SUM(daily_limit), 0) AS total_limit, "+
			"COALESCE(SUM(daily_used), 0) AS total_used").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return QuotaStatus{}, err
	}

	status := QuotaStatus{
		TotalAccounts:   row.Total,
		ActiveAccounts:  row.Active,
		TotalDailyLimit: row.TotalLimit,
		TotalDailyUsed:  row.TotalUsed,
		TotalRemaining:  row.TotalLimit - row.TotalUsed,
	}
	best, err := s.BestAccount(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	if best != nil {
		status.BestAccountID = &best.ID
	}
	return status, nil
}

func (s *gormStore) ResetDailyQuotas(ctx context.Context) error {
	today := startOfDay(time.Now())
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("last_reset < ?", today).
		Updates(map[string]any{"daily_used": 0, "last_reset": today}).Error
}

func (s *gormStore) Close(context.Context) error {
	return nil
}

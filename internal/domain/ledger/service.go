package ledger

import (
	"context"

	"command-deck-server-go/internal/domain/eventbus"
	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/logging"
)

// Service wraps a Store with logging and event publication. Handlers and
// the rotating generation client talk to the Service, never to a driver
// directly.
type Service struct {
	store  Store
	logger *logging.Logger
}

func NewService(store Store, logger *logging.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) Create(ctx context.Context, account *models.Account) error {
	if err := s.store.Create(ctx, account); err != nil {
		return err
	}
	s.logger.InfoTag("Ledger", "account created", map[string]interface{}{
		"account_id":  account.ID,
		"user_id":     account.UserID,
		"provider":    account.Provider,
		"daily_limit": account.DailyLimit,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, userID, accountID uint) (*models.Account, error) {
	return s.store.Get(ctx, userID, accountID)
}

func (s *Service) List(ctx context.Context, userID uint) ([]models.Account, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Toggle(ctx context.Context, userID, accountID uint) (bool, error) {
	active, err := s.store.Toggle(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	s.logger.InfoTag("Ledger", "account toggled", map[string]interface{}{
		"account_id": accountID,
		"user_id":    userID,
		"is_active":  active,
	})
	return active, nil
}

func (s *Service) Delete(ctx context.Context, userID, accountID uint) error {
	if err := s.store.Delete(ctx, userID, accountID); err != nil {
		return err
	}
	s.logger.InfoTag("Ledger", "account deleted", map[string]interface{}{
		"account_id": accountID,
		"user_id":    userID,
	})
	return nil
}

func (s *Service) BestAccount(ctx context.Context, userID uint) (*models.Account, error) {
	account, err := s.store.BestAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		s.logger.DebugTag("Ledger", "best account selected", map[string]interface{}{
			"account_id": account.ID,
			"user_id":    userID,
			"remaining":  account.Remaining(),
		})
	}
	return account, nil
}

// RecordSuccess bumps the bound account's counter and publishes the
// consumption event with the post-increment remainder.
func (s *Service) RecordSuccess(ctx context.Context, userID, accountID uint) error {
	if err := s.store.RecordSuccess(ctx, accountID); err != nil {
		return err
	}
	remaining := -1
	if account, err := s.store.Get(ctx, userID, accountID); err == nil {
		remaining = account.Remaining()
	}
	eventbus.PublishAsync(eventbus.EventQuotaConsumed, eventbus.QuotaEventData{
		UserID:    userID,
		AccountID: accountID,
		Remaining: remaining,
	})
	return nil
}

// RecordExhaustion maxes the account out for the current day so selection
// skips it until the next rollover.
func (s *Service) RecordExhaustion(ctx context.Context, userID, accountID uint) error {
	if err := s.store.RecordExhaustion(ctx, accountID); err != nil {
		return err
	}
	s.logger.WarnTag("Ledger", "account exhausted for the day", map[string]interface{}{
		"account_id": accountID,
		"user_id":    userID,
	})
	eventbus.PublishAsync(eventbus.EventQuotaExhausted, eventbus.QuotaEventData{
		UserID:    userID,
		AccountID: accountID,
		Remaining: 0,
	})
	return nil
}

func (s *Service) AggregateStatus(ctx context.Context, userID uint) (QuotaStatus, error) {
	return s.store.AggregateStatus(ctx, userID)
}

func (s *Service) ResetDailyQuotas(ctx context.Context) error {
	return s.store.ResetDailyQuotas(ctx)
}

func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

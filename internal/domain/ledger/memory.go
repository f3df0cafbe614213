package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"command-deck-server-go/internal/models"
)

type memoryStore struct {
	mu    sync.Mutex
	seq   uint
	items map[uint]models.Account
}

// NewMemory builds an in-memory ledger store. Useful for tests and for
// running the server without a database.
func NewMemory() Store {
	return &memoryStore{items: make(map[uint]models.Account)}
}

func (s *memoryStore) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == 0 {
		s.seq++
		account.ID = s.seq
	} else if account.ID > s.seq {
		s.seq = account.ID
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.LastReset.IsZero() {
		account.LastReset = startOfDay(now)
	}
	s.items[account.ID] = *account
	return nil
}

func (s *memoryStore) Get(_ context.Context, userID, accountID uint) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.items[accountID]
	if !ok || account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	found := account
	return &found, nil
}

func (s *memoryStore) List(_ context.Context, userID uint) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetDueLocked(time.Now())
	accounts := make([]models.Account, 0)
	for _, account := range s.items {
		if account.UserID == userID {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *memoryStore) Toggle(_ context.Context, userID, accountID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.items[accountID]
	if !ok || account.UserID != userID {
		return false, ErrAccountNotFound
	}
	account.IsActive = !account.IsActive
	s.items[accountID] = account
	return account.IsActive, nil
}

func (s *memoryStore) Delete(_ context.Context, userID, accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.items[accountID]
	if !ok || account.UserID != userID {
		return ErrAccountNotFound
	}
	delete(s.items, accountID)
	return nil
}

func (s *memoryStore) BestAccount(_ context.Context, userID uint) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetDueLocked(time.Now())
	var best *models.Account
	for id := range s.items {
		account := s.items[id]
		if account.UserID != userID || !account.IsActive {
			continue
		}
		remaining := account.DailyLimit - account.DailyUsed
		if remaining <= 0 {
			continue
		}
		if best == nil {
			candidate := account
			best = &candidate
			continue
		}
		bestRemaining := best.DailyLimit - best.DailyUsed
		if remaining > bestRemaining || (remaining == bestRemaining && account.ID < best.ID) {
			candidate := account
			best = &candidate
		}
	}
	return best, nil
}

func (s *memoryStore) RecordSuccess(_ context.Context, accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.items[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.DailyUsed++
	s.items[accountID] = account
	return nil
}

func (s *memoryStore) RecordExhaustion(_ context.Context, accountID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.items[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.DailyUsed = account.DailyLimit
	s.items[accountID] = account
	return nil
}

func (s *memoryStore) AggregateStatus(ctx context.Context, userID uint) (QuotaStatus, error) {
	s.mu.Lock()
	s.resetDueLocked(time.Now())
	var status QuotaStatus
	for _, account := range s.items {
		if account.UserID != userID {
			continue
		}
		status.TotalAccounts++
		if account.IsActive {
			status.ActiveAccounts++
		}
		status.TotalDailyLimit += account.DailyLimit
		status.TotalDailyUsed += account.DailyUsed
	}
	status.TotalRemaining = status.TotalDailyLimit - status.TotalDailyUsed
	s.mu.Unlock()

	best, err := s.BestAccount(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	if best != nil {
		status.BestAccountID = &best.ID
	}
	return status, nil
}

func (s *memoryStore) ResetDailyQuotas(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetDueLocked(time.Now())
	return nil
}

// resetDueLocked applies the day rollover to every account whose window is
// stale. Caller holds the mutex.
func (s *memoryStore) resetDueLocked(now time.Time) {
	today := startOfDay(now)
	for id, account := range s.items {
		if rolloverDue(account.LastReset, now) {
			account.DailyUsed = 0
			account.LastReset = today
			s.items[id] = account
		}
	}
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"command-deck-server-go/internal/models"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed ledger store. Each account lives in a
// hash so RecordSuccess can use HINCRBY and stay atomic; RecordExhaustion
// reads the limit before writing, which can lose a concurrent increment,
// but the account is done for the day either way.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "ledger:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) accountKey(id uint) string {
	return fmt.Sprintf("%saccount:%d", s.prefix, id)
}

func (s *redisStore) userKey(userID uint) string {
	return fmt.Sprintf("%suser:%d", s.prefix, userID)
}

func (s *redisStore) Create(ctx context.Context, account *models.Account) error {
	if account.ID == 0 {
		id, err := s.client.Incr(ctx, s.prefix+"seq").Result()
		if err != nil {
			return err
		}
		account.ID = uint(id)
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.LastReset.IsZero() {
		account.LastReset = startOfDay(now)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.accountKey(account.ID), hashFields(account))
	pipe.SAdd(ctx, s.userKey(account.UserID), account.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, userID, accountID uint) (*models.Account, error) {
	account, err := s.fetch(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *redisStore) List(ctx context.Context, userID uint) ([]models.Account, error) {
	if err := s.ResetDailyQuotas(ctx); err != nil {
		return nil, err
	}
	ids, err := s.memberIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	accounts := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		account, err := s.fetch(ctx, id)
		if err == ErrAccountNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *redisStore) Toggle(ctx context.Context, userID, accountID uint) (bool, error) {
	account, err := s.Get(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	next := !account.IsActive
	if err := s.client.HSet(ctx, s.accountKey(accountID), "is_active", boolField(next)).Err(); err != nil {
		return false, err
	}
	return next, nil
}

func (s *redisStore) Delete(ctx context.Context, userID, accountID uint) error {
	if _, err := s.Get(ctx, userID, accountID); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.accountKey(accountID))
	pipe.SRem(ctx, s.userKey(userID), accountID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) BestAccount(ctx context.Context, userID uint) (*models.Account, error) {
	accounts, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	var best *models.Account
	for i := range accounts {
		account := &accounts[i]
		if !account.IsActive || account.DailyLimit-account.DailyUsed <= 0 {
			continue
		}
		if best == nil || account.DailyLimit-account.DailyUsed > best.DailyLimit-best.DailyUsed {
			best = account
		}
	}
	if best == nil {
		return nil, nil
	}
	found := *best
	return &found, nil
}

func (s *redisStore) RecordSuccess(ctx context.Context, accountID uint) error {
	key := s.accountKey(accountID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrAccountNotFound
	}
	return s.client.HIncrBy(ctx, key, "daily_used", 1).Err()
}

func (s *redisStore) RecordExhaustion(ctx context.Context, accountID uint) error {
	account, err := s.fetch(ctx, accountID)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.accountKey(accountID), "daily_used", account.DailyLimit).Err()
}

func (s *redisStore) AggregateStatus(ctx context.Context, userID uint) (QuotaStatus, error) {
	accounts, err := s.List(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	var status QuotaStatus
	for _, account := range accounts {
		status.TotalAccounts++
		if account.IsActive {
			status.ActiveAccounts++
		}
		status.TotalDailyLimit += account.DailyLimit
		status.TotalDailyUsed += account.DailyUsed
	}
	status.TotalRemaining = status.TotalDailyLimit - status.TotalDailyUsed

	best, err := s.BestAccount(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	if best != nil {
		status.BestAccountID = &best.ID
	}
	return status, nil
}

func (s *redisStore) ResetDailyQuotas(ctx context.Context) error {
	now := time.Now()
	today := startOfDay(now)

	var cursor uint64
	pattern := s.prefix + "account:*"
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			raw, err := s.client.HGet(ctx, key, "last_reset").Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return err
			}
			lastReset, err := time.Parse(time.RFC3339, raw)
			if err != nil || !rolloverDue(lastReset, now) {
				continue
			}
			err = s.client.HSet(ctx, key,
				"daily_used", 0,
				"last_reset", today.Format(time.RFC3339),
			).Err()
			if err != nil {
				return err
			}
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func (s *redisStore) memberIDs(ctx context.Context, userID uint) ([]uint, error) {
	members, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func (s *redisStore) fetch(ctx context.Context, accountID uint) (*models.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrAccountNotFound
	}
	return accountFromHash(fields), nil
}

func hashFields(account *models.Account) map[string]any {
	return map[string]any{
		"id":           account.ID,
		"user_id":      account.UserID,
		"name":         account.Name,
		"provider":     account.Provider,
		"api_key":      account.APIKey,
		"access_token": account.AccessToken,
		"daily_limit":  account.DailyLimit,
		"daily_used":   account.DailyUsed,
		"last_reset":   account.LastReset.Format(time.RFC3339),
		"is_active":    boolField(account.IsActive),
		"created_at":   account.CreatedAt.Format(time.RFC3339),
	}
}

func accountFromHash(fields map[string]string) *models.Account {
	account := &models.Account{
		ID:          uint(intField(fields["id"])),
		UserID:      uint(intField(fields["user_id"])),
		Name:        fields["name"],
		Provider:    fields["provider"],
		APIKey:      fields["api_key"],
		AccessToken: fields["access_token"],
		DailyLimit:  intField(fields["daily_limit"]),
		DailyUsed:   intField(fields["daily_used"]),
		IsActive:    fields["is_active"] == "1",
	}
	if t, err := time.Parse(time.RFC3339, fields["last_reset"]); err == nil {
		account.LastReset = t
	}
	if t, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		account.CreatedAt = t
	}
	return account
}

func intField(raw string) int {
	v, _ := strconv.Atoi(raw)
	return v
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

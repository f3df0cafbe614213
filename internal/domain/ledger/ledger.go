// Package ledger tracks per-account daily generation quotas and picks the
// credential a generation attempt should bind. Counters roll over once per
// calendar day; the rollover is applied lazily before any read that compares
// remaining quota.
package ledger

import (
	"context"
	"errors"
	"time"

	"command-deck-server-go/internal/models"
)

// ErrAccountNotFound is returned by owner-scoped lookups and mutations when
// no matching row exists for the requesting user.
var ErrAccountNotFound = errors.New("account not found")

// Store defines the behaviour required by account management and the
// rotating generation client.
//
// BestAccount returns (nil, nil) when the user has no active account with
// remaining quota; callers decide whether that is an error. RecordSuccess
// and RecordExhaustion address accounts by id alone because they run inside
// an attempt that already holds a bound account.
type Store interface {
	Create(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, userID, accountID uint) (*models.Account, error)
	List(ctx context.Context, userID uint) ([]models.Account, error)
	Toggle(ctx context.Context, userID, accountID uint) (bool, error)
	Delete(ctx context.Context, userID, accountID uint) error

	BestAccount(ctx context.Context, userID uint) (*models.Account, error)
	RecordSuccess(ctx context.Context, accountID uint) error
	RecordExhaustion(ctx context.Context, accountID uint) error
	AggregateStatus(ctx context.Context, userID uint) (QuotaStatus, error)
	ResetDailyQuotas(ctx context.Context) error

	Close(ctx context.Context) error
}

// QuotaStatus aggregates quota usage across every account a user owns,
// active or not. TotalRemaining is limit minus used over the whole fleet,
// not the sum of per-account remainders.
type QuotaStatus struct {
	TotalAccounts   int   `json:"total_accounts"`
	ActiveAccounts  int   `json:"active_accounts"`
	TotalDailyLimit int   `json:"total_daily_limit"`
	TotalDailyUsed  int   `json:"total_daily_used"`
	TotalRemaining  int   `json:"total_remaining"`
	BestAccountID   *uint `json:"best_account_id"`
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options for the redis driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// startOfDay truncates t to local midnight. Two timestamps belong to the
// same quota window exactly when their startOfDay values are equal.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// rolloverDue reports whether lastReset belongs to an earlier calendar day
// than now.
func rolloverDue(lastReset, now time.Time) bool {
	return startOfDay(lastReset).Before(startOfDay(now))
}

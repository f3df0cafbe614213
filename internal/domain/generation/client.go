package generation

import (
	"context"
	"fmt"
	"time"

	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/errors"
	"command-deck-server-go/internal/platform/logging"
	"command-deck-server-go/internal/platform/observability"
)

// Ledger is the slice of the quota ledger the rotating client drives.
type Ledger interface {
	BestAccount(ctx context.Context, userID uint) (*models.Account, error)
	RecordSuccess(ctx context.Context, userID, accountID uint) error
	RecordExhaustion(ctx context.Context, userID, accountID uint) error
}

const noQuotaMessage = "No AI accounts with available quota. Add more accounts or wait for quota reset."

// RotatingClient runs one logical request against the best available
// account, switching accounts when the provider reports quota limits.
// The bind budget caps how many accounts one request may consume.
type RotatingClient struct {
	backend    Backend
	ledger     Ledger
	logger     *logging.Logger
	maxRetries int
}

func NewRotatingClient(backend Backend, ledger Ledger, logger *logging.Logger, maxRetries int) *RotatingClient {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RotatingClient{
		backend:    backend,
		ledger:     ledger,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Generate runs a unary request with rotation. The returned error carries
// the taxonomy kind the caller reports to the user.
func (c *RotatingClient) Generate(ctx context.Context, userID uint, prompt string, contextItems []string) (string, error) {
	account, err := c.bind(ctx, userID)
	if err != nil {
		return "", err
	}

	for attempt := 1; ; attempt++ {
		started := time.Now()
		text, genErr := c.backend.Generate(ctx, account.Secret(), prompt, contextItems)
		if genErr == nil {
			observability.RecordLatency(ctx, "generation_latency_ms", started, map[string]string{"mode": "unary"})
			c.success(ctx, userID, account.ID)
			return text, nil
		}
		if !IsQuotaError(genErr) {
			return "", errors.Wrap(errors.KindBackend, "generate", "generation failed", genErr)
		}
		if attempt >= c.maxRetries {
			return "", errors.Wrap(errors.KindQuotaExceeded, "generate", "retry budget exhausted", genErr)
		}
		account, err = c.rotate(ctx, userID, account)
		if err != nil {
			return "", err
		}
	}
}

// Stream runs a streaming request with rotation. Fragments already
// relayed before a mid-stream quota error stay with the caller; the next
// attempt streams from the top on a fresh account. A nil error means the
// channel is live; terminal failures arrive as the final chunk.
func (c *RotatingClient) Stream(ctx context.Context, userID uint, prompt string, contextItems []string) (<-chan StreamChunk, error) {
	account, err := c.bind(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 10)
	go func() {
		defer close(out)

		for attempt := 1; ; attempt++ {
			started := time.Now()
			outcome, failure := c.streamAttempt(ctx, account, prompt, contextItems, out)
			switch outcome {
			case attemptDone:
				observability.RecordLatency(ctx, "generation_latency_ms", started, map[string]string{"mode": "stream"})
				c.success(ctx, userID, account.ID)
				return
			case attemptCancelled:
				return
			case attemptQuota:
				if attempt >= c.maxRetries {
					out <- StreamChunk{Err: errors.Wrap(errors.KindQuotaExceeded, "stream", "retry budget exhausted", failure)}
					return
				}
				next, rotateErr := c.rotate(ctx, userID, account)
				if rotateErr != nil {
					out <- StreamChunk{Err: rotateErr}
					return
				}
				account = next
			default:
				out <- StreamChunk{Err: errors.Wrap(errors.KindBackend, "stream", "generation failed", failure)}
				return
			}
		}
	}()

	return out, nil
}

type attemptOutcome int

const (
	attemptDone attemptOutcome = iota
	attemptQuota
	attemptFailed
	attemptCancelled
)

// streamAttempt drives one backend stream to its end, relaying fragments
// to out, and reduces the result to an enumerated outcome so the retry
// loop stays auditable.
func (c *RotatingClient) streamAttempt(
	ctx context.Context,
	account *models.Account,
	prompt string,
	contextItems []string,
	out chan<- StreamChunk,
) (attemptOutcome, error) {
	chunks, err := c.backend.Stream(ctx, account.Secret(), prompt, contextItems)
	if err != nil {
		return classifyOutcome(err), err
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return attemptDone, nil
			}
			if chunk.Err != nil {
				return classifyOutcome(chunk.Err), chunk.Err
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return attemptCancelled, ctx.Err()
			}
		case <-ctx.Done():
			return attemptCancelled, ctx.Err()
		}
	}
}

func classifyOutcome(err error) attemptOutcome {
	if IsQuotaError(err) {
		return attemptQuota
	}
	return attemptFailed
}

// bind selects the first account of a logical request. No eligible
// account at this point means the request never had quota to spend.
func (c *RotatingClient) bind(ctx context.Context, userID uint) (*models.Account, error) {
	account, err := c.ledger.BestAccount(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "bind_account", "account selection failed", err)
	}
	if account == nil {
		return nil, errors.New(errors.KindNoQuota, "bind_account", noQuotaMessage)
	}
	if !account.Usable() {
		return nil, errors.New(errors.KindBackend, "bind_account",
			fmt.Sprintf("account %q has no API key configured", account.Name))
	}
	c.logger.DebugTag("LLM", "account bound", map[string]interface{}{
		"account_id": account.ID,
		"user_id":    userID,
		"remaining":  account.Remaining(),
	})
	return account, nil
}

// rotate retires the exhausted account and binds the next one. Running
// out of accounts mid-request is a quota outcome: the request did hit
// provider limits, so the caller sees QuotaExceeded, not NoQuotaAvailable.
func (c *RotatingClient) rotate(ctx context.Context, userID uint, exhausted *models.Account) (*models.Account, error) {
	if err := c.ledger.RecordExhaustion(context.WithoutCancel(ctx), userID, exhausted.ID); err != nil {
		c.logger.ErrorTag("LLM", "exhaustion mark failed", map[string]interface{}{
			"account_id": exhausted.ID,
			"error":      err.Error(),
		})
	}

	account, err := c.ledger.BestAccount(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "rotate_account", "account selection failed", err)
	}
	if account == nil {
		return nil, errors.New(errors.KindQuotaExceeded, "rotate_account", noQuotaMessage)
	}
	if !account.Usable() {
		return nil, errors.New(errors.KindBackend, "rotate_account",
			fmt.Sprintf("account %q has no API key configured", account.Name))
	}
	c.logger.InfoTag("LLM", "rotated to fallback account", map[string]interface{}{
		"exhausted_id": exhausted.ID,
		"account_id":   account.ID,
		"user_id":      userID,
	})
	return account, nil
}

// success records usage for the account that completed the stream. The
// write runs on an uncancellable context: a client disconnect arriving
// right after the final fragment must not void the accounting. Failures
// are logged and swallowed so a finished response is never turned into a
// user-facing error.
func (c *RotatingClient) success(ctx context.Context, userID, accountID uint) {
	if err := c.ledger.RecordSuccess(context.WithoutCancel(ctx), userID, accountID); err != nil {
		c.logger.ErrorTag("LLM", "usage increment failed", map[string]interface{}{
			"account_id": accountID,
			"user_id":    userID,
			"error":      err.Error(),
		})
	}
}

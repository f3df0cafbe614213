package eventbus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"command-deck-server-go/internal/domain/eventbus/repository"
)

const auditStoreTimeout = 5 * time.Second

// auditTopics are the bus topics persisted to the domain_events table.
// Session open/close and system info are deliberately left out; they are
// high-volume and carry no quota or failure signal.
var auditTopics = []string{
	EventQuotaConsumed,
	EventQuotaExhausted,
	EventGenerationCompleted,
	EventGenerationError,
	EventSandboxStatus,
	EventSystemError,
}

// SetupAuditTrail subscribes an async persistence handler that writes every
// audited topic through the event repository. Async subscription keeps a
// slow database from ever blocking a publisher.
func SetupAuditTrail(repo repository.EventRepository) error {
	for _, topic := range auditTopics {
		topic := topic
		err := SubscribeAsync(topic, func(args ...interface{}) {
			if len(args) == 0 {
				return
			}
			event := buildAuditEvent(topic, args[0])

			ctx, cancel := context.WithTimeout(context.Background(), auditStoreTimeout)
			defer cancel()
			// Best effort: the audit trail must never take the gateway down.
			_ = repo.Store(ctx, event)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// StartAuditRetention prunes audit rows older than retention on every tick of
// interval. It returns a stop func and never blocks the caller.
func StartAuditRetention(ctx context.Context, repo repository.EventRepository, retention, interval time.Duration) func() {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pruneCtx, cancel := context.WithTimeout(context.Background(), auditStoreTimeout)
				_ = repo.DeleteOldEvents(pruneCtx, time.Now().Add(-retention))
				cancel()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// buildAuditEvent lifts the identifying fields out of the typed payload so
// the row is queryable by session and user without unpacking Data.
func buildAuditEvent(topic string, payload interface{}) repository.Event {
	event := repository.Event{
		EventType: topic,
		Data:      payload,
		CreatedAt: time.Now(),
	}

	switch data := payload.(type) {
	case QuotaEventData:
		event.UserID = strconv.FormatUint(uint64(data.UserID), 10)
	case GenerationEventData:
		event.SessionID = data.SessionID
		event.UserID = strconv.FormatUint(uint64(data.UserID), 10)
	case SandboxEventData:
		event.UserID = strconv.FormatUint(uint64(data.UserID), 10)
	case SessionEventData:
		event.SessionID = data.SessionID
		event.UserID = strconv.FormatUint(uint64(data.UserID), 10)
	}
	return event
}

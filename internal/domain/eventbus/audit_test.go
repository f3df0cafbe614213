package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"command-deck-server-go/internal/domain/eventbus/repository"
)

type capturingRepository struct {
	mu       sync.Mutex
	events   []repository.Event
	pruned   []time.Time
	stored   chan struct{}
	prunedCh chan struct{}
}

func newCapturingRepository() *capturingRepository {
	return &capturingRepository{
		stored:   make(chan struct{}, 16),
		prunedCh: make(chan struct{}, 1),
	}
}

func (r *capturingRepository) Store(_ context.Context, event repository.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.stored <- struct{}{}
	return nil
}

func (r *capturingRepository) FindBySessionID(context.Context, string) ([]repository.Event, error) {
	return nil, nil
}

func (r *capturingRepository) FindByEventType(context.Context, string, int) ([]repository.Event, error) {
	return nil, nil
}

func (r *capturingRepository) FindByTimeRange(context.Context, time.Time, time.Time) ([]repository.Event, error) {
	return nil, nil
}

func (r *capturingRepository) FindByUserID(context.Context, string) ([]repository.Event, error) {
	return nil, nil
}

func (r *capturingRepository) DeleteOldEvents(_ context.Context, before time.Time) error {
	r.mu.Lock()
	r.pruned = append(r.pruned, before)
	r.mu.Unlock()
	select {
	case r.prunedCh <- struct{}{}:
	default:
	}
	return nil
}

func (r *capturingRepository) GetEventStats(context.Context) (map[string]int64, error) {
	return nil, nil
}

func (r *capturingRepository) waitForEvent(t *testing.T) repository.Event {
	t.Helper()
	select {
	case <-r.stored:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestAuditTrailPersistsQuotaEvents(t *testing.T) {
	repo := newCapturingRepository()
	if err := SetupAuditTrail(repo); err != nil {
		t.Fatalf("SetupAuditTrail: %v", err)
	}

	PublishAsync(EventQuotaExhausted, QuotaEventData{UserID: 42, AccountID: 7})

	event := repo.waitForEvent(t)
	if event.EventType != EventQuotaExhausted {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	if event.UserID != "42" {
		t.Fatalf("expected user id 42, got %q", event.UserID)
	}
	if event.CreatedAt.IsZero() {
		t.Fatal("expected a creation timestamp")
	}
}

func TestAuditRetentionPrunesOldRows(t *testing.T) {
	repo := newCapturingRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := StartAuditRetention(ctx, repo, 24*time.Hour, 10*time.Millisecond)
	defer stop()

	select {
	case <-repo.prunedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a retention sweep")
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.pruned) == 0 {
		t.Fatal("no prune cutoff recorded")
	}
	cutoff := repo.pruned[0]
	age := time.Since(cutoff)
	if age < 23*time.Hour || age > 25*time.Hour {
		t.Fatalf("prune cutoff %v is not about a day old", cutoff)
	}
}

func TestBuildAuditEventExtractsIdentifiers(t *testing.T) {
	cases := []struct {
		name        string
		payload     interface{}
		wantUser    string
		wantSession string
	}{
		{
			name:     "quota",
			payload:  QuotaEventData{UserID: 9, AccountID: 1},
			wantUser: "9",
		},
		{
			name:        "generation",
			payload:     GenerationEventData{TraceID: "t-1", SessionID: "s-1", UserID: 3},
			wantUser:    "3",
			wantSession: "s-1",
		},
		{
			name:     "sandbox",
			payload:  SandboxEventData{SandboxID: 4, UserID: 5, Status: "connected"},
			wantUser: "5",
		},
		{
			name:    "system errors carry no identity",
			payload: SystemEventData{Level: "error", Message: "boom"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := buildAuditEvent("topic", tc.payload)
			if event.UserID != tc.wantUser {
				t.Fatalf("user id: got %q want %q", event.UserID, tc.wantUser)
			}
			if event.SessionID != tc.wantSession {
				t.Fatalf("session id: got %q want %q", event.SessionID, tc.wantSession)
			}
			if event.EventType != "topic" {
				t.Fatalf("event type: got %q", event.EventType)
			}
		})
	}
}

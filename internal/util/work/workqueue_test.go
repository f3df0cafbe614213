package work

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder collects handled items and optionally blocks the single worker
// until released, so submission order can be controlled in tests.
type recorder struct {
	mu      sync.Mutex
	handled []string
	gate    chan struct{}
}

func (r *recorder) handle(item string) error {
	if r.gate != nil && item == "plug" {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, item)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.handled))
	copy(out, r.handled)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestHigherPriorityRunsFirst(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	queue := NewQueue[string](1, rec.handle)
	defer queue.Stop()

	// The plug occupies the only worker while the real items queue up.
	if err := queue.Submit("plug", 100); err != nil {
		t.Fatalf("submit plug: %v", err)
	}
	waitFor(t, func() bool { return queue.Size() == 0 })

	if err := queue.Submit("background", 0); err != nil {
		t.Fatalf("submit background: %v", err)
	}
	if err := queue.Submit("urgent", 10); err != nil {
		t.Fatalf("submit urgent: %v", err)
	}
	close(rec.gate)

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	got := rec.snapshot()
	want := []string{"plug", "urgent", "background"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	queue := NewQueue[int](1, func(item int) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	queue.backoff = time.Millisecond
	defer queue.Stop()

	if err := queue.SubmitWithRetries(1, 0, 5); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	})
}

func TestDropsItemAfterRetryBudget(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	queue := NewQueue[int](1, func(item int) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("permanent")
	})
	queue.backoff = time.Millisecond
	defer queue.Stop()

	if err := queue.SubmitWithRetries(1, 0, 1); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// One initial attempt plus one retry, then the item is dropped.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := attempts
	mu.Unlock()
	if final != 2 {
		t.Fatalf("expected 2 attempts total, got %d", final)
	}
}

func TestStopRejectsNewWork(t *testing.T) {
	queue := NewQueue[int](2, func(item int) error { return nil })
	queue.Stop()

	if err := queue.Submit(1, 0); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	// Stop must be idempotent.
	queue.Stop()
}

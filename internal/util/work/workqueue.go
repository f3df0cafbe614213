package work

import (
	"errors"
	"sync"
	"time"

	"command-deck-server-go/internal/util"
)

var (
	ErrQueueClosed = errors.New("work queue closed")
)

// Handler processes one queued item. A non-nil error triggers a retry
// until the item's budget runs out.
type Handler[T any] func(item T) error

// Item carries one unit of work plus its retry accounting.
type Item[T any] struct {
	Data       T
	Priority   int
	Retries    int
	MaxRetries int
	LastError  error
	CreatedAt  time.Time
}

// Queue fans queued items out over a fixed set of workers. Higher priority
// items are handled first; failed items back off linearly and are dropped
// once their retry budget is spent.
type Queue[T any] struct {
	queue   *util.PriorityQueue[*Item[T]]
	handler Handler[T]
	wake    chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	backoff time.Duration

	mu      sync.Mutex
	stopped bool
}

// idlePoll bounds how long an idle worker sleeps before rechecking, in
// case a wake signal was coalesced away.
const idlePoll = time.Second

// NewQueue builds the queue and starts its workers.
func NewQueue[T any](workers int, handler Handler[T]) *Queue[T] {
	if workers <= 0 {
		workers = 1
	}

	q := &Queue[T]{
		queue:   util.NewPriorityQueue[*Item[T]](),
		handler: handler,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		backoff: time.Second,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues an item that will not be retried on failure.
func (q *Queue[T]) Submit(data T, priority int) error {
	return q.SubmitWithRetries(data, priority, 0)
}

// SubmitWithRetries enqueues an item with a retry budget.
func (q *Queue[T]) SubmitWithRetries(data T, priority, maxRetries int) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	err := q.queue.PushItem(&Item[T]{
		Data:       data,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}, priority)
	if err != nil {
		return ErrQueueClosed
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Size reports how many items are waiting (not counting in-flight work).
func (q *Queue[T]) Size() int {
	return q.queue.Size()
}

// Stop drains nothing: queued items are discarded, in-flight handlers run
// to completion, and all workers exit before Stop returns.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stop)
	q.queue.Close()
	q.wg.Wait()
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()

	for {
		item, err := q.queue.TryPop()
		if err == nil {
			q.process(item)
			continue
		}
		if errors.Is(err, util.ErrPriorityQueueClosed) {
			return
		}

		select {
		case <-q.stop:
			return
		case <-q.wake:
		case <-time.After(idlePoll):
		}
	}
}

// process runs one item through the handler, retrying in place until it
// succeeds or its budget is exhausted.
func (q *Queue[T]) process(item *Item[T]) {
	for {
		err := q.handler(item.Data)
		if err == nil {
			return
		}

		item.LastError = err
		item.Retries++
		if item.Retries > item.MaxRetries {
			return
		}

		backoff := time.Duration(item.Retries) * q.backoff
		if backoff > time.Minute {
			backoff = time.Minute
		}

		select {
		case <-time.After(backoff):
		case <-q.stop:
			return
		}
	}
}

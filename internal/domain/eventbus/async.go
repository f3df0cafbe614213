package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

const (
	defaultWorkerNum = 10
	queueCapacity    = 1000
	waitAsyncTimeout = 2 * time.Second
)

// AsyncEventBus fans published events out to a bounded worker pool so slow
// subscribers cannot stall the publisher. When the queue is full new events
// are dropped and counted rather than blocking the hot path.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup

	pending atomic.Int64
	dropped atomic.Int64
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

func NewAsyncEventBus(workerNum int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueCapacity),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop signals the workers and waits for them to exit.
func (aeb *AsyncEventBus) Stop() {
	close(aeb.stopChan)
	aeb.wg.Wait()
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		}
	}
}

// dispatch delivers one event to its subscribers, surviving their panics.
func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Add(-1)
	defer func() {
		recover()
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event; when the queue is full the event is dropped.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		aeb.pending.Add(-1)
		aeb.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) SubscribeAsync(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// WaitAsync blocks until every queued event has been dispatched, bounded by
// a short deadline. Test helper only.
func (aeb *AsyncEventBus) WaitAsync() {
	deadline := time.Now().Add(waitAsyncTimeout)
	for time.Now().Before(deadline) {
		if aeb.pending.Load() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

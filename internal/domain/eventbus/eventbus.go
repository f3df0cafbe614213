// Package eventbus carries the gateway's domain events. Hot paths publish
// through the async worker pool so a slow subscriber never blocks a session.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

var (
	instance evbus.Bus
	asyncBus *AsyncEventBus
	once     sync.Once
)

func ensure() {
	once.Do(func() {
		instance = New()
		asyncBus = NewAsyncEventBus(defaultWorkerNum)
		asyncBus.Start()
	})
}

// Get returns the process-wide synchronous bus.
func Get() evbus.Bus {
	ensure()
	return instance
}

// GetAsync returns the process-wide asynchronous bus.
func GetAsync() *AsyncEventBus {
	ensure()
	return asyncBus
}

// New creates a fresh synchronous bus, mainly for tests.
func New() evbus.Bus {
	return evbus.New()
}

// Publish delivers an event synchronously to all subscribers.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// PublishAsync queues an event for delivery by the worker pool.
func PublishAsync(topic string, args ...interface{}) {
	GetAsync().PublishAsync(topic, args...)
}

// Subscribe registers a synchronous handler.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync registers a handler on the asynchronous bus.
func SubscribeAsync(topic string, fn interface{}) error {
	return GetAsync().SubscribeAsync(topic, fn)
}

// Shutdown drains and stops the asynchronous workers.
func Shutdown() {
	if asyncBus != nil {
		asyncBus.Stop()
	}
}

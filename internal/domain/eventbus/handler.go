package eventbus

import (
	"fmt"
	"log"
)

// EventHandler consumes typed bus events.
type EventHandler interface {
	Handle(eventType string, data interface{})
}

// DefaultEventHandler logs interesting events to stdout. Bootstrap installs
// it so the gateway reports quota movement even with no other subscribers.
type DefaultEventHandler struct{}

func NewDefaultEventHandler() *DefaultEventHandler {
	return &DefaultEventHandler{}
}

func (h *DefaultEventHandler) Handle(eventType string, data interface{}) {
	switch eventType {
	case EventQuotaConsumed:
		h.handleQuotaConsumed(data.(QuotaEventData))
	case EventQuotaExhausted:
		h.handleQuotaExhausted(data.(QuotaEventData))
	case EventGenerationCompleted:
		h.handleGenerationCompleted(data.(GenerationEventData))
	case EventGenerationError:
		h.handleGenerationError(data.(GenerationEventData))
	case EventSandboxStatus:
		h.handleSandboxStatus(data.(SandboxEventData))
	case EventSystemError:
		h.handleError(data.(SystemEventData))
	default:
		log.Printf("unhandled event type: %s", eventType)
	}
}

func (h *DefaultEventHandler) handleQuotaConsumed(data QuotaEventData) {
	fmt.Printf("[Events] quota consumed: user=%d account=%d remaining=%d\n",
		data.UserID, data.AccountID, data.Remaining)
}

func (h *DefaultEventHandler) handleQuotaExhausted(data QuotaEventData) {
	fmt.Printf("[Events] quota exhausted: user=%d account=%d\n",
		data.UserID, data.AccountID)
}

func (h *DefaultEventHandler) handleGenerationCompleted(data GenerationEventData) {
	fmt.Printf("[Events] generation completed: trace=%s account=%d attempts=%d chars=%d\n",
		data.TraceID, data.AccountID, data.Attempts, data.Chars)
}

func (h *DefaultEventHandler) handleGenerationError(data GenerationEventData) {
	fmt.Printf("[Events] generation error: trace=%s error=%s\n",
		data.TraceID, data.Error)
}

func (h *DefaultEventHandler) handleSandboxStatus(data SandboxEventData) {
	fmt.Printf("[Events] sandbox status: sandbox=%d status=%s latency=%dms\n",
		data.SandboxID, data.Status, data.LatencyMS)
}

func (h *DefaultEventHandler) handleError(data SystemEventData) {
	fmt.Printf("[Events] system error: level=%s message=%s\n",
		data.Level, data.Message)
}

// SetupEventHandlers subscribes the default handler to the event topics the
// gateway publishes. Domain code publishes through PublishAsync, so the
// handler lives on the asynchronous bus.
func SetupEventHandlers() {
	handler := NewDefaultEventHandler()

	for _, topic := range []string{
		EventQuotaConsumed,
		EventQuotaExhausted,
		EventGenerationCompleted,
		EventGenerationError,
		EventSandboxStatus,
		EventSystemError,
	} {
		topic := topic
		SubscribeAsync(topic, func(args ...interface{}) {
			if len(args) > 0 {
				handler.Handle(topic, args[0])
			}
		})
	}
}

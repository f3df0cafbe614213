package eventbus

// Event topics published by the gateway.
const (
	// quota ledger events
	EventQuotaConsumed  = "quota:consumed"
	EventQuotaExhausted = "quota:exhausted"

	// generation pipeline events
	EventGenerationStarted   = "generation:started"
	EventGenerationCompleted = "generation:completed"
	EventGenerationError     = "generation:error"

	// sandbox health events
	EventSandboxStatus = "sandbox:status"

	// session lifecycle events
	EventSessionOpened = "session:opened"
	EventSessionClosed = "session:closed"

	// system events
	EventSystemError = "system:error"
	EventSystemInfo  = "system:info"
)

type QuotaEventData struct {
	UserID    uint `json:"user_id"`
	AccountID uint `json:"account_id"`
	Remaining int  `json:"remaining"`
}

type GenerationEventData struct {
	TraceID   string `json:"trace_id"`
	SessionID string `json:"session_id,omitempty"`
	UserID    uint   `json:"user_id"`
	AccountID uint   `json:"account_id,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Chars     int    `json:"chars,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SandboxEventData struct {
	SandboxID uint   `json:"sandbox_id"`
	UserID    uint   `json:"user_id"`
	Status    string `json:"status"`
	LatencyMS int    `json:"latency_ms,omitempty"`
}

type SessionEventData struct {
	SessionID string `json:"session_id"`
	UserID    uint   `json:"user_id,omitempty"`
}

type SystemEventData struct {
	Level   string      `json:"level"` // error, warn, info
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Package generation produces model responses for user prompts. A Backend
// speaks to one provider transport (HTTP API or a local CLI); the
// RotatingClient composes a Backend with the quota ledger and retries
// across accounts when the provider reports quota limits.
package generation

import (
	"context"
	"strings"
)

// ContextWindow bounds how many prior interactions are prepended to a
// prompt. Older entries are dropped, newest kept.
const ContextWindow = 5

// DefaultMaxRetries is the bind budget for one logical request.
const DefaultMaxRetries = 3

// StreamChunk is one fragment of a streamed response. Exactly one of Text
// and Err is set; a chunk with Err is terminal for its stream.
type StreamChunk struct {
	Text string
	Err  error
}

// Backend is one provider transport. Implementations hold no credential
// state: the bound account's secret arrives with every call so the
// rotating client can switch accounts between attempts.
type Backend interface {
	Generate(ctx context.Context, secret, prompt string, contextItems []string) (string, error)
	Stream(ctx context.Context, secret, prompt string, contextItems []string) (<-chan StreamChunk, error)
}

// buildPrompt frames the effective prompt. Context entries are included
// verbatim, newest last, at most ContextWindow of them.
func buildPrompt(prompt string, contextItems []string) string {
	if len(contextItems) == 0 {
		return prompt
	}
	tail := contextItems
	if len(tail) > ContextWindow {
		tail = tail[len(tail)-ContextWindow:]
	}
	return "Previous context:\n" + strings.Join(tail, "\n") + "\n\nUser: " + prompt
}

// quotaMarkers are the provider-independent fingerprints of a rate or
// quota rejection. Matching is textual because the error shape differs
// between the HTTP API and the CLI transport.
var quotaMarkers = []string{"429", "quota", "rate", "resource_exhausted", "resource exhausted"}

// IsQuotaError classifies an error as a quota/rate rejection. Errors that
// do not match are treated as generic backend failures and never retried.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

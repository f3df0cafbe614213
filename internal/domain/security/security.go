// Package security screens inbound prompts before they reach the
// generation pipeline. The filter is heuristic: a small pattern list for
// prompt-injection and destructive-command attempts plus a hard length cap
// so oversized prompts never reach a CLI argv.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxPromptLength caps prompt size when no limit is configured.
const DefaultMaxPromptLength = 10000

type rule struct {
	pattern *regexp.Regexp
	name    string
}

// Patterns match against the lowercased prompt.
var riskRules = []rule{
	{regexp.MustCompile(`ignore previous instructions`), "Prompt Injection (Ignore Instructions)"},
	{regexp.MustCompile(`you are now (dan|do anything now)`), "Jailbreak Attempt (DAN Mode)"},
	{regexp.MustCompile(`system override`), "System Override Attempt"},
	{regexp.MustCompile(`delete all files`), "Malicious Intent (File Deletion)"},
	{regexp.MustCompile(`rm -rf`), "Malicious Command (rm -rf)"},
	{regexp.MustCompile(`/etc/shadow`), "Sensitive File Access"},
}

// Filter validates prompts. Safe to share across sessions.
type Filter struct {
	maxPromptLength int
	rules           []rule
}

// NewFilter builds a filter; maxPromptLength <= 0 selects the default cap.
func NewFilter(maxPromptLength int) *Filter {
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}
	return &Filter{
		maxPromptLength: maxPromptLength,
		rules:           riskRules,
	}
}

// Analyze checks a prompt and returns whether it may proceed. When the
// prompt is rejected the second return value carries the reason sent back
// to the client.
func (f *Filter) Analyze(prompt string) (bool, string) {
	lowered := strings.ToLower(prompt)
	for _, r := range f.rules {
		if r.pattern.MatchString(lowered) {
			return false, fmt.Sprintf("Blocked: %s detected.", r.name)
		}
	}

	if len(prompt) > f.maxPromptLength {
		return false, "Blocked: Prompt exceeds maximum length (10k chars)."
	}

	return true, ""
}

// SanitizeOutput post-processes model output before it is sent to clients.
// Currently a passthrough; the hook exists so redaction rules can be added
// without touching the session pipeline.
func (f *Filter) SanitizeOutput(output string) string {
	return output
}

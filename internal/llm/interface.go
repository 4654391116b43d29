// Package llm defines the LLMClient boundary (§6.1) and provides a
// deterministic mock plus a Vertex AI-backed implementation.
package llm

import (
	"context"
	"strings"
)

// Client is the external language-model collaborator every
// specialized agent and the decomposer call through. The core never
// imports a provider SDK directly; only concrete Client
// implementations under this package and its subpackages do.
type Client interface {
	// Generate returns generated text for prompt, or an error if the
	// provider failed. maxTokens of 0 leaves the provider's default in
	// place.
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// StripCodeFence removes a leading/trailing markdown code fence
// (```json ... ``` or ``` ... ```) from an LLM response, matching the
// cleanup every role shell and the decomposer perform before parsing
// JSON (§6.1).
func StripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(out, "```json"):
		out = strings.TrimPrefix(out, "```json")
	case strings.HasPrefix(out, "```"):
		out = strings.TrimPrefix(out, "```")
	}
	out = strings.TrimSpace(out)
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

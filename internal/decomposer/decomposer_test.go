package decomposer

import (
	"context"
	"testing"
)

type stubClient struct {
	response string
	err      error
}

func (s *stubClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return s.response, s.err
}

func TestLLMDecomposerParsesJSONArray(t *testing.T) {
	client := &stubClient{response: "```json\n[{\"agent\": \"backend_agent\", \"description\": \"build the login API\"}, " +
		"{\"agent\": \"frontend_agent\", \"description\": \"build the login form\"}]\n```"}
	d := NewLLMDecomposer(client)

	specs, err := d.Decompose(context.Background(), "add login")
	if err != nil {
		t.Fatalf("Decompose() error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d: %+v", len(specs), specs)
	}
	if specs[0].Role != "backend_agent" || specs[0].Description != "build the login API" {
		t.Fatalf("unexpected first spec: %+v", specs[0])
	}
}

func TestLLMDecomposerDropsIncompleteEntries(t *testing.T) {
	client := &stubClient{response: `[{"agent": "backend_agent", "description": ""}, {"agent": "", "description": "no agent"}, {"agent": "qa_agent", "description": "write tests"}]`}
	d := NewLLMDecomposer(client)

	specs, err := d.Decompose(context.Background(), "add login")
	if err != nil {
		t.Fatalf("Decompose() error: %v", err)
	}
	if len(specs) != 1 || specs[0].Role != "qa_agent" {
		t.Fatalf("expected only the qa_agent entry to survive, got %+v", specs)
	}
}

func TestLLMDecomposerRejectsMalformedJSON(t *testing.T) {
	client := &stubClient{response: "not json at all"}
	d := NewLLMDecomposer(client)

	if _, err := d.Decompose(context.Background(), "add login"); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestLLMDecomposerPropagatesClientError(t *testing.T) {
	client := &stubClient{err: context.DeadlineExceeded}
	d := NewLLMDecomposer(client)

	if _, err := d.Decompose(context.Background(), "add login"); err == nil {
		t.Fatal("expected the client's error to propagate")
	}
}

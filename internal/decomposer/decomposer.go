// Package decomposer defines the TaskDecomposer boundary (§6.3) and
// an LLM-backed implementation grounded in the orchestrator's feature
// breakdown prompt.
package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskforge/maf/internal/llm"
)

// TaskSpec is one (role, description) pair returned by a decomposition.
type TaskSpec struct {
	Role        string
	Description string
}

// Decomposer is the external collaborator that turns a feature
// description into a list of role-tagged tasks (§6.3). The core
// treats it as opaque; this package's own implementation happens to
// call an llm.Client and parse JSON, but nothing in internal/orchestrator
// depends on that.
type Decomposer interface {
	Decompose(ctx context.Context, description string) ([]TaskSpec, error)
}

// roleNames is the canonical snake_case role set the prompt instructs
// the model to use, grounded in event_driven_orchestrator_agent.py's
// _break_down_feature prompt.
var roleNames = []string{
	"frontend_agent", "backend_agent", "db_agent", "devops_agent",
	"qa_agent", "docs_agent", "security_agent", "ux_ui_agent",
}

// LLMDecomposer implements Decomposer by prompting an llm.Client for a
// JSON array of {agent, description} objects.
type LLMDecomposer struct {
	Client llm.Client
}

// NewLLMDecomposer returns a Decomposer backed by client.
func NewLLMDecomposer(client llm.Client) *LLMDecomposer {
	return &LLMDecomposer{Client: client}
}

// Decompose implements Decomposer.
func (d *LLMDecomposer) Decompose(ctx context.Context, description string) ([]TaskSpec, error) {
	prompt := buildPrompt(description)

	response, err := d.Client.Generate(ctx, prompt, 0)
	if err != nil {
		return nil, fmt.Errorf("decomposer: generate: %w", err)
	}
	if response == "" {
		return nil, fmt.Errorf("decomposer: empty response from LLM")
	}

	cleaned := llm.StripCodeFence(response)

	var raw []struct {
		Agent       string `json:"agent"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("decomposer: parse response as JSON array: %w", err)
	}

	specs := make([]TaskSpec, 0, len(raw))
	for _, r := range raw {
		if r.Agent == "" || r.Description == "" {
			continue
		}
		specs = append(specs, TaskSpec{Role: r.Agent, Description: r.Description})
	}
	return specs, nil
}

func buildPrompt(description string) string {
	var b strings.Builder
	b.WriteString("You are the Orchestrator for a web application development team.\n")
	b.WriteString("Your goal is to break down a new feature request into actionable development tasks.\n")
	fmt.Fprintf(&b, "The feature is: %q\n\n", description)
	b.WriteString("Break this down into a list of specific, detailed tasks for the following specialized agents.\n")
	b.WriteString("When specifying the 'agent' field, use ONLY these exact snake_case names:\n")
	for _, r := range roleNames {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\nFor each task, provide a concise description.\n")
	b.WriteString("Output your response as a JSON array of objects, where each object has 'agent' and 'description' keys.\n")
	b.WriteString("Do NOT include any text or formatting outside of the JSON array.\n")
	return b.String()
}

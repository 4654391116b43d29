// Package roles implements the specialized agent shells (§4.8): one
// per canonical role, each a thin ProcessTask built on the shared
// generate-then-place flow and a keyword-based subtype classifier
// grounded in this role's own event_driven_*_agent.py source.
package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskforge/maf/internal/agent"
	"github.com/taskforge/maf/internal/artifact"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/llm"
	"github.com/taskforge/maf/internal/observability"
)

// keywordRule is one (subtype, trigger words) entry in a role's
// classification table, carried as data from the matching Python
// agent's _analyze_*_context method.
type keywordRule struct {
	Type     string
	Keywords []string
}

// classify returns the Type of the first rule with a keyword
// contained in description (case-insensitive), or defaultType if none
// match. Rule order matters: it mirrors the if/elif chain it is
// grounded on.
func classify(description string, rules []keywordRule, defaultType string) string {
	lower := strings.ToLower(description)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Type
			}
		}
	}
	return defaultType
}

// base is the shared machinery every role file wires into its own
// agent.New call: a prompt-building system role plus the generate
// (llm.Client) / place (artifact.Sink) pipeline every event_driven_*
// agent's process_task follows.
type base struct {
	name string
	llm  llm.Client
	sink artifact.Sink
}

// run builds promptBody on top of systemPrompt, asks llm to generate
// content, strips any markdown code fence, and places the result via
// sink. The returned agent.Result mirrors the {status, path, action,
// message} dict every Python role agent returns from process_task.
func (b *base) run(ctx context.Context, systemPrompt, taskDescription string, strategy artifact.Strategy) (agent.Result, error) {
	prompt := fmt.Sprintf("%s\n\nTask: %s\n\nRespond with only the generated content, no explanation.", systemPrompt, taskDescription)

	text, err := b.llm.Generate(ctx, prompt, 0)
	if err != nil {
		return agent.Result{}, fmt.Errorf("%s: generate: %w", b.name, err)
	}
	content := llm.StripCodeFence(text)
	if content == "" {
		return agent.Result{}, fmt.Errorf("%s: empty generation", b.name)
	}

	res := b.sink.Place(content, strategy)
	if !res.Success {
		return agent.Result{}, fmt.Errorf("%s: place artifact: %s", b.name, res.Error)
	}

	return agent.Result{
		Status:  "success",
		Path:    res.Path,
		Action:  string(res.Action),
		Message: fmt.Sprintf("%s completed: %s", b.name, taskDescription),
	}, nil
}

// newRuntime wires a ProcessTask built from processFn into a fresh
// agent.Runtime under name, the shape every New<Role>Agent in this
// package follows.
func newRuntime(name string, bus eventbus.Bus, obs *observability.Observability, processFn agent.ProcessTask) *agent.Runtime {
	return agent.New(agent.Config{Name: name}, bus, obs, processFn)
}

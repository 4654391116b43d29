package roles

import (
	"context"
	"fmt"

	"github.com/taskforge/maf/internal/agent"
	"github.com/taskforge/maf/internal/artifact"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/llm"
	"github.com/taskforge/maf/internal/observability"
)

// FrontendAgentName is this role's canonical assigned_agent value.
const FrontendAgentName = "frontend_agent"

var frontendRules = []keywordRule{
	{Type: "component", Keywords: []string{"component", "button", "card", "modal"}},
	{Type: "page", Keywords: []string{"page", "screen", "view"}},
	{Type: "form", Keywords: []string{"form", "input", "field"}},
	{Type: "update", Keywords: []string{"update", "modify", "change", "fix"}},
}

const frontendSystemPrompt = `You are a Frontend Developer Agent on a web application team.
You write React/TypeScript components following the project's existing conventions.`

// NewFrontendAgent returns the frontend_agent runtime, grounded on
// event_driven_frontend_agent.py's process_task/_analyze_task_type.
func NewFrontendAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: FrontendAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, frontendRules, "general")
		prompt := fmt.Sprintf("%s\nTask type: %s.", frontendSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "Component.tsx",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(FrontendAgentName, bus, obs, process)
}

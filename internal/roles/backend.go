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

// BackendAgentName is this role's canonical assigned_agent value.
const BackendAgentName = "backend_agent"

var backendRules = []keywordRule{
	{Type: "api_route", Keywords: []string{"api", "endpoint", "route", "rest"}},
	{Type: "service", Keywords: []string{"service", "business logic", "handler"}},
	{Type: "middleware", Keywords: []string{"middleware", "auth", "validation"}},
	{Type: "integration", Keywords: []string{"integration", "third-party", "external"}},
	{Type: "update", Keywords: []string{"update", "modify", "change", "fix"}},
}

const backendSystemPrompt = `You are a Backend Developer Agent on a web application team.
You write server-side code (routes, services, middleware) following the project's existing conventions.`

// NewBackendAgent returns the backend_agent runtime, grounded on
// event_driven_backend_agent.py's process_task/_analyze_task_type.
func NewBackendAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: BackendAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, backendRules, "generic")
		prompt := fmt.Sprintf("%s\nTask type: %s.", backendSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "handler.go",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(BackendAgentName, bus, obs, process)
}

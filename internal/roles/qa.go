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

// QAAgentName is this role's canonical assigned_agent value.
const QAAgentName = "qa_agent"

// qaRules mirrors event_driven_qa_agent.py's
// _analyze_test_context test_type branch; "unit" is that method's
// default when neither rule matches.
var qaRules = []keywordRule{
	{Type: "integration", Keywords: []string{"integration", "api", "endpoint"}},
	{Type: "e2e", Keywords: []string{"e2e", "end-to-end", "ui test", "user flow"}},
}

const qaSystemPrompt = `You are a QA & Testing Agent on a web application team.
You write automated tests (unit, integration, or end-to-end) following the project's existing conventions.`

// NewQAAgent returns the qa_agent runtime, grounded on
// event_driven_qa_agent.py's process_task/_analyze_test_context.
func NewQAAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: QAAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, qaRules, "unit")
		prompt := fmt.Sprintf("%s\nTest type: %s.", qaSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "_test.go",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(QAAgentName, bus, obs, process)
}

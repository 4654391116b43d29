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

// SecurityAgentName is this role's canonical assigned_agent value.
const SecurityAgentName = "security_agent"

// securityRules mirrors event_driven_security_agent.py's
// _analyze_security_context type branch (focus-area detection via a
// security_patterns table is left to the LLM prompt rather than
// duplicated here).
var securityRules = []keywordRule{
	{Type: "security_audit", Keywords: []string{"audit", "review", "analyze", "check", "assess"}},
	{Type: "security_implementation", Keywords: []string{"implement", "add", "create", "secure"}},
}

const securitySystemPrompt = `You are a Security Agent on a web application team.
You perform security audits and implement security controls (authentication, authorization, input validation) following the project's existing conventions.`

// NewSecurityAgent returns the security_agent runtime, grounded on
// event_driven_security_agent.py's process_task/_analyze_security_context.
func NewSecurityAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: SecurityAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, securityRules, "general_audit")
		prompt := fmt.Sprintf("%s\nTask type: %s.", securitySystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "security-report.md",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(SecurityAgentName, bus, obs, process)
}

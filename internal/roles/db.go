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

// DBAgentName is this role's canonical assigned_agent value.
const DBAgentName = "db_agent"

var dbRules = []keywordRule{
	{Type: "migration", Keywords: []string{"migration", "migrate", "alter"}},
	{Type: "schema", Keywords: []string{"schema", "table", "design", "structure"}},
	{Type: "index", Keywords: []string{"index", "performance", "optimize"}},
	{Type: "rls", Keywords: []string{"rls", "security", "policy", "permission"}},
	{Type: "update", Keywords: []string{"update", "modify", "change"}},
}

const dbSystemPrompt = `You are a Database Architect Agent on a web application team.
You write SQL migrations, schema definitions, and row-level security policies following the project's existing conventions.`

// NewDBAgent returns the db_agent runtime, grounded on
// event_driven_db_agent.py's process_task/_analyze_task_type.
func NewDBAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: DBAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, dbRules, "generic")
		prompt := fmt.Sprintf("%s\nTask type: %s.", dbSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "migration.sql",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(DBAgentName, bus, obs, process)
}

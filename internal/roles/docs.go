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

// DocsAgentName is this role's canonical assigned_agent value.
const DocsAgentName = "docs_agent"

// docsRules mirrors event_driven_docs_agent.py's _analyze_docs_context
// type branch. That method tests compound conditions ("api" together
// with "doc"/"document") rather than a flat any(word) list; classify's
// single-keyword matching approximates it by keying on "api doc" and
// "api document" directly.
var docsRules = []keywordRule{
	{Type: "api", Keywords: []string{"api doc", "api document", "openapi", "swagger"}},
	{Type: "readme", Keywords: []string{"readme"}},
	{Type: "guide", Keywords: []string{"guide", "tutorial"}},
	{Type: "component", Keywords: []string{"component"}},
	{Type: "architecture", Keywords: []string{"architecture", "design"}},
	{Type: "code", Keywords: []string{"function", "method", "class"}},
}

const docsSystemPrompt = `You are a Documentation Agent on a web application team.
You write Markdown documentation (API references, READMEs, guides, code docstrings) following the project's existing conventions.`

// NewDocsAgent returns the docs_agent runtime, grounded on
// event_driven_docs_agent.py's process_task/_analyze_docs_context.
func NewDocsAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: DocsAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, docsRules, "general")
		prompt := fmt.Sprintf("%s\nDocumentation type: %s.", docsSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "doc.md",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(DocsAgentName, bus, obs, process)
}

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

// UXUIAgentName is this role's canonical assigned_agent value.
const UXUIAgentName = "ux_ui_agent"

// uxRules mirrors event_driven_ux_ui_agent.py's _analyze_ux_context
// type branch, in the original if/elif order: design_system and
// component_design are checked by exact phrase before the keyword
// rules below run, matching classifyUX.
var uxRules = []keywordRule{
	{Type: "color_system", Keywords: []string{"color", "palette", "theme"}},
	{Type: "typography", Keywords: []string{"typography", "font", "text"}},
	{Type: "spacing_system", Keywords: []string{"spacing", "padding", "margin"}},
	{Type: "layout_system", Keywords: []string{"layout", "grid", "responsive"}},
	{Type: "animations", Keywords: []string{"animation", "transition", "interaction"}},
	{Type: "accessibility", Keywords: []string{"accessibility", "a11y"}},
}

const uxSystemPrompt = `You are a UX/UI Agent on a web application team.
You write CSS/Tailwind design systems, component styles, and accessibility improvements following the project's existing conventions.`

// classifyUX reproduces _analyze_ux_context's full if/elif chain,
// including the two exact-phrase branches that precede the keyword
// table shared rules can't express.
func classifyUX(description string) string {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "design system"):
		return "design_system"
	case strings.Contains(lower, "component"):
		return "component_design"
	default:
		return classify(description, uxRules, "general_design")
	}
}

// NewUXUIAgent returns the ux_ui_agent runtime, grounded on
// event_driven_ux_ui_agent.py's process_task/_analyze_ux_context.
func NewUXUIAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: UXUIAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classifyUX(task.Description)
		prompt := fmt.Sprintf("%s\nDesign area: %s.", uxSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: "styles.css",
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(UXUIAgentName, bus, obs, process)
}

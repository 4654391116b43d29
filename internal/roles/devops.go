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

// DevOpsAgentName is this role's canonical assigned_agent value.
const DevOpsAgentName = "devops_agent"

// devopsRules mirrors event_driven_devops_agent.py's
// _analyze_devops_context type branch (technology/platform detection
// is left to the LLM prompt rather than duplicated here).
var devopsRules = []keywordRule{
	{Type: "containerization", Keywords: []string{"docker", "container", "dockerfile"}},
	{Type: "ci_cd", Keywords: []string{"github action", "ci/cd", "pipeline", "workflow"}},
	{Type: "orchestration", Keywords: []string{"kubernetes", "k8s", "helm"}},
	{Type: "deployment", Keywords: []string{"vercel", "netlify", "deploy"}},
	{Type: "infrastructure", Keywords: []string{"terraform", "infrastructure"}},
	{Type: "server_config", Keywords: []string{"nginx", "apache", "server"}},
	{Type: "monitoring", Keywords: []string{"monitor", "logging", "observability"}},
}

const devopsSystemPrompt = `You are a DevOps & Infrastructure Agent on a web application team.
You write Dockerfiles, CI/CD pipelines, Kubernetes manifests, and infrastructure-as-code following the project's existing conventions.`

// NewDevOpsAgent returns the devops_agent runtime, grounded on
// event_driven_devops_agent.py's process_task/_analyze_devops_context.
func NewDevOpsAgent(bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink, targetDir string) *agent.Runtime {
	b := &base{name: DevOpsAgentName, llm: client, sink: sink}

	process := func(ctx context.Context, task agent.TaskData) (agent.Result, error) {
		subtype := classify(task.Description, devopsRules, "general")
		prompt := fmt.Sprintf("%s\nTask type: %s.", devopsSystemPrompt, subtype)
		strategy := artifact.Strategy{
			Mode:      artifact.ModeCreate,
			TargetDir: targetDir,
			NamingHints: artifact.NamingHints{
				Pattern: devopsExtensionHint(subtype),
				Base:    subtype,
			},
		}
		return b.run(ctx, prompt, task.Description, strategy)
	}

	return newRuntime(DevOpsAgentName, bus, obs, process)
}

// devopsExtensionHint picks a plausible output filename pattern per
// subtype so the artifact sink derives a sensible extension.
func devopsExtensionHint(subtype string) string {
	switch subtype {
	case "containerization":
		return "Dockerfile"
	case "ci_cd":
		return "workflow.yml"
	case "orchestration":
		return "deployment.yaml"
	case "infrastructure":
		return "main.tf"
	case "server_config":
		return "nginx.conf"
	default:
		return "README.md"
	}
}

package orchestrator

// AvailableAgents is the canonical role allow-list: a decomposed task
// is only assigned if its normalized role is a member (§4.7).
var AvailableAgents = []string{
	"frontend_agent", "backend_agent", "db_agent", "devops_agent",
	"qa_agent", "docs_agent", "security_agent", "ux_ui_agent",
}

// roleAliases maps the loose role names a decomposer's LLM sometimes
// returns onto the canonical snake_case set, carried verbatim (as
// data) from event_driven_orchestrator_agent.py's
// _normalize_agent_name mapping table.
var roleAliases = map[string]string{
	"database_architect_agent":     "db_agent",
	"Database Architect Agent":     "db_agent",
	"frontend_developer_agent":     "frontend_agent",
	"Frontend Developer Agent":     "frontend_agent",
	"backend_developer_agent":      "backend_agent",
	"Backend Developer Agent":      "backend_agent",
	"qa_testing_agent":             "qa_agent",
	"QA & Testing Agent":           "qa_agent",
	"documentation_agent":          "docs_agent",
	"Documentation Agent":          "docs_agent",
	"Security Agent":               "security_agent",
	"devops_infrastructure_agent":  "devops_agent",
	"DevOps & Infrastructure Agent": "devops_agent",
}

// NormalizeRole maps role to its canonical snake_case agent name via
// roleAliases, falling through unchanged if role is already canonical
// or otherwise unrecognized.
func NormalizeRole(role string) string {
	if canonical, ok := roleAliases[role]; ok {
		return canonical
	}
	return role
}

// isAvailableAgent reports whether name is a member of AvailableAgents.
func isAvailableAgent(name string) bool {
	for _, a := range AvailableAgents {
		if a == name {
			return true
		}
	}
	return false
}

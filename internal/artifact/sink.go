// Package artifact defines the ArtifactSink boundary (§6.2) and a
// filesystem-backed implementation.
package artifact

// Mode selects how content is placed onto disk.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeModify Mode = "modify"
)

// Action reports what the sink actually did.
type Action string

const (
	ActionCreated      Action = "created"
	ActionModified     Action = "modified"
	ActionConsolidated Action = "consolidated"
)

// NamingHints carries optional guidance for deriving a filename when
// Strategy.TargetFile is empty, e.g. a naming-convention pattern
// ("camelCase.ts") surfaced by a project analyzer.
type NamingHints struct {
	Pattern string
	Base    string
}

// Strategy is the placement decision an external collaborator (the
// role shell, informed by a project analyzer not specified by this
// core) hands to Sink.Place.
type Strategy struct {
	Mode        Mode
	TargetFile  string
	TargetDir   string
	NamingHints NamingHints
}

// Result is the return shape of Sink.Place (§6.2).
type Result struct {
	Success bool
	Path    string
	Action  Action
	Error   string
}

// Sink is the external artifact-placement collaborator (§6.2). This
// core's own implementations produce only ActionCreated/ActionModified;
// the consolidation heuristics the original system uses to decide
// when two pieces of generated content should merge into one file are
// out of scope (spec §9, Open Question b) — ActionConsolidated is a
// valid value of the interface that this repo's Sink never returns.
type Sink interface {
	// Place writes content to disk per strategy and returns where it
	// landed. Place is idempotent: calling it twice with an identical
	// (content, strategy) pair returns the same Path both times and
	// leaves the workspace unchanged on the second call.
	Place(content string, strategy Strategy) Result
}

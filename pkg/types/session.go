// Package types defines the wire and storage representations shared
// across the session engine: sessions, transcript entries, queue
// items and the runner protocol frames.
package types

// Session is a durable, single-agent conversation bound to one
// environment. It is created once and mutated only by its owning
// session actor; sessions are never deleted.
type Session struct {
	ID              string      `json:"id"`
	ProviderID      string      `json:"providerID"`
	ModelID         string      `json:"modelID"`
	ReasoningEffort string      `json:"reasoningEffort,omitempty"`
	Environment     Environment `json:"environment"`
	// RunnerName binds the session to a named remote runner for tool
	// execution. Empty means tools execute in the server process
	// against Directory directly.
	RunnerName      string  `json:"runnerName,omitempty"`
	Directory       string  `json:"directory"`
	ParentSessionID *string `json:"parentSessionID,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
	HeadEntryID     int64   `json:"headEntryID"`
	TailEntryID     int64   `json:"tailEntryID"`
}

// IsLocal reports whether this session's tools execute in the server
// process rather than being dispatched to a runner link.
func (s Session) IsLocal() bool { return s.RunnerName == "" }

// Environment names either a fixed working directory or a
// folder-template to materialize under workspaces_path/<session>.
type Environment struct {
	Name          string `json:"name"`
	Type          string `json:"type"` // "local" | "folder-template"
	Path          string `json:"path,omitempty"`
	TemplatePath  string `json:"templatePath,omitempty"`
	StartupScript string `json:"startupScript,omitempty"`
}

// Status is the derived, non-stored execution state of a session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusExecuting Status = "executing"
	StatusStopped   Status = "stopped"
)

// Settings is the current provider/model/reasoning-effort selection
// for a session. Changes are journaled as session_settings entries.
type Settings struct {
	ProviderID      string `json:"providerID"`
	ModelID         string `json:"modelID"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

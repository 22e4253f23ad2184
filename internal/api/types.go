package api

// Installation identifies the Claude CLI being wrapped. It is resolved once per
// run and never mutated afterwards.
type Installation struct {
	Dir         string `json:"dir" yaml:"dir"`
	EntryName   string `json:"entry_name" yaml:"entry_name"`
	EntryPoint  string `json:"entry_point" yaml:"entry_point"`
	PatchedPath string `json:"patched_path" yaml:"patched_path"`
	Source      string `json:"source" yaml:"source"`
}

type ConsentSource string

const (
	ConsentOperator ConsentSource = "operator"
	ConsentAuto     ConsentSource = "auto"
)

type ConsentRecord struct {
	GrantedAt string        `json:"granted_at" yaml:"granted_at"`
	Source    ConsentSource `json:"source" yaml:"source"`
}

type RunMode string

const (
	ModeInteractive RunMode = "interactive"
	ModeAutorun     RunMode = "autorun"
)

// SessionReport is what the orchestrator records about its last run.
type SessionReport struct {
	SessionID           string  `json:"session_id" yaml:"session_id"`
	Mode                RunMode `json:"mode" yaml:"mode"`
	ExitCode            int     `json:"exit_code" yaml:"exit_code"`
	TerminatedByWatcher bool    `json:"terminated_by_watcher" yaml:"terminated_by_watcher"`
	StartedAt           string  `json:"started_at" yaml:"started_at"`
	FinishedAt          string  `json:"finished_at" yaml:"finished_at"`
	Error               string  `json:"error,omitempty" yaml:"error,omitempty"`
}

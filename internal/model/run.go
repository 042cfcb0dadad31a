package model

import "time"

// RunStatus is the state of an import run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunSummary holds the counts reported at the end of a run.
type RunSummary struct {
	Candidates int            `json:"candidates"`
	Clusters   int            `json:"clusters"`
	Created    int            `json:"created"`
	Extended   int            `json:"extended"`
	Unchanged  int            `json:"unchanged"`
	Closed     int            `json:"closed"`
	Migrated   int            `json:"migrated"`
	Bound      int            `json:"bound"`
	Skipped    map[string]int `json:"skipped,omitempty"`
}

// ImportRun records one execution of the resolution or customer binding
// pipeline.
type ImportRun struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
	AsOf        time.Time  `json:"as_of"`
	Period      Period     `json:"period"`
	Parcels     []string   `json:"parcels,omitempty"`
	DryRun      bool       `json:"dry_run"`
	Summary     RunSummary `json:"summary"`
	Error       string     `json:"error,omitempty"`
}

// Package store persists a local audit trail of review activity: every patch
// the reviewer issued (and whether it applied or rolled back) and every
// pipeline run watched to completion.
package store

import (
	"context"
	"time"

	"github.com/info757/estimai-cli/pkg/estimai"
)

// Outcome records how an issued patch resolved.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeRolledBack Outcome = "rolled_back"
)

// PatchRecord is one audited patch with its resolution.
type PatchRecord struct {
	Patch      estimai.Patch `json:"patch"`
	ProjectID  string        `json:"project_id"`
	Stage      estimai.Stage `json:"stage"`
	Outcome    Outcome       `json:"outcome"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// RunRecord is one audited pipeline run.
type RunRecord struct {
	JobID      string     `json:"job_id"`
	ProjectID  string     `json:"project_id"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PatchFilter narrows a patch listing.
type PatchFilter struct {
	Stage   estimai.Stage `json:"stage,omitempty"`
	RowID   string        `json:"row_id,omitempty"`
	Outcome Outcome       `json:"outcome,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// Store defines the audit persistence interface.
type Store interface {
	// Patches
	RecordPatch(ctx context.Context, projectID string, stage estimai.Stage, patch estimai.Patch, outcome Outcome) error
	ListPatches(ctx context.Context, projectID string, filter PatchFilter) ([]PatchRecord, error)

	// Pipeline runs
	RecordRun(ctx context.Context, projectID, jobID string) error
	CompleteRun(ctx context.Context, jobID string, status estimai.JobState, errMsg string) error
	ListRuns(ctx context.Context, projectID string, limit int) ([]RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

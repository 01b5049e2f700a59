// Package estimai provides a client for the EstimAI review and pipeline API.
package estimai

import "time"

// Stage identifies which review dataset a call addresses.
type Stage string

const (
	StageTakeoff  Stage = "takeoff"
	StageEstimate Stage = "estimate"
)

// Valid reports whether s is a known review stage.
func (s Stage) Valid() bool {
	return s == StageTakeoff || s == StageEstimate
}

// Fields is the field set of a single reviewable entity (quantity item or
// price line). Values are whatever the backend emitted: strings, numbers,
// booleans.
type Fields map[string]any

// Clone returns a shallow copy of f. Clone of nil is nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Row is the canonical three-way record for a reviewable entity. Baseline is
// the machine-generated value set, Override holds only the fields a human has
// explicitly changed, and Merged is the single displayed view (override over
// baseline). Override is nil until the first human edit.
type Row struct {
	ID         string   `json:"id"`
	Baseline   Fields   `json:"baseline"`
	Override   Fields   `json:"override,omitempty"`
	Merged     Fields   `json:"merged"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Patch is an append-only audit event carrying the changed field subset for
// one row. It never carries a full row.
type Patch struct {
	ID       string    `json:"id"`
	RowID    string    `json:"row_id"`
	Fields   Fields    `json:"fields"`
	Author   string    `json:"author"`
	Reason   string    `json:"reason,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// ReviewResponse is the response from GET /projects/{pid}/review/{stage}.
type ReviewResponse struct {
	ProjectID      string `json:"project_id"`
	Stage          Stage  `json:"stage"`
	Rows           []Row  `json:"rows"`
	TotalRows      int    `json:"total_rows"`
	OverriddenRows int    `json:"overridden_rows"`
}

// PatchRequest is the body for PATCH /projects/{pid}/review/{stage}.
type PatchRequest struct {
	Patches []Patch `json:"patches"`
}

// PatchResponse is the response from PATCH /projects/{pid}/review/{stage}.
type PatchResponse struct {
	OK        bool   `json:"ok"`
	Patched   int    `json:"patched"`
	ProjectID string `json:"project_id"`
	Stage     Stage  `json:"stage"`
	Message   string `json:"message,omitempty"`
}

// PipelineResponse is the response from POST /projects/{pid}/pipeline_async.
type PipelineResponse struct {
	JobID string `json:"job_id"`
}

// JobState is the lifecycle state of a pipeline job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobStatus is the response from GET /jobs/{job_id}.
type JobStatus struct {
	JobID    string         `json:"job_id"`
	Status   JobState       `json:"status"`
	Progress float64        `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

package api

import (
	"time"

	"governance-sync/internal/parser"
)

// JobResponse is returned after a sync pass has been queued.
type JobResponse struct {
	JobID string `json:"job_id"`
}

// JobStatus represents the runtime state of a queued sync pass.
type JobStatus struct {
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"` // queued | running | finished | error | cancelled
	Error      string     `json:"error,omitempty"`
	Discovered int        `json:"discovered"`
	Block      uint64     `json:"block,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// CancelRequested is set when DELETE arrives while the pass is running.
	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// StateResponse summarizes the stored checkpoint.
type StateResponse struct {
	Contract string `json:"contract"`
	Block    uint64 `json:"block"`
	Count    int    `json:"count"`
}

type ProposalsResponse struct {
	Block     uint64             `json:"block"`
	Proposals []*parser.Proposal `json:"proposals"`
}

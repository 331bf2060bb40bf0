package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	statusQueued    = "queued"
	statusRunning   = "running"
	statusFinished  = "finished"
	statusError     = "error"
	statusCancelled = "cancelled"
)

// handleSync queues a sync pass: POST only.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.pruneJobs(time.Now())
	s.jobs[jobID] = &jobEntry{
		status: &JobStatus{JobID: jobID, Status: statusQueued, StartedAt: time.Now()},
		cancel: cancel,
	}
	s.mu.Unlock()

	go s.runJob(ctx, jobID)

	writeJSON(w, http.StatusAccepted, JobResponse{JobID: jobID})
}

// handleJobByID routes GET and DELETE for specific job IDs.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	// Expected path: /jobs/{id}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" {
		http.Error(w, "job id missing", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getJob(w, id)
	case http.MethodDelete:
		s.cancelJob(w, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// runJob performs one pass once no other pass is using the store. The final
// status follows the outcome of the pass: a cancel request that arrives after
// the checkpoint was saved still reports the job as finished.
func (s *Server) runJob(ctx context.Context, jobID string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.transition(jobID, statusRunning, nil) {
		return
	}

	res, err := s.engine.Run(ctx, s.store, s.source)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		logrus.Infof("job %s cancelled: %v", jobID, err)
		s.transition(jobID, statusCancelled, nil)
	case err != nil:
		logrus.Errorf("job %s failed: %v", jobID, err)
		s.transition(jobID, statusError, func(st *JobStatus) { st.Error = err.Error() })
	default:
		s.transition(jobID, statusFinished, func(st *JobStatus) {
			st.Discovered = len(res.Discovered)
			st.Block = res.State.Block
		})
	}
}

// transition moves a job to a new status. Jobs already in a final status are
// left untouched.
func (s *Server) transition(jobID, status string, update func(*JobStatus)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[jobID]
	if !ok || isFinal(entry.status.Status) {
		return false
	}
	entry.status.Status = status
	if update != nil {
		update(entry.status)
	}
	if isFinal(status) {
		finished := time.Now()
		entry.status.FinishedAt = &finished
		entry.cancel()
	}
	return true
}

// pruneJobs drops jobs that finished more than jobTTL ago. Callers hold s.mu.
func (s *Server) pruneJobs(now time.Time) {
	for id, entry := range s.jobs {
		finished := entry.status.FinishedAt
		if finished != nil && !finished.Add(s.jobTTL).After(now) {
			delete(s.jobs, id)
		}
	}
}

func isFinal(status string) bool {
	return status == statusFinished || status == statusError || status == statusCancelled
}

// getJob handles GET /jobs/{id}
func (s *Server) getJob(w http.ResponseWriter, id string) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	var status JobStatus
	if ok {
		status = *entry.status
	}
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// cancelJob handles DELETE /jobs/{id}. A queued job is cancelled right away;
// a running job only gets its context cancelled and keeps running until the
// pass returns. Finished jobs are left as they are.
func (s *Server) cancelJob(w http.ResponseWriter, id string) {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	if ok {
		switch entry.status.Status {
		case statusQueued:
			entry.cancel()
			entry.status.Status = statusCancelled
			finished := time.Now()
			entry.status.FinishedAt = &finished
		case statusRunning:
			entry.cancel()
			entry.status.CancelRequested = true
		}
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleState handles GET /state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.store.Load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, StateResponse{
		Contract: s.engine.Address(),
		Block:    st.Block,
		Count:    len(st.Logs),
	})
}

// handleProposals handles GET /proposals
func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.store.Load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ProposalsResponse{
		Block:     st.Block,
		Proposals: s.parser.ParseAll(st.Logs),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("failed to encode response: %v", err)
	}
}

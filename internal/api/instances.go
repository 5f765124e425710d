package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/engine"
)

type runRequest struct {
	Input         map[string]any `json:"input"`
	CorrelationID string         `json:"correlationId"`
}

type resumeRequest struct {
	Activities []string       `json:"activities"`
	Input      map[string]any `json:"input"`
}

func toVariables(in map[string]any) conveyor.Variables {
	if len(in) == 0 {
		return nil
	}
	vars := make(conveyor.Variables, len(in))
	for k, v := range in {
		vars[k] = conveyor.FromAny(v)
	}
	return vars
}

// runDefinition starts a new instance of the selected version.
// POST /api/definitions/{definitionID}/run?version=latest|published|N
func (s *Server) runDefinition(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelector(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	var opts []engine.RunOption
	if req.CorrelationID != "" {
		opts = append(opts, engine.WithCorrelationID(req.CorrelationID))
	}

	inst, err := s.exec.Start(r.Context(), chi.URLParam(r, "definitionID"), sel, toVariables(req.Input), opts...)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(inst)
}

// listInstances returns all instances.
// GET /api/instances
func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := s.exec.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(insts)
}

// getInstance returns a single instance.
// GET /api/instances/{id}
func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.exec.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst)
}

// resumeInstance wakes a blocked instance at the named activities.
// POST /api/instances/{id}/resume
func (s *Server) resumeInstance(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	inst, err := s.exec.Resume(r.Context(), chi.URLParam(r, "id"), req.Activities, toVariables(req.Input))
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst)
}

// cancelInstance marks an idle instance cancelled.
// POST /api/instances/{id}/cancel
func (s *Server) cancelInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.exec.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst)
}

// getExecutionStats reports concurrency usage.
// GET /api/execution/stats
func (s *Server) getExecutionStats(w http.ResponseWriter, r *http.Request) {
	if s.limiter == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.limiter.Stats())
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// createSchedule creates a new cron schedule for a definition family.
// POST /api/schedules
func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	var sched conveyor.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if sched.DefinitionID == "" || sched.CronExpr == "" {
		http.Error(w, "definitionId and cronExpr are required", http.StatusBadRequest)
		return
	}

	if err := s.scheduler.Add(r.Context(), &sched); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sched)
}

// listSchedules returns all schedules.
// GET /api/schedules
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
		return
	}

	schedules, err := s.scheduler.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedules)
}

// getSchedule returns a single schedule.
// GET /api/schedules/{id}
func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not available", http.StatusNotFound)
		return
	}

	sched, err := s.scheduler.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "schedule not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sched)
}

// deleteSchedule removes a schedule and its cron job.
// DELETE /api/schedules/{id}
func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not available", http.StatusNotFound)
		return
	}

	if err := s.scheduler.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pauseSchedule disables a schedule without deleting it.
// POST /api/schedules/{id}/pause
func (s *Server) pauseSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not available", http.StatusNotFound)
		return
	}

	if err := s.scheduler.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resumeSchedule re-enables a paused schedule.
// POST /api/schedules/{id}/resume
func (s *Server) resumeSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not available", http.StatusNotFound)
		return
	}

	if err := s.scheduler.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// triggerSchedule fires a schedule immediately.
// POST /api/schedules/{id}/trigger
func (s *Server) triggerSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not available", http.StatusNotFound)
		return
	}

	if err := s.scheduler.TriggerNow(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

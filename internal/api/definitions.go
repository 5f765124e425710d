package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// errStatus maps domain sentinel errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, conveyor.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conveyor.ErrConflict),
		errors.Is(err, conveyor.ErrInstanceBusy),
		errors.Is(err, conveyor.ErrSingletonActive),
		errors.Is(err, conveyor.ErrDefinitionDisabled),
		errors.Is(err, conveyor.ErrInstanceFinished):
		return http.StatusConflict
	case errors.Is(err, conveyor.ErrInvalidResumeTarget),
		errors.Is(err, conveyor.ErrInvalidDefinition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseSelector reads the version query parameter: "latest" (default),
// "published", or a specific version number.
func parseSelector(r *http.Request) (conveyor.VersionSelector, error) {
	switch v := r.URL.Query().Get("version"); v {
	case "", "latest":
		return conveyor.Latest(), nil
	case "published":
		return conveyor.Published(), nil
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return conveyor.VersionSelector{}, errors.New("version must be 'latest', 'published', or a positive number")
		}
		return conveyor.Specific(n), nil
	}
}

// createDefinition saves the request body as a new draft. An empty
// body yields a blank version-1 draft.
// POST /api/definitions
func (s *Server) createDefinition(w http.ResponseWriter, r *http.Request) {
	def := s.publisher.New()
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(def); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	saved, err := s.publisher.SaveDraft(r.Context(), def)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(saved)
}

// listDefinitions returns the latest version of every family.
// GET /api/definitions
func (s *Server) listDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.defs.ListLatest(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(defs)
}

// getDefinition returns one version of a family.
// GET /api/definitions/{definitionID}?version=latest|published|N
func (s *Server) getDefinition(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelector(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	def, err := s.defs.GetByFamily(r.Context(), chi.URLParam(r, "definitionID"), sel)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(def)
}

// listDefinitionVersions returns every stored version of a family.
// GET /api/definitions/{definitionID}/versions
func (s *Server) listDefinitionVersions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.defs.ListFamily(r.Context(), chi.URLParam(r, "definitionID"))
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(defs)
}

// getDraft returns an editable draft of the family. When the latest
// version is published the returned draft is not yet persisted.
// GET /api/definitions/{definitionID}/draft
func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.publisher.GetDraft(r.Context(), chi.URLParam(r, "definitionID"))
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(draft)
}

// saveDraft persists the request body as the family's draft.
// PUT /api/definitions/{definitionID}
func (s *Server) saveDraft(w http.ResponseWriter, r *http.Request) {
	var def conveyor.WorkflowDefinitionVersion
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	def.DefinitionID = chi.URLParam(r, "definitionID")

	saved, err := s.publisher.SaveDraft(r.Context(), &def)
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(saved)
}

// publishDefinition publishes the family's latest version.
// POST /api/definitions/{definitionID}/publish
func (s *Server) publishDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.publisher.Publish(r.Context(), chi.URLParam(r, "definitionID"))
	if err != nil {
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(def)
}

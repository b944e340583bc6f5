package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mqttdesk/internal/audit"
	"github.com/nerrad567/mqttdesk/internal/profile"
)

// handleListProfiles returns all saved connection profiles.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.logger.Error("listing profiles", "error", err)
		writeInternalError(w, "failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles, "count": len(profiles)})
}

// handleGetProfile returns a single profile by ID.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	p, err := s.profiles.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCreateProfile saves a new profile. Any ID in the body is ignored.
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.ID = ""

	if err := s.profiles.Create(r.Context(), &p); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("profile created", "profile_id", p.ID, "name", p.Name)
	s.recordAudit(r, audit.ActionProfileCreated, p.ID, map[string]any{"name": p.Name, "host": p.Host, "port": p.Port})
	writeJSON(w, http.StatusCreated, p)
}

// handleUpdateProfile replaces a profile. The ID comes from the URL.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.ID = id

	if err := s.profiles.Update(r.Context(), &p); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionProfileUpdated, p.ID, map[string]any{"name": p.Name, "host": p.Host, "port": p.Port})
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProfile removes a profile.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	if err := s.profiles.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("profile deleted", "profile_id", id)
	s.recordAudit(r, audit.ActionProfileDeleted, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// profileID reads and checks the {id} URL parameter.
func profileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid profile ID")
		return "", false
	}
	return id, true
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/open-automation/relay-core/internal/automation"
)

// handleListAutomations returns the caller's automations. The first list
// for an account provisions its baseline security pair.
func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	items, err := s.automations.GetAutomationsByAccountID(r.Context(), accountID(r))
	if err != nil {
		s.logger.Error("listing automations failed", "error", err)
		writeInternalError(w, "failed to list automations")
		return
	}

	views := make([]map[string]any, 0, len(items))
	for _, a := range items {
		views = append(views, a.ClientSerialize())
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": views})
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	a, err := s.automations.GetAutomationByID(chi.URLParam(r, "id"), accountID(r))
	if err != nil {
		writeNotFound(w, "automation not found")
		return
	}
	writeJSON(w, http.StatusOK, a.ClientSerialize())
}

// automationRequest carries the client-editable automation fields.
type automationRequest struct {
	Name       string                 `json:"name"`
	Enabled    bool                   `json:"enabled"`
	Type       string                 `json:"type"`
	Conditions []automation.Condition `json:"conditions"`
}

// handleSaveAutomation creates or replaces an automation. The route may
// carry an ID (PUT) or not (POST); the account always comes from the
// session, never the body.
func (s *Server) handleSaveAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	a := automation.Automation{
		ID:         chi.URLParam(r, "id"),
		Name:       req.Name,
		Enabled:    req.Enabled,
		Type:       req.Type,
		Conditions: req.Conditions,
		Editable: automation.UserEditable{
			Name:       true,
			Conditions: true,
			Delete:     true,
		},
	}

	saved, err := s.automations.SaveAutomation(r.Context(), a, accountID(r))
	switch {
	case errors.Is(err, automation.ErrUnauthorized):
		writeForbidden(w, "automation belongs to another account")
		return
	case errors.Is(err, automation.ErrNotEditable):
		writeForbidden(w, "automation field is not editable")
		return
	case err != nil:
		s.logger.Error("saving automation failed", "error", err)
		writeInternalError(w, "failed to save automation")
		return
	}

	status := http.StatusOK
	if a.ID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved.ClientSerialize())
}

func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	err := s.automations.DeleteAutomation(r.Context(), chi.URLParam(r, "id"), accountID(r))
	switch {
	case errors.Is(err, automation.ErrNotFound):
		writeNotFound(w, "automation not found")
		return
	case errors.Is(err, automation.ErrSecurityProtected):
		writeForbidden(w, "security automations cannot be deleted")
		return
	case err != nil:
		s.logger.Error("deleting automation failed", "error", err)
		writeInternalError(w, "failed to delete automation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": chi.URLParam(r, "id")})
}

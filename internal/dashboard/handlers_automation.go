package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	writeJSON(w, http.StatusOK, s.automation.ListRules(filter))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, ok := s.automation.GetRule(id)
	if !ok {
		writeError(w, http.StatusNotFound, "get_automation", "unknown rule id", "")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule automation.Rule
	if err := readJSON(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "create_automation", err.Error(), "Rule")
		return
	}
	created, err := s.automation.RegisterRule(r.Context(), rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "create_automation", err.Error(), "Rule")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch automation.Rule
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "update_automation", err.Error(), "Rule")
		return
	}
	updated, err := s.automation.UpdateRule(r.Context(), id, patch)
	if err != nil {
		writeError(w, http.StatusNotFound, "update_automation", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.automation.RemoveRule(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "remove_automation", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "toggle_automation", err.Error(), "{enabled:bool}")
		return
	}
	if err := s.automation.SetRuleEnabled(r.Context(), id, body.Enabled); err != nil {
		writeError(w, http.StatusNotFound, "toggle_automation", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *Server) handleTriggerRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		TestData map[string]any `json:"testData"`
		DryRun   bool           `json:"dryRun"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "trigger_automation", err.Error(), "{testData:object,dryRun:bool}")
		return
	}
	if err := s.automation.TriggerRule(r.Context(), id, body.TestData, body.DryRun); err != nil {
		writeError(w, http.StatusNotFound, "trigger_automation", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"triggered": true})
}

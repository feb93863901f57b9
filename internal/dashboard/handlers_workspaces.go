package dashboard

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Workspace endpoints are thin stubs (spec §1 Non-goals): file watching and
// session mining belong to an external collaborator. This package only
// records what a monitor_workspace/stop_monitor call registers and the
// events such a collaborator would emit, for snapshot/history visibility.

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	s.wsMu.Lock()
	out := make([]WorkspaceEntry, 0, len(s.workspaces))
	for _, e := range s.workspaces {
		out = append(out, e)
	}
	s.wsMu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterWorkspace(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path        string `json:"path"`
		EncodedPath string `json:"encodedPath"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "monitor_workspace", err.Error(), "{path:string}")
		return
	}
	if body.Path == "" {
		writeError(w, http.StatusBadRequest, "monitor_workspace", "path is required", "{path:string}")
		return
	}
	encoded := body.EncodedPath
	if encoded == "" {
		encoded = encodeWorkspacePath(body.Path)
	}
	entry := WorkspaceEntry{
		EncodedPath:  encoded,
		Path:         body.Path,
		Monitoring:   true,
		RegisteredAt: time.Now().UTC(),
	}
	s.wsMu.Lock()
	s.workspaces[encoded] = entry
	s.wsMu.Unlock()

	if s.bus != nil {
		s.bus.Emit(r.Context(), "workspace:monitoring", map[string]any{"encodedPath": encoded, "path": body.Path})
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	encoded := mux.Vars(r)["encodedPath"]
	s.wsMu.Lock()
	entry, ok := s.workspaces[encoded]
	s.wsMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "get_workspace", "unknown workspace", "")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	encoded := mux.Vars(r)["encodedPath"]
	s.wsMu.Lock()
	_, ok := s.workspaces[encoded]
	delete(s.workspaces, encoded)
	s.wsMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "stop_monitor", "unknown workspace", "")
		return
	}
	if s.bus != nil {
		s.bus.Emit(r.Context(), "workspace:stopped", map[string]any{"encodedPath": encoded})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleWorkspaceHistory(w http.ResponseWriter, r *http.Request) {
	s.wsMu.Lock()
	out := make(map[string][]map[string]any, len(s.workspaceHist))
	for k, v := range s.workspaceHist {
		out[k] = v
	}
	s.wsMu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWorkspaceHistoryFor(w http.ResponseWriter, r *http.Request) {
	encoded := mux.Vars(r)["encodedPath"]
	s.wsMu.Lock()
	hist := append([]map[string]any(nil), s.workspaceHist[encoded]...)
	s.wsMu.Unlock()
	writeJSON(w, http.StatusOK, hist)
}

// recordWorkspaceEvent appends a workspace-originated event to the bounded
// per-workspace history, called from the bus fan-out when a workspace:*
// event carries an encodedPath (spec §1: only the collaborator's events are
// consumed, not its internals).
func (s *Server) recordWorkspaceEvent(encodedPath string, payload map[string]any) {
	if encodedPath == "" {
		return
	}
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	hist := s.workspaceHist[encodedPath]
	hist = append(hist, payload)
	if len(hist) > workspaceHistCap {
		hist = hist[len(hist)-workspaceHistCap:]
	}
	s.workspaceHist[encodedPath] = hist
}

func encodeWorkspacePath(path string) string {
	out := make([]byte, 0, len(path))
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, byte(r))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

package dashboard

import (
	"encoding/json"
	"net/http"
)

// toolError is the uniform tool-response error envelope (spec §6/§7):
// every failing endpoint returns {error, tool, expectedSchema}.
type toolError struct {
	Error          string `json:"error"`
	Tool           string `json:"tool"`
	ExpectedSchema string `json:"expectedSchema,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, tool, message, expectedSchema string) {
	writeJSON(w, status, toolError{Error: message, Tool: tool, ExpectedSchema: expectedSchema})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

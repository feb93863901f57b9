// Package crossrepo implements the Cross-Repo Dispatcher (spec §4.10): a
// bounded-concurrency subprocess launcher that runs agents against an
// arbitrary target working directory, preferring a registered agent of the
// matching provider for unified metrics and falling back to a direct
// subprocess spawn.
package crossrepo

import "time"

// Via records which path served a dispatch.
type Via string

const (
	ViaAgent      Via = "agent"
	ViaSubprocess Via = "subprocess"
)

// Request describes one cross-repo dispatch.
type Request struct {
	WorkingDir string
	Provider   string
	BinaryPath string
	CliArgs    []string
	Prompt     string
	MaxTokens  int
	TimeoutMs  int
}

// Entry is a recorded dispatch, live or completed.
type Entry struct {
	ID          string    `json:"id"`
	WorkingDir  string    `json:"workingDir"`
	Provider    string    `json:"provider"`
	Via         Via       `json:"via"`
	Success     bool      `json:"success"`
	Content     string    `json:"content,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
	Error       string    `json:"error,omitempty"`
	Cancelled   bool      `json:"cancelled,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
}

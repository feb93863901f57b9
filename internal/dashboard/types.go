// Package dashboard implements the Dashboard HTTP surface (spec §6): a
// localhost JSON/SSE API over the manager's subsystems, a discoverable
// port-file lifecycle, and peer discovery for mailbox forwarding. The
// HTML/CSS/JS frontend itself is explicitly out of scope (spec §1); this
// package is the backend API only.
package dashboard

import (
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/automation"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/crossrepo"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/mailbox"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/router"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
)

// PortFile is the on-disk descriptor written to state/dashboard-<pid>.json
// (spec §6 "Peer discovery").
type PortFile struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
	Cwd       string    `json:"cwd"`
}

// WorkspaceEntry is a thin record of a monitored workspace. Actual file
// watching and session mining are an external collaborator (spec §1
// Non-goals); this package only stores what a monitor_workspace tool call
// would register, for snapshot/history visibility.
type WorkspaceEntry struct {
	EncodedPath string    `json:"encodedPath"`
	Path        string    `json:"path"`
	Monitoring  bool      `json:"monitoring"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Snapshot is the full dashboard state returned by GET /api/snapshot.
type Snapshot struct {
	Agents     []*registry.Instance    `json:"agents"`
	Skills     []*skills.Definition    `json:"skills"`
	Rules      []automation.Rule       `json:"rules"`
	Tasks      []router.TaskResult     `json:"tasks"`
	Metrics    router.GlobalMetrics    `json:"metrics"`
	CrossRepo  []crossrepo.Entry       `json:"crossRepo"`
	Messaging  []mailbox.ChannelSummary `json:"messaging"`
	Automation automation.EngineStatus `json:"automation"`
	Workspaces []WorkspaceEntry        `json:"workspaces"`
	// ReviewQueue is named in the snapshot shape (spec §6) but no module in
	// this system defines a review-queue subsystem; kept as an always-empty
	// slot so clients depending on the documented shape don't break on a
	// missing key.
	ReviewQueue []any `json:"reviewQueue"`
}

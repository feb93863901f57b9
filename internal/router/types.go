// Package router implements the Task Router (spec §4.7): dispatch of a
// skill invocation across one or more agents according to the skill's
// routing strategy, response aggregation, and per-task metrics.
package router

import (
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
)

// TaskResult is the outcome of one routed task.
type TaskResult struct {
	ID          string              `json:"id"`
	SkillID     string              `json:"skillId"`
	Strategy    string              `json:"strategy"`
	Prompt      string              `json:"prompt"`
	Responses   []provider.Response `json:"responses"`
	Success     bool                `json:"success"`
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
	DurationMs  int64               `json:"durationMs"`
}

// GlobalMetrics accumulates totals across every routed task (spec §4.7).
type GlobalMetrics struct {
	TotalTasks           int64   `json:"totalTasks"`
	TotalTokens          int64   `json:"totalTokens"`
	TotalCost            float64 `json:"totalCost"`
	TotalPremiumRequests int64   `json:"totalPremiumRequests"`
	TotalEstimatedTokens int64   `json:"totalEstimatedTokens"`
}

const (
	defaultRaceTimeoutMs = 30000
	defaultQualityThreshold = 0.5
)

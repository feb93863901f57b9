// Package automation implements the Automation Engine (spec §4.9): an
// event-driven pipeline that matches emitted events against declarative
// rules, applies throttling/retry/condition gates, resolves parameter
// templates, and invokes skills through the router.
package automation

import "time"

// ThrottleMode is leading (fire immediately, reject within window) or
// trailing (coalesce into one execution at the end of a quiet window).
type ThrottleMode string

const (
	ThrottleLeading  ThrottleMode = "leading"
	ThrottleTrailing ThrottleMode = "trailing"
)

// Throttle configures rate limiting for a rule (spec §4.9 step 2).
type Throttle struct {
	Mode       ThrottleMode `json:"mode"`
	GroupBy    string       `json:"groupBy,omitempty"`
	IntervalMs int          `json:"intervalMs"`
}

// Retry configures the exponential retry ladder (spec §4.9 step 7).
type Retry struct {
	MaxRetries   int `json:"maxRetries"`
	BaseDelayMs  int `json:"baseDelayMs"`
	MaxDelayMs   int `json:"maxDelayMs"`
}

// ConditionType is the closed set of runtime gates a rule can require
// (spec §4.9 step 3).
type ConditionType string

const (
	ConditionMinAgents  ConditionType = "min-agents"
	ConditionSkillExist ConditionType = "skill-exists"
	ConditionCooldown   ConditionType = "cooldown"
	ConditionCustom     ConditionType = "custom"
)

// Condition is one rule precondition.
type Condition struct {
	Type  ConditionType `json:"type"`
	Param string        `json:"param"`
}

// ParamSpec resolves execution parameters (spec §4.9 step 5): static values
// are overlaid by fromEvent dot-path lookups, then by template
// interpolation.
type ParamSpec struct {
	Static    map[string]string `json:"static,omitempty"`
	FromEvent map[string]string `json:"fromEvent,omitempty"`
	Templates map[string]string `json:"templates,omitempty"`
}

// Rule is a declarative automation rule subscribed to the Event Bus.
type Rule struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Enabled        bool              `json:"enabled"`
	Priority       int               `json:"priority"`
	Events         []string          `json:"events"`
	RequiredFields []string          `json:"requiredFields,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	Throttle       *Throttle         `json:"throttle,omitempty"`
	Conditions     []Condition       `json:"conditions,omitempty"`
	MaxConcurrent  int               `json:"maxConcurrent,omitempty"`
	SkillID        string            `json:"skillId"`
	Params         ParamSpec         `json:"params"`
	DryRun         bool              `json:"dryRun,omitempty"`
	Retry          *Retry            `json:"retry,omitempty"`
	Version        string            `json:"version"`
}

// ExecutionStatus is the closed set of outcomes recorded per execution.
type ExecutionStatus string

const (
	StatusSuccess   ExecutionStatus = "success"
	StatusFailure   ExecutionStatus = "failure"
	StatusSkipped   ExecutionStatus = "skipped"
	StatusThrottled ExecutionStatus = "throttled"
)

// Execution is one recorded invocation of a rule (spec §4.9 step 8).
type Execution struct {
	ID           string          `json:"id"`
	RuleID       string          `json:"ruleId"`
	Status       ExecutionStatus `json:"status"`
	Params       map[string]string `json:"params,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Error        string          `json:"error,omitempty"`
	RetryAttempt int             `json:"retryAttempt"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  time.Time       `json:"completedAt"`
	DurationMs   int64           `json:"durationMs"`
}

// RuleStats tracks per-rule aggregate execution counters (spec §4.9 step 8).
type RuleStats struct {
	Total             int64      `json:"total"`
	Success            int64      `json:"success"`
	Failure            int64      `json:"failure"`
	Skipped            int64      `json:"skipped"`
	Throttled          int64      `json:"throttled"`
	AvgDurationMs      float64    `json:"avgDurationMs"`
	LastExecutedAt     *time.Time `json:"lastExecutedAt,omitempty"`
	LastSuccessAt      *time.Time `json:"lastSuccessAt,omitempty"`
	ActiveExecutions   int        `json:"activeExecutions"`
}

// EngineStatus is the response for getStatus().
type EngineStatus struct {
	Enabled  bool                 `json:"enabled"`
	RuleCount int                 `json:"ruleCount"`
	Stats    map[string]RuleStats `json:"stats"`
}

// Package durable provides pluggable retry-scheduling backends for the
// automation engine's exponential retry ladder (spec §4.9 step 7). The
// default backend schedules retries with an in-process timer; an optional
// Temporal-backed backend persists the delay as a durable workflow timer so
// a pending retry survives a process restart, mirroring the pluggable
// engine.Engine seam the teacher uses for workflow execution
// (runtime/agent/engine/engine.go) scoped down to the one operation
// automation actually needs: "run this again after a delay."
package durable

import (
	"context"
	"time"
)

// RetryScheduler schedules resume to run once after delay, keyed by ruleID
// and attempt (used by Temporal-backed implementations as the workflow ID so
// a duplicate schedule for the same rule/attempt is idempotent).
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, ruleID string, attempt int, delay time.Duration, resume func()) error

	// Close releases any background workers. Implementations with nothing to
	// release return nil.
	Close() error
}

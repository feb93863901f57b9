package durable

import (
	"context"
	"time"
)

// InmemScheduler schedules a retry with time.AfterFunc, the automation
// engine's original (pre-durable) behavior. It is the default when no
// Temporal connection is configured.
type InmemScheduler struct{}

// NewInmemScheduler constructs the in-process scheduler.
func NewInmemScheduler() *InmemScheduler { return &InmemScheduler{} }

func (s *InmemScheduler) ScheduleRetry(_ context.Context, _ string, _ int, delay time.Duration, resume func()) error {
	time.AfterFunc(delay, resume)
	return nil
}

func (s *InmemScheduler) Close() error { return nil }

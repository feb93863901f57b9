package durable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInmemSchedulerRunsResumeAfterDelay(t *testing.T) {
	s := NewInmemScheduler()
	t.Cleanup(func() { _ = s.Close() })

	done := make(chan struct{})
	err := s.ScheduleRetry(context.Background(), "rule-1", 0, 5*time.Millisecond, func() {
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resume was not invoked")
	}
}

func TestInmemSchedulerImplementsRetryScheduler(t *testing.T) {
	var _ RetryScheduler = NewInmemScheduler()
	assert.NoError(t, NewInmemScheduler().Close())
}

package durable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

const retryTaskQueue = "automation-retries"
const retryWorkflowName = "AutomationRetryDelay"
const retryActivityName = "InvokeRetryCallback"

// TemporalScheduler schedules retries as a durable Temporal workflow timer:
// if the process restarts mid-delay, Temporal's own persisted timer state
// resumes the wait on reconnect rather than losing the pending retry, which
// an in-process time.AfterFunc cannot survive. Grounded on the teacher's
// Temporal engine adapter (runtime/agent/engine/temporal/engine.go) for the
// client/worker/workflow/activity shape, scoped down to the single workflow
// automation needs.
type TemporalScheduler struct {
	client client.Client
	worker worker.Worker
	tel    telemetry.Bundle

	mu        sync.Mutex
	callbacks map[string]func()
}

// NewTemporalScheduler connects to a Temporal server at hostPort (namespace
// "default" unless overridden) and starts a worker listening on the
// automation retry task queue.
func NewTemporalScheduler(hostPort, namespace string, tel telemetry.Bundle) (*TemporalScheduler, error) {
	if namespace == "" {
		namespace = client.DefaultNamespace
	}
	c, err := client.Dial(client.Options{HostPort: hostPort, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("durable: dial temporal: %w", err)
	}

	s := &TemporalScheduler{client: c, tel: tel, callbacks: make(map[string]func())}

	w := worker.New(c, retryTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(s.retryDelayWorkflow, workflow.RegisterOptions{Name: retryWorkflowName})
	w.RegisterActivityWithOptions(s.invokeCallback, activity.RegisterOptions{Name: retryActivityName})
	if err := w.Start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("durable: start temporal worker: %w", err)
	}
	s.worker = w
	return s, nil
}

// retryDelayRequest is the workflow input: delay plus the id used to look up
// the in-process callback once the delay elapses.
type retryDelayRequest struct {
	CallbackID string
	DelayMs    int64
}

// retryDelayWorkflow sleeps for the requested delay (a durable timer, not a
// wall-clock sleep: Temporal persists and replays it across worker restarts)
// then invokes the callback activity.
func (s *TemporalScheduler) retryDelayWorkflow(ctx workflow.Context, req retryDelayRequest) error {
	if err := workflow.Sleep(ctx, time.Duration(req.DelayMs)*time.Millisecond); err != nil {
		return err
	}
	ao := workflow.ActivityOptions{StartToCloseTimeout: 30 * time.Second}
	ctx = workflow.WithActivityOptions(ctx, ao)
	return workflow.ExecuteActivity(ctx, retryActivityName, req.CallbackID).Get(ctx, nil)
}

// invokeCallback runs the Go closure registered under callbackID. Closures
// only ever resolve in the same process that scheduled them, since the
// callback map is in-memory; a scheduler instance is not meant to survive
// its owning process (the automation engine itself is re-created on
// restart and simply re-derives retries from the persisted rule/execution
// state instead of resuming orphaned Temporal workflows).
func (s *TemporalScheduler) invokeCallback(ctx context.Context, callbackID string) error {
	s.mu.Lock()
	fn, ok := s.callbacks[callbackID]
	delete(s.callbacks, callbackID)
	s.mu.Unlock()
	if !ok {
		s.tel.Logger.Warn(ctx, "durable: retry callback missing, dropping", "callbackID", callbackID)
		return nil
	}
	fn()
	return nil
}

func (s *TemporalScheduler) ScheduleRetry(ctx context.Context, ruleID string, attempt int, delay time.Duration, resume func()) error {
	callbackID := fmt.Sprintf("%s/%d/%d", ruleID, attempt, time.Now().UnixNano())
	s.mu.Lock()
	s.callbacks[callbackID] = resume
	s.mu.Unlock()

	_, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "automation-retry-" + callbackID,
		TaskQueue: retryTaskQueue,
	}, retryWorkflowName, retryDelayRequest{CallbackID: callbackID, DelayMs: delay.Milliseconds()})
	if err != nil {
		s.mu.Lock()
		delete(s.callbacks, callbackID)
		s.mu.Unlock()
		return fmt.Errorf("durable: schedule retry workflow: %w", err)
	}
	return nil
}

func (s *TemporalScheduler) Close() error {
	s.worker.Stop()
	s.client.Close()
	return nil
}

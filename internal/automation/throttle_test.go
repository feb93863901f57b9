package automation

import (
	"sync"
	"testing"
	"time"
)

func TestAllowLeadingFiresOnceThenRejectsWithinInterval(t *testing.T) {
	st := newThrottleState()
	key := throttleKey("r1", "")
	if !st.allowLeading(key, 50*time.Millisecond) {
		t.Fatal("expected first call to be allowed")
	}
	if st.allowLeading(key, 50*time.Millisecond) {
		t.Fatal("expected immediate second call to be rejected")
	}
	time.Sleep(60 * time.Millisecond)
	if !st.allowLeading(key, 50*time.Millisecond) {
		t.Fatal("expected call after interval to be allowed again")
	}
}

func TestScheduleTrailingCoalescesIntoLatestPayload(t *testing.T) {
	st := newThrottleState()
	key := throttleKey("r1", "")

	var mu sync.Mutex
	var fired map[string]any
	done := make(chan struct{})

	fire := func(payload map[string]any) {
		mu.Lock()
		fired = payload
		mu.Unlock()
		close(done)
	}

	st.scheduleTrailing(key, 30*time.Millisecond, map[string]any{"n": 1}, fire)
	st.scheduleTrailing(key, 30*time.Millisecond, map[string]any{"n": 2}, fire)
	st.scheduleTrailing(key, 30*time.Millisecond, map[string]any{"n": 3}, fire)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for trailing fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if fired["n"] != 3 {
		t.Fatalf("expected coalesced payload n=3, got %v", fired)
	}
}

func TestCancelAllStopsPendingTrailingTimers(t *testing.T) {
	st := newThrottleState()
	key := throttleKey("r1", "")
	fired := false
	st.scheduleTrailing(key, 20*time.Millisecond, map[string]any{}, func(map[string]any) { fired = true })
	st.cancelAll()
	time.Sleep(40 * time.Millisecond)
	if fired {
		t.Fatal("expected cancelAll to prevent the trailing fire")
	}
}

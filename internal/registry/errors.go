package registry

import "errors"

var (
	// ErrNotFound is returned when an operation references an unknown agent id.
	ErrNotFound = errors.New("registry: agent not found")
	// ErrAgentBusy is returned by Unregister when activeTasks > 0 and the
	// caller did not request a forced (shutdown) unregister.
	ErrAgentBusy = errors.New("registry: agent has active tasks")
	// ErrAtCapacity is returned by RecordTaskStart when activeTasks already
	// equals maxConcurrency.
	ErrAtCapacity = errors.New("registry: agent at capacity")
	// ErrAgentUnavailable is returned by RecordTaskStart for stopped/error agents.
	ErrAgentUnavailable = errors.New("registry: agent not available")
)

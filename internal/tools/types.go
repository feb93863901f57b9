// Package tools describes the manager's named tool surface (spec §6):
// the transport-agnostic catalog of operations a stdio/HTTP binding would
// expose, each with a declared input schema and the uniform error
// envelope every tool response shares on failure. Binding these
// descriptors to a concrete stdio or JSON-RPC transport is out of scope
// (spec §1); this package only carries the schema catalog and validation
// used by whichever transport a caller wires on top of it.
package tools

import "encoding/json"

// Group is the closed set of tool categories named by spec §6.
type Group string

const (
	GroupAgent      Group = "agent"
	GroupSkill      Group = "skill"
	GroupTask       Group = "task"
	GroupAutomation Group = "automation"
	GroupMessaging  Group = "messaging"
	GroupCrossRepo  Group = "cross-repo"
	GroupWorkspace  Group = "workspace"
)

// Spec describes one named tool operation: its group, a short summary, and
// its input schema (a JSON Schema document, validated with the same
// compiler internal/skills uses for skill params).
type Spec struct {
	Name         string          `json:"name"`
	Group        Group           `json:"group"`
	Summary      string          `json:"summary"`
	InputSchema  json.RawMessage `json:"inputSchema"`
}

// ErrorKind is the closed error taxonomy surfaced in every tool response
// (spec §7).
type ErrorKind string

const (
	ErrValidation  ErrorKind = "validation"
	ErrNotFound    ErrorKind = "not-found"
	ErrCapacity    ErrorKind = "capacity"
	ErrTimeout     ErrorKind = "timeout"
	ErrRemote      ErrorKind = "remote"
	ErrPersistence ErrorKind = "persistence"
	ErrInvariant   ErrorKind = "invariant"
)

// Envelope is the uniform tool-response error shape (spec §6: "Every tool
// returns either a structured JSON result or a structured error
// {error, tool, expectedSchema}"). Envelope implements error so a tool
// adapter can return it directly.
type Envelope struct {
	Err            string    `json:"error"`
	Kind           ErrorKind `json:"kind,omitempty"`
	Tool           string    `json:"tool"`
	ExpectedSchema string    `json:"expectedSchema,omitempty"`
}

func (e Envelope) Error() string { return e.Err }

// Package audit defines the structured events the doctrine engine emits for
// every violation, dispatch, lockdown, and recovery. Events are
// transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"
)

// EventKind classifies audit events by what the engine observed.
type EventKind string

const (
	// KindViolation records a payload that failed contract validation.
	KindViolation EventKind = "violation"
	// KindDispatch records a payload successfully handed to a sink.
	KindDispatch EventKind = "dispatch"
	// KindLockdown records the global lock engaging after the violation
	// threshold was crossed.
	KindLockdown EventKind = "lockdown"
	// KindRecovery records a recovery attempt, successful or denied.
	KindRecovery EventKind = "recovery"
	// KindAdmin records administrative actions such as mode changes.
	KindAdmin EventKind = "admin"
)

// Event is emitted from the engine to capture enforcement-relevant actions.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	ToolID    string         `json:"tool_id,omitempty"`
	Action    string         `json:"action"`
	Reason    string         `json:"reason,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Store persists audit events. The engine never reads its own trail; listing
// exists for operators and tests.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTool(ctx context.Context, toolID string) ([]Event, error)
}

// Package models defines the canonical payload shape and the shared types of
// the doctrine engine.
package models

import (
	"time"

	dErrors "doctrine/pkg/domain-errors"
)

// Wire field names of the canonical payload contract. Callers submit records
// keyed by these names; the validator normalizes them into CanonicalRecord.
const (
	FieldSourceID      = "sourceId"
	FieldProcessID     = "processId"
	FieldBlueprintID   = "blueprintId"
	FieldSchemaVersion = "schemaVersion"
	FieldData          = "data"
)

// Mode selects how the engine reacts to contract violations.
type Mode string

const (
	// ModeAdvisory counts and audits violations but never blocks callers.
	ModeAdvisory Mode = "advisory"
	// ModeStrict blacklists offending tools immediately and escalates to a
	// global lockdown once the violation threshold is crossed.
	ModeStrict Mode = "strict"
)

// IsValid checks if the mode is one of the supported enum values.
func (m Mode) IsValid() bool {
	return m == ModeAdvisory || m == ModeStrict
}

// String returns the string representation.
func (m Mode) String() string { return string(m) }

// ParseMode creates a Mode from a string, validating it.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid enforcement mode: must be 'advisory' or 'strict'")
	}
	return m, nil
}

// SinkKind identifies which backend wire shape a record is translated into.
type SinkKind string

const (
	SinkDocument   SinkKind = "document"
	SinkRelational SinkKind = "relational"
	SinkColumnar   SinkKind = "columnar"
)

// IsValid checks if the sink kind is one of the supported enum values.
func (k SinkKind) IsValid() bool {
	switch k {
	case SinkDocument, SinkRelational, SinkColumnar:
		return true
	}
	return false
}

// String returns the string representation.
func (k SinkKind) String() string { return string(k) }

// missingValue marks a data field whose value was never resolved by the
// producing tool. Document translation coerces it to an explicit null;
// relational and columnar translation reject it, since typed columns cannot
// represent a missing-vs-null distinction safely.
type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// Missing is the unresolved-field sentinel.
var Missing = missingValue{}

// IsMissing reports whether v is the unresolved-field sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingValue)
	return ok
}

// CanonicalRecord is the validated, provenance-stamped record shape every
// tool must produce before dispatch. Provenance fields are immutable once
// stamped.
type CanonicalRecord struct {
	RecordID      string         `json:"record_id"`
	SourceID      string         `json:"source_id"`
	ProcessID     string         `json:"process_id"`
	BlueprintID   string         `json:"blueprint_id"`
	SchemaVersion string         `json:"schema_version"`
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
	StampedAt     time.Time      `json:"stamped_at"`
}

// SinkResult is the sink adapter's acknowledgment of a written record.
type SinkResult struct {
	// ID is the sink's native identifier for the written record (document
	// key, row primary key, or topic/partition@offset).
	ID string `json:"id"`
}

// DispatchResult reports a successful dispatch back to the caller.
type DispatchResult struct {
	SinkKind SinkKind `json:"sink_kind"`
	SinkID   string   `json:"sink_id"`
}

// BatchError pins a translation failure to its position in the input batch.
type BatchError struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// BatchDispatchResult reports a columnar batch dispatch: the sink result for
// the translated subset plus positionally-aligned errors for the rest.
type BatchDispatchResult struct {
	SinkResult SinkResult   `json:"sink_result"`
	Dispatched int          `json:"dispatched"`
	Errors     []BatchError `json:"errors,omitempty"`
}

// EnforcementStatus is the administrative snapshot of enforcement state.
type EnforcementStatus struct {
	Mode             Mode           `json:"mode"`
	ViolationCount   int            `json:"violation_count"`
	ViolationsByTool map[string]int `json:"violations_by_tool"`
	Blacklist        []string       `json:"blacklist"`
	Locked           bool           `json:"locked"`
}

package models

import (
	"fmt"
	"strings"

	dErrors "doctrine/pkg/domain-errors"
)

// ContractViolation reports a payload that failed shape or version checks.
// It enumerates every missing and invalid field found in one validation pass.
type ContractViolation struct {
	Tool          string
	MissingFields []string
	InvalidFields []string
	Reason        string
}

func (e *ContractViolation) Error() string {
	var b strings.Builder
	b.WriteString("contract violation")
	if e.Tool != "" {
		fmt.Fprintf(&b, " by tool %q", e.Tool)
	}
	if len(e.MissingFields) > 0 {
		fmt.Fprintf(&b, ": missing fields [%s]", strings.Join(e.MissingFields, ", "))
	}
	if len(e.InvalidFields) > 0 {
		fmt.Fprintf(&b, ": invalid fields [%s]", strings.Join(e.InvalidFields, ", "))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// DomainCode implements domainerrors.Coder.
func (e *ContractViolation) DomainCode() dErrors.Code { return dErrors.CodeContractViolation }

// ToolBlacklistedError reports a caller whose tool identifier is currently
// banned from dispatch.
type ToolBlacklistedError struct {
	Tool string
}

func (e *ToolBlacklistedError) Error() string {
	return fmt.Sprintf("tool %q is blacklisted pending recovery", e.Tool)
}

// DomainCode implements domainerrors.Coder.
func (e *ToolBlacklistedError) DomainCode() dErrors.Code { return dErrors.CodeToolBlacklisted }

// SystemLockedError reports that the global lockdown is active. Every caller
// receives it regardless of identity until recovery succeeds.
type SystemLockedError struct{}

func (e *SystemLockedError) Error() string {
	return "doctrine lockdown active: all dispatch refused pending recovery"
}

// DomainCode implements domainerrors.Coder.
func (e *SystemLockedError) DomainCode() dErrors.Code { return dErrors.CodeSystemLocked }

// RecoveryDeniedError reports a recovery attempt with the wrong credential.
// The attempt itself never counts as a doctrine violation.
type RecoveryDeniedError struct{}

func (e *RecoveryDeniedError) Error() string {
	return "recovery denied: invalid recovery code"
}

// DomainCode implements domainerrors.Coder.
func (e *RecoveryDeniedError) DomainCode() dErrors.Code { return dErrors.CodeRecoveryDenied }

// SinkDispatchError wraps whatever the sink adapter reported. The engine
// never retries and never counts it as a doctrine violation; retry policy
// belongs to the adapter or the caller.
type SinkDispatchError struct {
	SinkKind SinkKind
	Err      error
}

func (e *SinkDispatchError) Error() string {
	return fmt.Sprintf("%s sink dispatch failed: %v", e.SinkKind, e.Err)
}

func (e *SinkDispatchError) Unwrap() error { return e.Err }

// DomainCode implements domainerrors.Coder.
func (e *SinkDispatchError) DomainCode() dErrors.Code { return dErrors.CodeSinkDispatch }

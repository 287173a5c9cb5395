// Package enforcement owns the process-wide violation/lockdown state machine.
//
// States: NORMAL -> (strict-mode violation) DEGRADED, per-tool blacklist
// grows -> (violation count crosses threshold) LOCKED, global dispatch
// refusal -> (recover with the correct credential) NORMAL.
//
// The state is an explicitly owned, injectable object rather than ambient
// globals, so tests can run independent instances. All mutations go through
// one mutex; the lock is never held across sink I/O.
package enforcement

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"doctrine/internal/doctrine/models"
)

// Config carries the deployment-specific enforcement constants. Threshold and
// credential are configuration, never hard-coded.
type Config struct {
	// Mode is the initial enforcement mode.
	Mode models.Mode

	// ViolationThreshold is the total violation count that triggers the
	// global lockdown in strict mode.
	ViolationThreshold int

	// RecoveryCodeHash is the bcrypt hash of the operator recovery
	// credential.
	RecoveryCodeHash []byte
}

// State is the singleton enforcement state. Lifecycle spans process start to
// explicit reset; nothing persists across restarts.
type State struct {
	mu               sync.Mutex
	mode             models.Mode
	violationCount   int
	violationsByTool map[string]int
	blacklist        map[string]struct{}
	locked           bool

	threshold    int
	recoveryHash []byte
}

// New constructs enforcement state in NORMAL: zero violations, unlocked.
func New(cfg Config) (*State, error) {
	if !cfg.Mode.IsValid() {
		return nil, errors.New("enforcement mode must be 'advisory' or 'strict'")
	}
	if cfg.ViolationThreshold <= 0 {
		return nil, errors.New("violation threshold must be positive")
	}
	if len(cfg.RecoveryCodeHash) == 0 {
		return nil, errors.New("recovery code hash is required")
	}
	if _, err := bcrypt.Cost(cfg.RecoveryCodeHash); err != nil {
		return nil, errors.New("recovery code hash is not a valid bcrypt hash")
	}

	return &State{
		mode:             cfg.Mode,
		violationsByTool: make(map[string]int),
		blacklist:        make(map[string]struct{}),
		threshold:        cfg.ViolationThreshold,
		recoveryHash:     cfg.RecoveryCodeHash,
	}, nil
}

// Mode returns the current enforcement mode.
func (s *State) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the enforcement mode. Takes effect for subsequent calls;
// past violations are never re-evaluated. Idempotent.
func (s *State) SetMode(mode models.Mode) error {
	if !mode.IsValid() {
		return errors.New("enforcement mode must be 'advisory' or 'strict'")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	return nil
}

// Admit decides whether a call from toolID may proceed. The lock check
// re-arms on every call so a caller cannot race past a lock set between its
// preflight check and its dispatch. A blacklisted tool is rejected even when
// the global lock is off.
func (s *State) Admit(toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return &models.SystemLockedError{}
	}
	if _, banned := s.blacklist[toolID]; banned {
		return &models.ToolBlacklistedError{Tool: toolID}
	}
	return nil
}

// ViolationOutcome reports the state transitions a recorded violation caused,
// so the engine can audit them without re-reading state.
type ViolationOutcome struct {
	Mode           models.Mode
	ViolationCount int
	Blacklisted    bool
	LockEngaged    bool
}

// RecordViolation counts a contract violation against toolID. Violations are
// counted in both modes; only strict mode blacklists the tool immediately and
// engages the global lock once the total count reaches the threshold.
func (s *State) RecordViolation(toolID string) ViolationOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.violationCount++
	s.violationsByTool[toolID]++

	outcome := ViolationOutcome{
		Mode:           s.mode,
		ViolationCount: s.violationCount,
	}

	if s.mode != models.ModeStrict {
		return outcome
	}

	if _, banned := s.blacklist[toolID]; !banned {
		s.blacklist[toolID] = struct{}{}
		outcome.Blacklisted = true
	}

	if !s.locked && s.violationCount >= s.threshold {
		s.locked = true
		outcome.LockEngaged = true
	}

	return outcome
}

// Recover lifts the lockdown when code matches the configured credential:
// counters reset, blacklist clears, lock lifts. A wrong code changes nothing
// and is never itself counted as a violation.
func (s *State) Recover(code string) error {
	if bcrypt.CompareHashAndPassword(s.recoveryHash, []byte(code)) != nil {
		return &models.RecoveryDeniedError{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.violationCount = 0
	s.violationsByTool = make(map[string]int)
	s.blacklist = make(map[string]struct{})
	s.locked = false
	return nil
}

// Unban removes a single tool from the blacklist without resetting counters
// or the lock. Administrative action.
func (s *State) Unban(toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, banned := s.blacklist[toolID]; !banned {
		return errors.New("tool is not blacklisted")
	}
	delete(s.blacklist, toolID)
	return nil
}

// Locked reports whether the global lockdown is active.
func (s *State) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Status returns an administrative snapshot. Maps and slices are copies;
// callers cannot reach the live state through them.
func (s *State) Status() models.EnforcementStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTool := make(map[string]int, len(s.violationsByTool))
	for tool, n := range s.violationsByTool {
		byTool[tool] = n
	}

	blacklist := make([]string, 0, len(s.blacklist))
	for tool := range s.blacklist {
		blacklist = append(blacklist, tool)
	}
	sort.Strings(blacklist)

	return models.EnforcementStatus{
		Mode:             s.mode,
		ViolationCount:   s.violationCount,
		ViolationsByTool: byTool,
		Blacklist:        blacklist,
		Locked:           s.locked,
	}
}

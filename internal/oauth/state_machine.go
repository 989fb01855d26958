package oauth

import (
	"encoding/json"
	"sync"
	"time"
)

// PendingTimeout bounds how long a Pending state may be reported before
// it degrades to Error. It is independent of the callback server's own
// timeout so a stale Pending is never shown even if that timer has not
// fired yet.
const PendingTimeout = 5 * time.Minute

// State is the coarse authorization lifecycle reported to the agent.
// It is derived from the token manager's live view on every read rather
// than being a source of truth itself.
type State int

const (
	StateNotAuthorized State = iota
	StatePending
	StateAuthorized
	StateExpired
	StateError
)

// String returns the snake_case name of the state.
func (s State) String() string {
	switch s {
	case StateNotAuthorized:
		return "not_authorized"
	case StatePending:
		return "pending"
	case StateAuthorized:
		return "authorized"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StatusInfo is the agent-visible authorization status.
type StatusInfo struct {
	State      State  `json:"state"`
	Authorized bool   `json:"authorized"`
	Message    string `json:"message"`
	AuthURL    string `json:"auth_url,omitempty"`
}

// tokenProbe is the token manager view used to reconcile reported state
// with what is actually on disk.
type tokenProbe interface {
	HasToken() bool
	IsTokenValid() bool
}

// StateMachine tracks the authorization lifecycle for status reporting.
type StateMachine struct {
	mu        sync.Mutex
	state     State
	startedAt time.Time
	lastError string
	probe     tokenProbe
	now       func() time.Time
}

// NewStateMachine creates a machine in NotAuthorized, reconciling
// against probe on every status read.
func NewStateMachine(probe tokenProbe) *StateMachine {
	return &StateMachine{
		state: StateNotAuthorized,
		probe: probe,
		now:   time.Now,
	}
}

// StartFlow transitions to Pending. Allowed from any state: a new
// authorization overwrites whatever came before.
func (sm *StateMachine) StartFlow() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state = StatePending
	sm.startedAt = sm.now()
	sm.lastError = ""
}

// Complete transitions to Authorized after a successful exchange.
func (sm *StateMachine) Complete() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state = StateAuthorized
	sm.lastError = ""
}

// Fail transitions to Error with a human-readable reason.
func (sm *StateMachine) Fail(msg string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state = StateError
	sm.lastError = msg
}

// Revoke forces NotAuthorized from any state.
func (sm *StateMachine) Revoke() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state = StateNotAuthorized
	sm.startedAt = time.Time{}
	sm.lastError = ""
}

// MarkAuthorized records that a valid token was just served. Pending is
// left alone: an in-flight flow owns the state until it resolves.
func (sm *StateMachine) MarkAuthorized() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StatePending {
		sm.state = StateAuthorized
		sm.lastError = ""
	}
}

// MarkExpired records that a token existed but was past expiry.
func (sm *StateMachine) MarkExpired() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StatePending {
		sm.state = StateExpired
	}
}

// MarkNotAuthorized records that no usable token exists.
func (sm *StateMachine) MarkNotAuthorized() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StatePending {
		sm.state = StateNotAuthorized
	}
}

// State returns the current state. The read is impure: a Pending older
// than PendingTimeout self-transitions to Error before returning.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.stateLocked()
}

func (sm *StateMachine) stateLocked() State {
	if sm.state == StatePending && sm.now().Sub(sm.startedAt) > PendingTimeout {
		sm.state = StateError
		sm.lastError = "authorization timed out waiting for callback"
	}

	return sm.state
}

// StatusInfo returns the reconciled status. Authorized, Expired, and
// NotAuthorized are re-derived from the token manager's live view, so
// an externally deleted or expired token file is reflected without any
// explicit transition call. Pending and Error keep their own truth
// (apart from the Pending staleness check), except that a valid token
// appearing under an Error state upgrades it.
func (sm *StateMachine) StatusInfo() StatusInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state := sm.stateLocked()

	switch state {
	case StateAuthorized, StateExpired, StateNotAuthorized:
		switch {
		case sm.probe.IsTokenValid():
			state = StateAuthorized
		case sm.probe.HasToken():
			state = StateExpired
		default:
			state = StateNotAuthorized
		}

		sm.state = state
	case StateError:
		if sm.probe.IsTokenValid() {
			state = StateAuthorized
			sm.state = state
			sm.lastError = ""
		}
	}

	return StatusInfo{
		State:      state,
		Authorized: state == StateAuthorized,
		Message:    sm.messageLocked(state),
	}
}

func (sm *StateMachine) messageLocked(state State) string {
	switch state {
	case StateNotAuthorized:
		return "Not authorized. Request an authorization URL to begin."
	case StatePending:
		return "Authorization pending. Open the authorization URL in a browser to continue."
	case StateAuthorized:
		return "Authorized."
	case StateExpired:
		return "Access token expired. Re-authorization is required."
	case StateError:
		if sm.lastError != "" {
			return "Authorization failed: " + sm.lastError
		}

		return "Authorization failed."
	default:
		return ""
	}
}

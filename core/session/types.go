package session

import "time"

// Mode identifies the step a conversation is in.
type Mode string

const (
	// ModeIdle indicates there is no action in progress.
	ModeIdle Mode = "idle"
	// ModeAwaitingItem waits for an item identifier.
	ModeAwaitingItem Mode = "awaiting_item"
	// ModeAwaitingDelta waits for a signed quantity change.
	ModeAwaitingDelta Mode = "awaiting_delta"
	// ModeAwaitingConfirmation waits for yes/no on the pending action.
	ModeAwaitingConfirmation Mode = "awaiting_confirmation"
	// ModeAwaitingPin waits for the admin PIN.
	ModeAwaitingPin Mode = "awaiting_pin"
	// ModeAwaitingFeedback waits for a free-text suggestion.
	ModeAwaitingFeedback Mode = "awaiting_feedback"
)

// ActionKind selects what a confirmed PendingAction does.
type ActionKind string

const (
	ActionAdjust ActionKind = "adjust"
	ActionRemove ActionKind = "remove"
	ActionReset  ActionKind = "reset"
)

// PendingAction is built across messages and applied only on confirmation.
type PendingAction struct {
	Kind   ActionKind
	ItemID string
	Delta  int64
}

// State is the per-conversation record. A Pending action exists only outside ModeIdle.
type State struct {
	Mode          Mode
	Pending       *PendingAction
	Elevated      bool
	ElevatedUntil time.Time
	// FailedPins mirrors the auth gate counter for replies; the gate owns it.
	FailedPins   int
	LastActivity time.Time
}

// Reset returns the conversation to idle and discards the pending action.
// Elevation is kept; it has its own expiry.
func (s *State) Reset() {
	s.Mode = ModeIdle
	s.Pending = nil
}

// Stale reports whether the last activity is older than timeout.
func (s State) Stale(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > timeout
}

func (s State) clone() State {
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}

// Manager stores conversation states keyed by conversation identifier.
type Manager interface {
	// Get returns a copy of the state, creating an idle one when absent.
	Get(conversationID string) State
	Set(conversationID string, st State)
	// Lock serializes work on one conversation. The returned func releases it.
	Lock(conversationID string) (unlock func())
	// ExpireStale resets conversations idle for longer than the timeout and
	// reports how many pending actions were discarded.
	ExpireStale(now time.Time) int
	Clear(conversationID string)
	Len() int
	Timeout() time.Duration
}

package campaign

import (
	"errors"
	"fmt"
)

type State string

const (
	StateIdle                       State = "idle"
	StateAwaitingTag                State = "awaiting_tag"
	StateAwaitingLimit              State = "awaiting_limit"
	StateAwaitingQuantity           State = "awaiting_quantity"
	StateAwaitingConfirmation       State = "awaiting_confirmation"
	StateExecuting                  State = "executing"
	StateReporting                  State = "reporting"
	StateSelectingTag               State = "selecting_tag"
	StatePreviewingDeletion         State = "previewing_deletion"
	StateAwaitingDeleteConfirmation State = "awaiting_delete_confirmation"
	StateDeleting                   State = "deleting"
)

var (
	// ErrUnexpectedStep is returned when an operation does not fit the dialogue state.
	// The session is left untouched.
	ErrUnexpectedStep = errors.New("campaign: unexpected step")
	ErrTagNotFound    = errors.New("campaign: no accounts with this tag")
	ErrInvalidLimit   = errors.New("campaign: traffic limit is not offered")
)

// QuantityError rejects a quantity outside [Min, Max] or one that is not a number.
type QuantityError struct {
	Min, Max int
	Input    string
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("quantity %q: want an integer from %d to %d", e.Input, e.Min, e.Max)
}

// Session is the dialogue of one admin.
type Session struct {
	State       State
	Tag         string
	LimitGB     int
	Quantity    int
	SelectedTag string
}

// session returns the live session for admin, creating an idle one. Callers hold o.mu.
func (o *Orchestrator) session(admin int64) *Session {
	s, ok := o.sessions[admin]
	if !ok {
		s = &Session{State: StateIdle}
		o.sessions[admin] = s
	}
	return s
}

// clear drops the session of admin, but only if it is still s.
func (o *Orchestrator) clear(admin int64, s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions[admin] == s {
		delete(o.sessions, admin)
	}
}

// Start resets the dialogue to the main menu.
func (o *Orchestrator) Start(admin int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, admin)
}

// Cancel abandons whatever the admin was doing. A batch that is already running
// completes, its result is still returned to the caller that started it.
func (o *Orchestrator) Cancel(admin int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, admin)
}

// State returns a copy of the admin's session.
func (o *Orchestrator) State(admin int64) Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[admin]; ok {
		return *s
	}
	return Session{State: StateIdle}
}

// transition moves admin from one of the states in from to next and returns the session.
func (o *Orchestrator) transition(admin int64, next State, from ...State) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session(admin)
	for _, st := range from {
		if s.State == st {
			s.State = next
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnexpectedStep, s.State)
}

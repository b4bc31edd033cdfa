// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// State is one per-account connection lifecycle state.
type State string

const (
	StateDisconnected          State = "DISCONNECTED"
	StateConnectingSession     State = "CONNECTING_SESSION"
	StateConnectingCredentials State = "CONNECTING_CREDENTIALS"
	StateConnected             State = "CONNECTED"
	StateReconnecting          State = "RECONNECTING"
	// StateFailed is terminal: the account stays down until it is deleted
	// and re-linked.
	StateFailed State = "FAILED"
)

// validTransitions defines the allowed lifecycle edges.
var validTransitions = map[State][]State{
	StateDisconnected:          {StateConnectingSession, StateConnectingCredentials, StateFailed},
	StateConnectingSession:     {StateConnected, StateConnectingCredentials, StateReconnecting, StateFailed, StateDisconnected},
	StateConnectingCredentials: {StateConnected, StateReconnecting, StateFailed, StateDisconnected},
	StateConnected:             {StateReconnecting, StateFailed, StateDisconnected},
	StateReconnecting:          {StateConnectingCredentials, StateFailed, StateDisconnected},
	StateFailed:                {},
}

// Machine tracks and enforces one account's connection state.
type Machine struct {
	mu      sync.Mutex
	current State
}

// NewMachine creates a machine in StateDisconnected.
func NewMachine() *Machine {
	return &Machine{current: StateDisconnected}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to a new state, or errors if the edge is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}

// Terminal reports whether the machine can never connect again.
func (m *Machine) Terminal() bool {
	return m.Current() == StateFailed
}

// ErrorClass buckets connection errors into the retry policy's categories.
type ErrorClass int

const (
	ErrClassTransient ErrorClass = iota
	ErrClassAuth
	ErrClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassAuth:
		return "auth"
	case ErrClassFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// classifyError maps an error from the remote session into an ErrorClass.
// Anything not explicitly auth or protocol-fatal is treated as a transient
// network hiccup.
func classifyError(err error) ErrorClass {
	switch {
	case skypeweb.IsAuthError(err):
		return ErrClassAuth
	case skypeweb.IsFatal(err):
		return ErrClassFatal
	default:
		return ErrClassTransient
	}
}

// reconnectPolicy is the single decision point for what happens after a
// connection error: (previous state, classification) → (next state, delay
// before acting). Transient errors get exactly one delayed reconnect
// attempt; everything else is terminal.
func reconnectPolicy(prev State, class ErrorClass, retryDelay time.Duration) (State, time.Duration) {
	if class != ErrClassTransient {
		return StateFailed, 0
	}
	if prev == StateReconnecting {
		// The single reconnect attempt already failed once.
		return StateFailed, 0
	}
	return StateReconnecting, retryDelay
}

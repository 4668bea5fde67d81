package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Info is a snapshot of the connection state.
type Info struct {
	Phase        Phase
	Enabled      bool
	ConnectionID string    // Empty while not connected
	ConnectedAt  time.Time // Zero while not connected
	Attempts     int       // Attempts of the current or last connect loop
	LastError    string
}

// Manager manages connection state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	phase   Phase
	enabled bool

	// Connection identity
	connectionID string
	connectedAt  time.Time

	// Connect loop
	attempts  int
	lastError string
}

// New creates a new state manager.
func New() *Manager {
	return &Manager{phase: PhaseDisabled}
}

// GetPhase returns the current phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SetPhase sets the phase. Connected is entered through SetConnected only.
func (m *Manager) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == PhaseConnected || m.phase == PhaseConnected {
		return
	}
	m.phase = p
}

// IsEnabled returns true while the connection is wanted.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SetEnabled records whether the connection is wanted.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled && m.phase != PhaseConnected {
		m.phase = PhaseDisabled
	}
}

// IsConnected returns true while connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase == PhaseConnected
}

// SetConnected records a connection change at time at. It reports whether
// the state actually changed, so repeated signals can be suppressed.
func (m *Manager) SetConnected(connected bool, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if connected == (m.phase == PhaseConnected) {
		return false
	}
	if connected {
		m.phase = PhaseConnected
		m.connectionID = uuid.New().String()
		m.connectedAt = at
		m.lastError = ""
		return true
	}
	m.connectionID = ""
	m.connectedAt = time.Time{}
	if m.enabled {
		m.phase = PhaseDisconnected
	} else {
		m.phase = PhaseDisabled
	}
	return true
}

// RecordAttempt records the attempt number and error of the connect loop.
func (m *Manager) RecordAttempt(attempt int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = attempt
	if err != nil {
		m.lastError = err.Error()
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		Phase:        m.phase,
		Enabled:      m.enabled,
		ConnectionID: m.connectionID,
		ConnectedAt:  m.connectedAt,
		Attempts:     m.attempts,
		LastError:    m.lastError,
	}
}

// Package state provides connection state management.
package state

// Phase represents the OBS connection lifecycle phase.
type Phase int

const (
	PhaseDisabled     Phase = iota // Not asked to connect
	PhaseConnecting                // Attempting to connect
	PhaseConnected                 // Connection established
	PhaseDisconnected              // Enabled but gave up or lost the connection
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseDisabled:
		return "disabled"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

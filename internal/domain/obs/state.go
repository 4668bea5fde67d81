// Package obs provides the types shared with the OBS websocket transport.
package obs

import "strings"

// OutputState represents the state of a remote output (recording or streaming).
type OutputState int

const (
	OutputStopped  OutputState = iota // Output is stopped
	OutputStarting                    // Start requested, not yet confirmed
	OutputStarted                     // Output is active
	OutputStopping                    // Stop requested, not yet confirmed
)

// String returns the string representation of the state.
func (s OutputState) String() string {
	switch s {
	case OutputStopped:
		return "stopped"
	case OutputStarting:
		return "starting"
	case OutputStarted:
		return "started"
	case OutputStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Active reports whether the output is started or on its way there.
func (s OutputState) Active() bool {
	return s == OutputStarting || s == OutputStarted
}

// ParseOutputState converts an OBS websocket output state string
// (e.g. "OBS_WEBSOCKET_OUTPUT_STARTED") into an OutputState.
// The second return value is false for states that carry no
// start/stop meaning, such as paused or resumed.
func ParseOutputState(raw string) (OutputState, bool) {
	name := strings.TrimPrefix(strings.ToUpper(raw), "OBS_WEBSOCKET_OUTPUT_")
	switch name {
	case "STOPPED":
		return OutputStopped, true
	case "STARTING":
		return OutputStarting, true
	case "STARTED", "RESTARTED", "RECONNECTED":
		return OutputStarted, true
	case "STOPPING":
		return OutputStopping, true
	default:
		return OutputStopped, false
	}
}

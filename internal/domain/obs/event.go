package obs

// Event is a push notification delivered by the transport.
// Concrete types are the *Event structs below.
type Event interface {
	eventName() string
}

// RecordStateChanged is pushed when the recording output changes state.
type RecordStateChanged struct {
	State      OutputState
	OutputPath string // Path of the recording file (set on started/stopped)
}

// RecordFileChanged is pushed when the recording continues in a new file,
// e.g. after a split.
type RecordFileChanged struct {
	NewOutputPath string
}

// StreamStateChanged is pushed when the streaming output changes state.
type StreamStateChanged struct {
	State OutputState
}

// SceneChanged is pushed when the current program scene changes.
type SceneChanged struct {
	Name string
}

// SceneListChanged is pushed when scenes are added, removed or renamed.
type SceneListChanged struct {
	Scenes []string // May be empty when the transport does not carry the list
}

func (RecordStateChanged) eventName() string { return "RecordStateChanged" }
func (RecordFileChanged) eventName() string  { return "RecordFileChanged" }
func (StreamStateChanged) eventName() string { return "StreamStateChanged" }
func (SceneChanged) eventName() string       { return "CurrentProgramSceneChanged" }
func (SceneListChanged) eventName() string   { return "SceneListChanged" }

// EventName returns the OBS websocket name of the event.
func EventName(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventName()
}

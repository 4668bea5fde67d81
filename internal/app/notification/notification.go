package notification

import "time"

// Type identifies the kind of a notification.
type Type string

const (
	TypeConnection Type = "connection"
	TypeRecording  Type = "recording"
	TypeStreaming  Type = "streaming"
	TypeScene      Type = "scene"
	TypeSceneList  Type = "scene_list"
	TypeStage      Type = "stage"
)

// Notification is a single event delivered to subscribers.
type Notification struct {
	SequenceNo uint64    `json:"sequence_no"`
	Type       Type      `json:"type"`
	Time       time.Time `json:"time"`
	Data       any       `json:"data"`
}

// ConnectionData is the payload of a connection notification.
type ConnectionData struct {
	Connected bool `json:"connected"`
}

// OutputData is the payload of recording and streaming notifications.
type OutputData struct {
	State string `json:"state"`
	Path  string `json:"path,omitempty"`
}

// SceneData is the payload of a scene notification.
type SceneData struct {
	Name string `json:"name"`
}

// SceneListData is the payload of a scene list notification.
type SceneListData struct {
	Scenes []string `json:"scenes"`
}

// StageData is the payload of a stage notification.
type StageData struct {
	Stage string `json:"stage"`
	Value int    `json:"value"`
}

func newNotification(t Type, data any) *Notification {
	return &Notification{Type: t, Time: time.Now(), Data: data}
}

// Connection creates a connection state notification.
func Connection(connected bool) *Notification {
	return newNotification(TypeConnection, ConnectionData{Connected: connected})
}

// Recording creates a recording state notification.
func Recording(state, path string) *Notification {
	return newNotification(TypeRecording, OutputData{State: state, Path: path})
}

// Streaming creates a streaming state notification.
func Streaming(state string) *Notification {
	return newNotification(TypeStreaming, OutputData{State: state})
}

// Scene creates a program scene notification.
func Scene(name string) *Notification {
	return newNotification(TypeScene, SceneData{Name: name})
}

// SceneList creates a scene list notification.
func SceneList(scenes []string) *Notification {
	return newNotification(TypeSceneList, SceneListData{Scenes: scenes})
}

// Stage creates a scene stage notification.
func Stage(stage string, value int) *Notification {
	return newNotification(TypeStage, StageData{Stage: stage, Value: value})
}

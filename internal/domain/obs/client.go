package obs

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotConnected    = errors.New("not connected to OBS")
	ErrOutputNotActive = errors.New("output not active")
	ErrOutputRunning   = errors.New("output already active")
	ErrAuthFailed      = errors.New("OBS authentication failed")
	ErrEmptyAddress    = errors.New("OBS address is empty")
)

// SplitFileHotkey is the OBS hotkey that splits the current recording file.
const SplitFileHotkey = "OBSBasic.SplitFile"

// SceneList is the scene list reported by OBS.
type SceneList struct {
	Current string   // Current program scene
	Scenes  []string // All scene names, in OBS order
}

// Contains reports whether name is one of the listed scenes.
func (l SceneList) Contains(name string) bool {
	for _, s := range l.Scenes {
		if s == name {
			return true
		}
	}
	return false
}

// RecordStatus is the recording output status.
type RecordStatus struct {
	Active   bool
	Paused   bool
	Duration time.Duration
	Bytes    int64
}

// StreamStatus is the streaming output status.
type StreamStatus struct {
	Active        bool
	Reconnecting  bool
	Duration      time.Duration
	Bytes         int64
	SkippedFrames int
	TotalFrames   int
}

// Client is the request side of an OBS connection.
// All requests are fallible and may complete before or after the
// matching push event is delivered.
type Client interface {
	GetCurrentScene(ctx context.Context) (string, error)
	SetCurrentScene(ctx context.Context, name string) error
	GetSceneList(ctx context.Context) (SceneList, error)
	GetRecordDirectory(ctx context.Context) (string, error)
	SetRecordDirectory(ctx context.Context, dir string) error
	StartRecord(ctx context.Context) error
	StopRecord(ctx context.Context) (string, error)
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
	TriggerHotkey(ctx context.Context, name string) error
	GetRecordStatus(ctx context.Context) (RecordStatus, error)
	GetStreamStatus(ctx context.Context) (StreamStatus, error)
}

// Conn is an established connection.
type Conn interface {
	Client
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	Close() error
}

// EventHandler receives push events in delivery order.
type EventHandler func(Event)

// Dialer establishes connections to OBS.
type Dialer interface {
	Dial(ctx context.Context, address, password string, handler EventHandler) (Conn, error)
}

// ClientProvider returns the client of the current connection,
// or ErrNotConnected.
type ClientProvider interface {
	Client() (Client, error)
}

// Package obsws connects to OBS over obs-websocket v5 using goobs.
package obsws

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/requests/config"
	"github.com/andreykaipov/goobs/api/requests/general"
	"github.com/andreykaipov/goobs/api/requests/scenes"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/domain/obs"
)

// Dialer dials OBS with goobs.
type Dialer struct{}

// NewDialer creates a new goobs dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

type dialResult struct {
	client *goobs.Client
	err    error
}

// Dial connects to address. goobs cannot be cancelled while connecting,
// so a connection completing after ctx is done is closed right away.
func (d *Dialer) Dial(ctx context.Context, address, password string, handler obs.EventHandler) (obs.Conn, error) {
	if address == "" {
		return nil, obs.ErrEmptyAddress
	}

	opts := []goobs.Option{}
	if password != "" {
		opts = append(opts, goobs.WithPassword(password))
	}

	ch := make(chan dialResult, 1)
	go func() {
		client, err := goobs.New(address, opts...)
		ch <- dialResult{client: client, err: err}
	}()

	var res dialResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		go func() {
			if late := <-ch; late.client != nil {
				_ = late.client.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		if isAuthError(res.err) {
			return nil, errors.Mark(errors.Wrapf(res.err, "failed to connect to %s", address), obs.ErrAuthFailed)
		}
		return nil, errors.Wrapf(res.err, "failed to connect to %s", address)
	}

	c := &Conn{client: res.client, done: make(chan struct{})}
	go c.listen(handler)
	zlog.Info().Msgf("connected to OBS: address=%s", address)
	return c, nil
}

// Conn is an established goobs connection.
type Conn struct {
	client *goobs.Client
	once   sync.Once
	done   chan struct{}
}

func (c *Conn) listen(handler obs.EventHandler) {
	defer c.markDone()
	c.client.Listen(func(raw any) {
		ev, ok := convertEvent(raw)
		if !ok {
			return
		}
		if handler != nil {
			handler(ev)
		}
	})
}

func (c *Conn) markDone() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the event stream ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close disconnects from OBS.
func (c *Conn) Close() error {
	defer c.markDone()
	return errors.Wrap(c.client.Disconnect(), "failed to disconnect from OBS")
}

// GetCurrentScene returns the current program scene.
func (c *Conn) GetCurrentScene(ctx context.Context) (string, error) {
	list, err := c.GetSceneList(ctx)
	if err != nil {
		return "", err
	}
	return list.Current, nil
}

// SetCurrentScene switches the program scene.
func (c *Conn) SetCurrentScene(ctx context.Context, name string) error {
	return call(ctx, "SetCurrentProgramScene", func() error {
		_, err := c.client.Scenes.SetCurrentProgramScene(scenes.NewSetCurrentProgramSceneParams().WithSceneName(name))
		return err
	})
}

// GetSceneList returns the scenes in OBS order.
func (c *Conn) GetSceneList(ctx context.Context) (obs.SceneList, error) {
	var list obs.SceneList
	err := call(ctx, "GetSceneList", func() error {
		resp, err := c.client.Scenes.GetSceneList()
		if err != nil {
			return err
		}
		list.Current = resp.CurrentProgramSceneName
		list.Scenes = sceneNames(resp.Scenes)
		return nil
	})
	return list, err
}

// GetRecordDirectory returns the recording output directory.
func (c *Conn) GetRecordDirectory(ctx context.Context) (string, error) {
	var dir string
	err := call(ctx, "GetRecordDirectory", func() error {
		resp, err := c.client.Config.GetRecordDirectory()
		if err != nil {
			return err
		}
		dir = resp.RecordDirectory
		return nil
	})
	return dir, err
}

// SetRecordDirectory sets the recording output directory.
func (c *Conn) SetRecordDirectory(ctx context.Context, dir string) error {
	return call(ctx, "SetRecordDirectory", func() error {
		_, err := c.client.Config.SetRecordDirectory(config.NewSetRecordDirectoryParams().WithRecordDirectory(dir))
		return err
	})
}

// StartRecord starts the recording output.
func (c *Conn) StartRecord(ctx context.Context) error {
	return call(ctx, "StartRecord", func() error {
		_, err := c.client.Record.StartRecord()
		return err
	})
}

// StopRecord stops the recording output and returns the file path.
func (c *Conn) StopRecord(ctx context.Context) (string, error) {
	var path string
	err := call(ctx, "StopRecord", func() error {
		resp, err := c.client.Record.StopRecord()
		if err != nil {
			return err
		}
		path = resp.OutputPath
		return nil
	})
	return path, err
}

// StartStream starts the streaming output.
func (c *Conn) StartStream(ctx context.Context) error {
	return call(ctx, "StartStream", func() error {
		_, err := c.client.Stream.StartStream()
		return err
	})
}

// StopStream stops the streaming output.
func (c *Conn) StopStream(ctx context.Context) error {
	return call(ctx, "StopStream", func() error {
		_, err := c.client.Stream.StopStream()
		return err
	})
}

// TriggerHotkey triggers a hotkey by its OBS name.
func (c *Conn) TriggerHotkey(ctx context.Context, name string) error {
	return call(ctx, "TriggerHotkeyByName", func() error {
		_, err := c.client.General.TriggerHotkeyByName(general.NewTriggerHotkeyByNameParams().WithHotkeyName(name))
		return err
	})
}

// GetRecordStatus returns the recording output status.
func (c *Conn) GetRecordStatus(ctx context.Context) (obs.RecordStatus, error) {
	var st obs.RecordStatus
	err := call(ctx, "GetRecordStatus", func() error {
		resp, err := c.client.Record.GetRecordStatus()
		if err != nil {
			return err
		}
		st = obs.RecordStatus{
			Active:   resp.OutputActive,
			Paused:   resp.OutputPaused,
			Duration: time.Duration(resp.OutputDuration) * time.Millisecond,
			Bytes:    int64(resp.OutputBytes),
		}
		return nil
	})
	return st, err
}

// GetStreamStatus returns the streaming output status.
func (c *Conn) GetStreamStatus(ctx context.Context) (obs.StreamStatus, error) {
	var st obs.StreamStatus
	err := call(ctx, "GetStreamStatus", func() error {
		resp, err := c.client.Stream.GetStreamStatus()
		if err != nil {
			return err
		}
		st = obs.StreamStatus{
			Active:        resp.OutputActive,
			Reconnecting:  resp.OutputReconnecting,
			Duration:      time.Duration(resp.OutputDuration) * time.Millisecond,
			Bytes:         int64(resp.OutputBytes),
			SkippedFrames: int(resp.OutputSkippedFrames),
			TotalFrames:   int(resp.OutputTotalFrames),
		}
		return nil
	})
	return st, err
}

// call runs a blocking goobs request and gives up waiting when ctx is
// done. goobs requests carry their own response timeout.
func call(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	select {
	case err := <-ch:
		return mapError(name, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mapError maps OBS request status codes onto the obs sentinels.
func mapError(request string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "OutputNotRunning") || strings.Contains(msg, "(501)") || strings.Contains(msg, "not active"):
		return errors.Mark(errors.Wrapf(err, "%s failed", request), obs.ErrOutputNotActive)
	case strings.Contains(msg, "OutputRunning") || strings.Contains(msg, "(500)") || strings.Contains(msg, "already active"):
		return errors.Mark(errors.Wrapf(err, "%s failed", request), obs.ErrOutputRunning)
	}
	return errors.Wrapf(err, "%s failed", request)
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "4009")
}

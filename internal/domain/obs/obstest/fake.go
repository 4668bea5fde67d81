// Package obstest provides an in-memory OBS client for tests.
package obstest

import (
	"context"
	"slices"
	"sync"

	"github.com/osa030/obsflow/internal/domain/obs"
)

// Call is a recorded request.
type Call struct {
	Method string
	Arg    string
}

// Client is a scriptable obs.Client. Hooks run without the client lock
// held and may deliver events synchronously.
type Client struct {
	mu        sync.Mutex
	calls     []Call
	scenes    []string
	current   string
	recordDir string
	errs      map[string]error
	recStatus obs.RecordStatus
	strStatus obs.StreamStatus

	// OnSetScene runs after SetCurrentScene succeeded.
	OnSetScene func(name string)
	// OnStartRecord replaces the default StartRecord result.
	OnStartRecord func(ctx context.Context) error
	// OnStopRecord replaces the default StopRecord result.
	OnStopRecord func(ctx context.Context) (string, error)
	// OnStartStream replaces the default StartStream result.
	OnStartStream func(ctx context.Context) error
	// OnStopStream replaces the default StopStream result.
	OnStopStream func(ctx context.Context) error
	// OnHotkey runs after TriggerHotkey succeeded.
	OnHotkey func(name string)
}

// NewClient creates a client with the given scenes; the first is current.
func NewClient(scenes ...string) *Client {
	c := &Client{
		scenes: slices.Clone(scenes),
		errs:   make(map[string]error),
	}
	if len(scenes) > 0 {
		c.current = scenes[0]
	}
	return c
}

// Fail makes method return err until cleared with a nil error.
func (c *Client) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, method)
		return
	}
	c.errs[method] = err
}

// SetCurrent sets the current scene without recording a call.
func (c *Client) SetCurrent(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = name
}

// SetScenes replaces the scene list.
func (c *Client) SetScenes(scenes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenes = slices.Clone(scenes)
}

// SetRecordStatus sets the reported recording status.
func (c *Client) SetRecordStatus(st obs.RecordStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recStatus = st
}

// SetStreamStatus sets the reported streaming status.
func (c *Client) SetStreamStatus(st obs.StreamStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strStatus = st
}

// Calls returns the recorded requests.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Count returns how many times method was requested.
func (c *Client) Count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Args returns the arguments method was requested with, in order.
func (c *Client) Args(method string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var args []string
	for _, call := range c.calls {
		if call.Method == method {
			args = append(args, call.Arg)
		}
	}
	return args
}

func (c *Client) record(method, arg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: method, Arg: arg})
	return c.errs[method]
}

func (c *Client) GetCurrentScene(ctx context.Context) (string, error) {
	if err := c.record("GetCurrentScene", ""); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

func (c *Client) SetCurrentScene(ctx context.Context, name string) error {
	if err := c.record("SetCurrentScene", name); err != nil {
		return err
	}
	c.mu.Lock()
	c.current = name
	hook := c.OnSetScene
	c.mu.Unlock()
	if hook != nil {
		hook(name)
	}
	return nil
}

func (c *Client) GetSceneList(ctx context.Context) (obs.SceneList, error) {
	if err := c.record("GetSceneList", ""); err != nil {
		return obs.SceneList{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return obs.SceneList{Current: c.current, Scenes: slices.Clone(c.scenes)}, nil
}

func (c *Client) GetRecordDirectory(ctx context.Context) (string, error) {
	if err := c.record("GetRecordDirectory", ""); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordDir, nil
}

func (c *Client) SetRecordDirectory(ctx context.Context, dir string) error {
	if err := c.record("SetRecordDirectory", dir); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordDir = dir
	return nil
}

func (c *Client) StartRecord(ctx context.Context) error {
	if err := c.record("StartRecord", ""); err != nil {
		return err
	}
	if c.OnStartRecord != nil {
		return c.OnStartRecord(ctx)
	}
	return nil
}

func (c *Client) StopRecord(ctx context.Context) (string, error) {
	if err := c.record("StopRecord", ""); err != nil {
		return "", err
	}
	if c.OnStopRecord != nil {
		return c.OnStopRecord(ctx)
	}
	return "", nil
}

func (c *Client) StartStream(ctx context.Context) error {
	if err := c.record("StartStream", ""); err != nil {
		return err
	}
	if c.OnStartStream != nil {
		return c.OnStartStream(ctx)
	}
	return nil
}

func (c *Client) StopStream(ctx context.Context) error {
	if err := c.record("StopStream", ""); err != nil {
		return err
	}
	if c.OnStopStream != nil {
		return c.OnStopStream(ctx)
	}
	return nil
}

func (c *Client) TriggerHotkey(ctx context.Context, name string) error {
	if err := c.record("TriggerHotkey", name); err != nil {
		return err
	}
	if c.OnHotkey != nil {
		c.OnHotkey(name)
	}
	return nil
}

func (c *Client) GetRecordStatus(ctx context.Context) (obs.RecordStatus, error) {
	if err := c.record("GetRecordStatus", ""); err != nil {
		return obs.RecordStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recStatus, nil
}

func (c *Client) GetStreamStatus(ctx context.Context) (obs.StreamStatus, error) {
	if err := c.record("GetStreamStatus", ""); err != nil {
		return obs.StreamStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strStatus, nil
}

// Provider is a switchable obs.ClientProvider.
type Provider struct {
	mu     sync.RWMutex
	client obs.Client
}

// Connected returns a provider serving client.
func Connected(client obs.Client) *Provider {
	return &Provider{client: client}
}

// Disconnected returns a provider without a client.
func Disconnected() *Provider {
	return &Provider{}
}

// Set replaces the served client; nil disconnects.
func (p *Provider) Set(client obs.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// Client returns the client or obs.ErrNotConnected.
func (p *Provider) Client() (obs.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil {
		return nil, obs.ErrNotConnected
	}
	return p.client, nil
}

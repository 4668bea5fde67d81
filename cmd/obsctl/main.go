// Package main provides the obsflow control CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/obsflow/internal/api/httpapi"
)

var (
	app    = kingpin.New("obsctl", "obsflow control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set OBSFLOW_ADMIN_TOKEN env)").Envar("OBSFLOW_ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show connection, recording, streaming and scene status")

	// connect commands
	connectCmd    = app.Command("connect", "Connect to OBS")
	disconnectCmd = app.Command("disconnect", "Disconnect from OBS")

	// record commands
	recordCmd       = app.Command("record", "Control recording")
	recordStartCmd  = recordCmd.Command("start", "Start recording")
	recordSplit     = recordStartCmd.Flag("split", "Restart an active recording into a new file").Bool()
	recordStopCmd   = recordCmd.Command("stop", "Stop recording")
	recordAutoCmd   = recordCmd.Command("auto", "Enable or disable automatic recording")
	recordAutoValue = recordAutoCmd.Arg("enabled", "on or off").Required().Enum("on", "off")

	// stream commands
	streamCmd      = app.Command("stream", "Control streaming")
	streamStartCmd = streamCmd.Command("start", "Start streaming")
	streamStopCmd  = streamCmd.Command("stop", "Stop streaming")

	// scene commands
	sceneCmd      = app.Command("scene", "Control scenes")
	sceneListCmd  = sceneCmd.Command("list", "List scenes").Default()
	sceneSetCmd   = sceneCmd.Command("set", "Switch the program scene")
	sceneSetName  = sceneSetCmd.Arg("name", "Scene name").Required().String()
	sceneIntroCmd = sceneCmd.Command("intro", "Run the intro sequence")
	sceneOutroCmd = sceneCmd.Command("outro", "Run the outro sequence")

	// events command
	eventsCmd = app.Command("events", "Follow the event stream")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	c := &client{base: strings.TrimRight(*server, "/") + httpapi.BaseURL, token: *token, http: &http.Client{Timeout: 30 * time.Second}}
	ctx := context.Background()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, c)
	case connectCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/obs/connect", nil)
	case disconnectCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/obs/disconnect", nil)
	case recordStartCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/recording/start", httpapi.RecordStartRequest{Split: *recordSplit})
	case recordStopCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/recording/stop", nil)
	case recordAutoCmd.FullCommand():
		err = action(ctx, c, http.MethodPut, "/recording/auto", httpapi.AutoRecordRequest{Enabled: *recordAutoValue == "on"})
	case streamStartCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/streaming/start", nil)
	case streamStopCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/streaming/stop", nil)
	case sceneListCmd.FullCommand():
		err = listScenes(ctx, c)
	case sceneSetCmd.FullCommand():
		err = action(ctx, c, http.MethodPut, "/scenes/current", httpapi.SetSceneRequest{Name: *sceneSetName})
	case sceneIntroCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/scenes/intro", nil)
	case sceneOutroCmd.FullCommand():
		err = action(ctx, c, http.MethodPost, "/scenes/outro", nil)
	case eventsCmd.FullCommand():
		c.http.Timeout = 0
		err = follow(ctx, c)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(httpapi.AdminTokenHeader, c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var e httpapi.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, errors.Newf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return resp, nil
}

func (c *client) getJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func action(ctx context.Context, c *client, method, path string, body any) error {
	var resp httpapi.ActionResponse
	if err := c.getJSON(ctx, method, path, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Message)
	}
	fmt.Println(resp.Message)
	return nil
}

func status(ctx context.Context, c *client) error {
	var s httpapi.StatusResponse
	if err := c.getJSON(ctx, http.MethodGet, "/status", nil, &s); err != nil {
		return err
	}

	fmt.Println("\n=== OBS CONNECTION ===")
	fmt.Printf("Address: %s\n", s.Connection.Address)
	fmt.Printf("Phase: %s\n", s.Connection.Phase)
	if s.Connection.Connected {
		fmt.Printf("Connected At: %s\n", s.Connection.ConnectedAt.Format(time.RFC3339))
	}
	if s.Connection.LastError != "" {
		fmt.Printf("Last Error: %s (attempt %d)\n", s.Connection.LastError, s.Connection.Attempts)
	}

	fmt.Println("\n=== RECORDING ===")
	fmt.Printf("State: %s\n", s.Recording.State)
	fmt.Printf("Source: %s\n", s.Recording.Source)
	fmt.Printf("Stop Option: %s\n", s.Recording.StopOption)
	fmt.Printf("Auto Record: %v\n", s.Recording.AutoRecord)
	if s.Recording.OutputPath != "" {
		fmt.Printf("Output: %s\n", s.Recording.OutputPath)
	}
	if s.Recording.PendingLevel != "" {
		fmt.Printf("Pending Level: %s\n", s.Recording.PendingLevel)
	}

	fmt.Println("\n=== STREAMING ===")
	fmt.Printf("State: %s\n", s.Streaming.State)
	if s.Streaming.State == "started" {
		fmt.Printf("Duration: %v\n", time.Duration(s.Streaming.DurationMs)*time.Millisecond)
		fmt.Printf("Frames: %d skipped / %d total\n", s.Streaming.SkippedFrames, s.Streaming.TotalFrames)
	}

	fmt.Println("\n=== SCENES ===")
	fmt.Printf("Current: %s\n", s.Scene.Current)
	fmt.Printf("Stage: %s\n", s.Scene.Stage)
	fmt.Printf("Available: %s\n", strings.Join(s.Scene.Available, ", "))
	return nil
}

func listScenes(ctx context.Context, c *client) error {
	var s httpapi.SceneStatus
	if err := c.getJSON(ctx, http.MethodGet, "/scenes", nil, &s); err != nil {
		return err
	}
	for _, name := range s.Available {
		marker := " "
		if name == s.Current {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	return nil
}

// follow prints server-sent events until the stream ends.
func follow(ctx context.Context, c *client) error {
	resp, err := c.do(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			fmt.Printf("[%s] %s %s\n", time.Now().Format(time.TimeOnly), event, strings.TrimPrefix(line, "data: "))
		}
	}
	return errors.Wrap(scanner.Err(), "event stream ended")
}

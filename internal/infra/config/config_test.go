package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:4455", cfg.OBS.Address)
	assert.Equal(t, 5, cfg.OBS.ConnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.OBS.ConnectRetryDelay())
	assert.Equal(t, 2*time.Second, cfg.OBS.StatusPollInterval())
	assert.True(t, cfg.OBS.AutoReconnect)
	assert.Equal(t, "SceneSequence", cfg.Recording.StartOption)
	assert.Equal(t, "ResultsView", cfg.Recording.StopOption)
	assert.True(t, cfg.Recording.AutoStopOnManual)
	assert.True(t, cfg.Recording.AutoRecord)
	assert.Equal(t, 3*time.Second, cfg.Recording.LevelStartDelay())
	assert.Equal(t, 10*time.Second, cfg.Streaming.Timeout())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://api.beatsaver.com", cfg.BeatSaver.BaseURL)
}

func TestParse_ExplicitFalseSurvivesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
obs:
  auto_reconnect: false
recording:
  auto_record: false
  auto_stop_on_manual: false
  song_start_delay_sec: 1.5
`))
	require.NoError(t, err)

	assert.False(t, cfg.OBS.AutoReconnect)
	assert.False(t, cfg.Recording.AutoRecord)
	assert.False(t, cfg.Recording.AutoStopOnManual)
	assert.Equal(t, 1500*time.Millisecond, cfg.Recording.SongStartDelay())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			yaml: `
obs:
  address: 127.0.0.1:4455
scenes:
  game: Game
  start: Intro
`,
		},
		{
			name:    "unknown start option",
			yaml:    "recording:\n  start_option: Sometimes\n",
			wantErr: true,
			errMsg:  "StartOption",
		},
		{
			name:    "unknown stop option",
			yaml:    "recording:\n  stop_option: Never\n",
			wantErr: true,
			errMsg:  "StopOption",
		},
		{
			name:    "zero connect attempts",
			yaml:    "obs:\n  connect_attempts: 0\n",
			wantErr: true,
			errMsg:  "ConnectAttempts",
		},
		{
			name:    "negative delay",
			yaml:    "recording:\n  stop_delay_sec: -1\n",
			wantErr: true,
			errMsg:  "StopDelaySec",
		},
		{
			name:    "file output without path",
			yaml:    "log:\n  output: file\n",
			wantErr: true,
			errMsg:  "File",
		},
		{
			name:    "start scene without game scene",
			yaml:    "scenes:\n  start: Intro\n",
			wantErr: true,
			errMsg:  "scenes.start requires scenes.game",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("OBSFLOW_OBS_PASSWORD", "secret")
	t.Setenv("OBSFLOW_OBS_ADDRESS", "obs.local:4455")
	t.Setenv("OBSFLOW_AUTO_RECORD", "false")

	cfg, err := Parse([]byte("obs:\n  password: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.OBS.Password)
	assert.Equal(t, "obs.local:4455", cfg.OBS.Address)
	assert.False(t, cfg.Recording.AutoRecord)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestHolder_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenes:\n  game: Game\n"), 0o644))

	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(initial, path)

	var seen *Config
	h.OnReload(func(c *Config) { seen = c })

	require.NoError(t, os.WriteFile(path, []byte("scenes:\n  game: Arena\n"), 0o644))
	require.NoError(t, h.Reload())
	assert.Equal(t, "Arena", h.Get().Scenes.Game)
	require.NotNil(t, seen)
	assert.Equal(t, "Arena", seen.Scenes.Game)

	// Invalid content keeps the previous configuration.
	require.NoError(t, os.WriteFile(path, []byte("recording:\n  start_option: Bogus\n"), 0o644))
	assert.Error(t, h.Reload())
	assert.Equal(t, "Arena", h.Get().Scenes.Game)
}

func TestHolder_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenes:\n  game: Game\n"), 0o644))
	initial, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(initial, path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("scenes:\n  game: Watched\n"), 0o644))
	assert.Eventually(t, func() bool {
		return h.Get().Scenes.Game == "Watched"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStatic(t *testing.T) {
	cfg := Default()
	assert.Same(t, cfg, Static{Config: cfg}.Get())
}

// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	OBS       OBSConfig       `yaml:"obs"`
	Recording RecordingConfig `yaml:"recording"`
	Scenes    ScenesConfig    `yaml:"scenes"`
	Streaming StreamingConfig `yaml:"streaming"`
	Server    ServerConfig    `yaml:"server"`
	BeatSaver BeatSaverConfig `yaml:"beatsaver"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Output string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	File   string `yaml:"file" validate:"required_if=Output file"`
}

// OBSConfig represents the OBS websocket connection configuration.
type OBSConfig struct {
	Address              string `yaml:"address" default:"localhost:4455"`
	Password             string `yaml:"password"`
	ConnectAttempts      int    `yaml:"connect_attempts" default:"5" validate:"gte=1,lte=100"`
	ConnectRetryDelayMs  int    `yaml:"connect_retry_delay_ms" default:"5000" validate:"gte=0,lte=600000"`
	AutoReconnect        bool   `yaml:"auto_reconnect" default:"true"`
	StatusPollIntervalMs int    `yaml:"status_poll_interval_ms" default:"2000" validate:"gte=100,lte=60000"`
}

// ConnectRetryDelay returns the delay between connection attempts.
func (c OBSConfig) ConnectRetryDelay() time.Duration {
	return time.Duration(c.ConnectRetryDelayMs) * time.Millisecond
}

// StatusPollInterval returns the stream status polling interval.
func (c OBSConfig) StatusPollInterval() time.Duration {
	return time.Duration(c.StatusPollIntervalMs) * time.Millisecond
}

// RecordingConfig represents recording automation configuration.
type RecordingConfig struct {
	StartOption           string  `yaml:"start_option" default:"SceneSequence" validate:"oneof=None SceneSequence SongStart LevelStartDelay Immediate"`
	StopOption            string  `yaml:"stop_option" default:"ResultsView" validate:"oneof=None SceneSequence SongEnd ResultsView"`
	AutoStopOnManual      bool    `yaml:"auto_stop_on_manual" default:"true"`
	AutoRecord            bool    `yaml:"auto_record" default:"true"`
	AutoRecordLobby       bool    `yaml:"auto_record_lobby"`
	LevelStartDelaySec    float64 `yaml:"level_start_delay_sec" default:"3" validate:"gte=0,lte=60"`
	StopDelaySec          float64 `yaml:"stop_delay_sec" default:"2" validate:"gte=0,lte=60"`
	SongStartDelaySec     float64 `yaml:"song_start_delay_sec" validate:"gte=0,lte=60"`
	FileFormat            string  `yaml:"file_format" default:"?N-?A [?D] ?S"`
	InvalidCharSubstitute string  `yaml:"invalid_char_substitute" default:"_"`
	ReplaceSpacesWith     string  `yaml:"replace_spaces_with"`
	Directory             string  `yaml:"directory"`
}

// LevelStartDelay returns the delay requested from the host before a level starts.
func (c RecordingConfig) LevelStartDelay() time.Duration {
	return seconds(c.LevelStartDelaySec)
}

// StopDelay returns the delay between the stop trigger and the stop request.
func (c RecordingConfig) StopDelay() time.Duration {
	return seconds(c.StopDelaySec)
}

// SongStartDelay returns the delay between recording start and song start.
func (c RecordingConfig) SongStartDelay() time.Duration {
	return seconds(c.SongStartDelaySec)
}

// ScenesConfig represents the scene sequence configuration.
type ScenesConfig struct {
	Game             string  `yaml:"game"`
	Start            string  `yaml:"start"`
	End              string  `yaml:"end"`
	Resting          string  `yaml:"resting"`
	StartDurationSec float64 `yaml:"start_duration_sec" default:"1" validate:"gte=0,lte=600"`
	EndDurationSec   float64 `yaml:"end_duration_sec" default:"2" validate:"gte=0,lte=600"`
	EndStartDelaySec float64 `yaml:"end_start_delay_sec" default:"1" validate:"gte=0,lte=600"`
}

// StartDuration returns how long the start scene is held.
func (c ScenesConfig) StartDuration() time.Duration {
	return seconds(c.StartDurationSec)
}

// EndDuration returns how long the end scene is held.
func (c ScenesConfig) EndDuration() time.Duration {
	return seconds(c.EndDurationSec)
}

// EndStartDelay returns the delay before switching to the end scene.
func (c ScenesConfig) EndStartDelay() time.Duration {
	return seconds(c.EndStartDelaySec)
}

// StreamingConfig represents streaming control configuration.
type StreamingConfig struct {
	TimeoutMs int `yaml:"timeout_ms" default:"10000" validate:"gte=1000,lte=120000"`
}

// Timeout returns how long a start/stop waits for confirmation.
func (c StreamingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr       string      `yaml:"addr" default:":8080"`
	AdminToken string      `yaml:"admin_token"` // Required on control routes when set
	Hooks      HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// BeatSaverConfig represents BeatSaver API configuration.
type BeatSaverConfig struct {
	BaseURL   string `yaml:"base_url" default:"https://api.beatsaver.com" validate:"url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
}

// Timeout returns the BeatSaver request timeout.
func (c BeatSaverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	// Only fails for malformed default tags.
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
func Parse(data []byte) (*Config, error) {
	// Defaults go first so that explicit false/0 values in the file survive.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("OBSFLOW_OBS_ADDRESS"); v != "" {
		c.OBS.Address = v
	}
	if v := os.Getenv("OBSFLOW_OBS_PASSWORD"); v != "" {
		c.OBS.Password = v
	}
	if v := os.Getenv("OBSFLOW_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OBSFLOW_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("OBSFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OBSFLOW_AUTO_RECORD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Recording.AutoRecord = b
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Scenes.Start != "" && c.Scenes.Game == "" {
		return errors.New("scenes.start requires scenes.game")
	}

	return nil
}

// Provider supplies the current configuration snapshot.
type Provider interface {
	Get() *Config
}

// Static is a Provider that always returns the same configuration.
type Static struct {
	Config *Config
}

// Get returns the configuration.
func (s Static) Get() *Config {
	return s.Config
}

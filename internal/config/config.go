package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/logger"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/audio"
)

// Config holds settings shared by the CLI and the server.
type Config struct {
	DBPath   string
	TempDir  string
	LockDir  string
	LogLevel string
	LogJSON  bool

	Strictness      string
	PlacementMode   string
	FrameRate       float64
	GapThreshold    time.Duration
	WindowHalfWidth time.Duration
	AnchorWindow    time.Duration
	ChunkSeconds    float64
	Workers         int

	SampleRate int
	FFmpeg     string
	FFprobe    string

	ServerAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	home := defaultHome()
	return Config{
		DBPath:          filepath.Join(home, "sessions.sqlite3"),
		TempDir:         filepath.Join(os.TempDir(), "acousticsync"),
		LockDir:         filepath.Join(home, "locks"),
		LogLevel:        "INFO",
		Strictness:      string(syncsession.StrictnessMedium),
		PlacementMode:   string(syncsession.PlacementNearGap),
		FrameRate:       25,
		GapThreshold:    300 * time.Second,
		WindowHalfWidth: 30 * time.Second,
		AnchorWindow:    2 * time.Second,
		ChunkSeconds:    30,
		Workers:         runtime.NumCPU(),
		SampleRate:      audio.DefaultSampleRate,
		FFmpeg:          "ffmpeg",
		FFprobe:         "ffprobe",
		ServerAddr:      ":8080",
	}
}

func defaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".acousticsync")
	}
	return ".acousticsync"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := syncsession.ParseStrictness(c.Strictness); err != nil {
		return err
	}
	if _, err := syncsession.ParsePlacementMode(c.PlacementMode); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive")
	}
	if c.GapThreshold < 0 {
		return fmt.Errorf("gap threshold must not be negative")
	}
	if c.WindowHalfWidth <= 0 || c.AnchorWindow <= 0 {
		return fmt.Errorf("search windows must be positive")
	}
	if c.ChunkSeconds <= 0 {
		return fmt.Errorf("chunk seconds must be positive")
	}
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate must be at least 8000 Hz, got %d", c.SampleRate)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return nil
}

// EngineOptions translates the config into session options. Strictness and
// placement are validated by Validate.
func (c *Config) EngineOptions() []syncsession.Option {
	return []syncsession.Option{
		syncsession.WithStrictness(syncsession.Strictness(c.Strictness)),
		syncsession.WithPlacementMode(syncsession.PlacementMode(c.PlacementMode)),
		syncsession.WithFrameRate(c.FrameRate),
		syncsession.WithGapThreshold(c.GapThreshold),
		syncsession.WithWindowHalfWidth(c.WindowHalfWidth),
		syncsession.WithAnchorWindow(c.AnchorWindow),
		syncsession.WithChunkSeconds(c.ChunkSeconds),
		syncsession.WithWorkers(c.Workers),
	}
}

// ApplyEnv applies SYNC_* and LOG_LEVEL environment variables for settings
// whose flags were not set explicitly.
func ApplyEnv(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	s.setString("db", os.Getenv("SYNC_DB_PATH"), &cfg.DBPath)
	s.setString("temp-dir", os.Getenv("SYNC_TEMP_DIR"), &cfg.TempDir)
	s.setString("log-level", os.Getenv("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("strictness", os.Getenv("SYNC_STRICTNESS"), &cfg.Strictness)
	s.setString("ffmpeg", os.Getenv("SYNC_FFMPEG"), &cfg.FFmpeg)
	s.setString("ffprobe", os.Getenv("SYNC_FFPROBE"), &cfg.FFprobe)
	return s.setIntFromString("workers", os.Getenv("SYNC_WORKERS"), &cfg.Workers)
}

// configSetter applies values only where the corresponding flag hasn't been
// set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

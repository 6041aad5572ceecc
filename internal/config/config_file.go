package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config but uses strings for durations to make TOML friendly.
type fileConfig struct {
	DBPath   string `toml:"db_path"`
	TempDir  string `toml:"temp_dir"`
	LockDir  string `toml:"lock_dir"`
	LogLevel string `toml:"log_level"`
	LogJSON  *bool  `toml:"log_json"`

	Sync struct {
		Strictness      string  `toml:"strictness"`
		PlacementMode   string  `toml:"placement"`
		FrameRate       float64 `toml:"frame_rate"`
		GapThreshold    string  `toml:"gap_threshold"`
		WindowHalfWidth string  `toml:"window_half_width"`
		AnchorWindow    string  `toml:"anchor_window"`
		ChunkSeconds    float64 `toml:"chunk_seconds"`
		Workers         int     `toml:"workers"`
	} `toml:"sync"`

	Audio struct {
		SampleRate int    `toml:"sample_rate"`
		FFmpeg     string `toml:"ffmpeg"`
		FFprobe    string `toml:"ffprobe"`
	} `toml:"audio"`

	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.acousticsync/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(defaultHome(), "config.toml")
}

func applyFileConfig(cfg *Config, fc fileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db", fc.DBPath, &cfg.DBPath)
	s.setString("temp-dir", fc.TempDir, &cfg.TempDir)
	s.setString("lock-dir", fc.LockDir, &cfg.LockDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)

	s.setString("strictness", fc.Sync.Strictness, &cfg.Strictness)
	s.setString("placement", fc.Sync.PlacementMode, &cfg.PlacementMode)
	s.setFloat("fps", fc.Sync.FrameRate, &cfg.FrameRate)
	s.setFloat("chunk-seconds", fc.Sync.ChunkSeconds, &cfg.ChunkSeconds)
	s.setInt("workers", fc.Sync.Workers, &cfg.Workers)
	if err := s.setDuration("gap", fc.Sync.GapThreshold, &cfg.GapThreshold); err != nil {
		return err
	}
	if err := s.setDuration("window", fc.Sync.WindowHalfWidth, &cfg.WindowHalfWidth); err != nil {
		return err
	}
	if err := s.setDuration("anchor-window", fc.Sync.AnchorWindow, &cfg.AnchorWindow); err != nil {
		return err
	}

	s.setInt("sample-rate", fc.Audio.SampleRate, &cfg.SampleRate)
	s.setString("ffmpeg", fc.Audio.FFmpeg, &cfg.FFmpeg)
	s.setString("ffprobe", fc.Audio.FFprobe, &cfg.FFprobe)

	s.setString("addr", fc.Server.Addr, &cfg.ServerAddr)
	return nil
}

// Resolve layers the config file, then the environment, over cfg, skipping
// anything whose flag was set explicitly, and validates the result. A missing
// file is only an error when the path was given explicitly.
func Resolve(cfg *Config, path string, explicit bool, changed map[string]bool) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	fc, err := loadFileConfig(path)
	switch {
	case err == nil:
		if err := applyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return fmt.Errorf("config file: %w", err)
	}
	if err := ApplyEnv(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

package syncsession

import (
	"fmt"
	"runtime"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/logger"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

// Strictness maps to the minimum confidence an edge needs to be accepted.
type Strictness string

const (
	StrictnessLow    Strictness = "low"
	StrictnessMedium Strictness = "medium"
	StrictnessHigh   Strictness = "high"
)

// Threshold returns the acceptance threshold for the level.
func (s Strictness) Threshold() float64 {
	switch s {
	case StrictnessLow:
		return 0.3
	case StrictnessHigh:
		return 0.7
	default:
		return 0.5
	}
}

// ParseStrictness accepts low, medium or high.
func ParseStrictness(v string) (Strictness, error) {
	switch Strictness(v) {
	case StrictnessLow, StrictnessMedium, StrictnessHigh:
		return Strictness(v), nil
	case "":
		return StrictnessMedium, nil
	}
	return "", fmt.Errorf("unknown strictness %q (want low, medium or high)", v)
}

// PlacementMode decides where unmatched clips land on the timeline.
type PlacementMode string

const (
	PlacementNearGap PlacementMode = "near_gap"
	PlacementTailBin PlacementMode = "tail_bin"
)

// ParsePlacementMode accepts near_gap or tail_bin.
func ParsePlacementMode(v string) (PlacementMode, error) {
	switch PlacementMode(v) {
	case PlacementNearGap, PlacementTailBin:
		return PlacementMode(v), nil
	case "":
		return PlacementNearGap, nil
	}
	return "", fmt.Errorf("unknown placement mode %q (want near_gap or tail_bin)", v)
}

type Config struct {
	Strictness    Strictness
	PlacementMode PlacementMode
	FrameRate     float64

	GapThreshold         time.Duration
	WindowHalfWidth      time.Duration
	ChunkSeconds         float64
	MaxChunks            int
	AnchorWindow         time.Duration
	MinOverlapSeconds    float64
	MinPeakStrength      float64
	AmbiguityRatio       float64
	TransientThreshold   float64
	PeakExclusion        time.Duration
	DriftToleranceFrames int
	LowAudioDBFS         float64
	SilenceDBFS          float64
	NoisySNRDB           float64

	Workers   int
	SessionID string
	Logger    Logger
	Progress  ProgressFunc
	Clock     func() time.Time
	ModTime   func(path string) (time.Time, error)
}

type Option func(*Config)

func WithStrictness(s Strictness) Option {
	return func(c *Config) {
		c.Strictness = s
	}
}

func WithPlacementMode(m PlacementMode) Option {
	return func(c *Config) {
		c.PlacementMode = m
	}
}

// WithFrameRate sets the project frame rate used for frame counts and timecodes.
func WithFrameRate(fps float64) Option {
	return func(c *Config) {
		c.FrameRate = fps
	}
}

func WithGapThreshold(d time.Duration) Option {
	return func(c *Config) {
		c.GapThreshold = d
	}
}

func WithWindowHalfWidth(d time.Duration) Option {
	return func(c *Config) {
		c.WindowHalfWidth = d
	}
}

func WithChunkSeconds(seconds float64) Option {
	return func(c *Config) {
		c.ChunkSeconds = seconds
	}
}

// WithAnchorWindow sets the half-width used around anchored lags.
func WithAnchorWindow(d time.Duration) Option {
	return func(c *Config) {
		c.AnchorWindow = d
	}
}

func WithMinPeakStrength(v float64) Option {
	return func(c *Config) {
		c.MinPeakStrength = v
	}
}

// WithAmbiguityRatio sets how close a secondary peak may come to the primary
// before the match is flagged ambiguous.
func WithAmbiguityRatio(v float64) Option {
	return func(c *Config) {
		c.AmbiguityRatio = v
	}
}

// WithTransientThreshold sets the minimum burst fraction for a chunk to be
// preferred for correlation.
func WithTransientThreshold(v float64) Option {
	return func(c *Config) {
		c.TransientThreshold = v
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

func WithSessionID(id string) Option {
	return func(c *Config) {
		c.SessionID = id
	}
}

// WithClock overrides the time source used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}

// WithModTime overrides the filesystem lookup used when embedded start times
// are missing.
func WithModTime(fn func(path string) (time.Time, error)) Option {
	return func(c *Config) {
		c.ModTime = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		Strictness:           StrictnessMedium,
		PlacementMode:        PlacementNearGap,
		FrameRate:            25,
		GapThreshold:         300 * time.Second,
		WindowHalfWidth:      30 * time.Second,
		ChunkSeconds:         30,
		MaxChunks:            8,
		AnchorWindow:         2 * time.Second,
		MinOverlapSeconds:    5,
		MinPeakStrength:      0.3,
		AmbiguityRatio:       0.8,
		TransientThreshold:   0.02,
		PeakExclusion:        250 * time.Millisecond,
		DriftToleranceFrames: 2,
		LowAudioDBFS:         -45,
		SilenceDBFS:          -60,
		NoisySNRDB:           10,
		Workers:              runtime.NumCPU(),
		Clock:                time.Now,
		ModTime:              utils.ModTime,
	}
}

func newConfig(opts []Option) (*Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = utils.GenerateUUID()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := ParseStrictness(string(c.Strictness)); err != nil {
		return err
	}
	if _, err := ParsePlacementMode(string(c.PlacementMode)); err != nil {
		return err
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %v", c.FrameRate)
	}
	if c.GapThreshold < 0 || c.WindowHalfWidth <= 0 || c.AnchorWindow <= 0 {
		return fmt.Errorf("gap threshold and search windows must be positive")
	}
	if c.ChunkSeconds <= 0 {
		return fmt.Errorf("chunk length must be positive, got %v", c.ChunkSeconds)
	}
	if c.AmbiguityRatio <= 0 || c.AmbiguityRatio > 1 {
		return fmt.Errorf("ambiguity ratio must be in (0,1], got %v", c.AmbiguityRatio)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxChunks < 1 {
		c.MaxChunks = 1
	}
	return nil
}

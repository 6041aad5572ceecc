package syncsession

import (
	"context"
	"time"
)

// MediaMetadata is the best-effort description a MetadataProvider returns for
// one file. Nil pointers mean the value is unknown.
type MediaMetadata struct {
	StartTime             *time.Time
	DurationSeconds       float64
	FrameRate             *float64
	SampleRate            *int
	HasAudio              bool
	HasVideo              bool
	TimecodeOriginSeconds float64
}

// FileHandle is one user-selected input. Metadata, when set, is used instead
// of probing the file.
type FileHandle struct {
	Path     string
	Color    string
	Metadata *MediaMetadata
}

// MetadataProvider extracts timing and stream properties from a media file.
// Implementations may return partial metadata together with an error.
type MetadataProvider interface {
	Probe(ctx context.Context, path string) (MediaMetadata, error)
}

// Samples is decoded mono audio.
type Samples struct {
	Data       []float64
	SampleRate int
}

// Duration returns the length of the buffer in seconds.
func (s Samples) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Data)) / float64(s.SampleRate)
}

// Features is a matching feature curve sampled at Rate frames per second.
type Features struct {
	Data []float64
	Rate float64
}

// AudioProcessor loads audio and correlates feature curves. CrossCorrelate
// searches lags k in [windowStart, windowEnd] where b[i] lines up with a[i+k]
// and returns the best lag with its normalised strength in [0,1].
type AudioProcessor interface {
	Load(ctx context.Context, path string) (Samples, error)
	ExtractFeatures(samples Samples) (Features, error)
	CrossCorrelate(a, b Features, windowStart, windowEnd int) (int, float64, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Progress is reported between units of work.
type Progress struct {
	Percent float64
	Stage   string
	Item    string
}

// ProgressFunc receives progress updates. Calls are never concurrent.
type ProgressFunc func(Progress)

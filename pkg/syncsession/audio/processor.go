package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/dsp"
)

type ProcessorConfig struct {
	SampleRate int
	TempDir    string
	FFmpeg     string
	KeepTemp   bool
}

// Processor is the default AudioProcessor: ffmpeg decoding, onset envelope
// features and FFT cross-correlation. It keeps no decoded audio between
// loads; callers own the buffers it returns.
type Processor struct {
	cfg   ProcessorConfig
	log   syncsession.Logger
	group singleflight.Group
}

func NewProcessor(cfg ProcessorConfig, log syncsession.Logger) *Processor {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "acousticsync")
	}
	return &Processor{cfg: cfg, log: log}
}

// Load decodes path to mono at the configured rate. Concurrent loads of the
// same path share one decode.
func (p *Processor) Load(ctx context.Context, path string) (syncsession.Samples, error) {
	v, err, _ := p.group.Do(path, func() (any, error) {
		return p.decode(ctx, path)
	})
	if err != nil {
		return syncsession.Samples{}, err
	}
	return v.(syncsession.Samples), nil
}

func (p *Processor) decode(ctx context.Context, path string) (syncsession.Samples, error) {
	wavPath, err := ConvertToMonoWAV(ctx, path, p.cfg.TempDir, ConvertWAVConfig{
		SampleRate: p.cfg.SampleRate,
		FFmpeg:     p.cfg.FFmpeg,
	})
	if errors.Is(err, exec.ErrNotFound) && strings.EqualFold(filepath.Ext(path), ".wav") {
		// Without ffmpeg a WAV already at the analysis rate is still usable.
		data, rate, rerr := ReadWavMono(path)
		if rerr != nil {
			return syncsession.Samples{}, rerr
		}
		if rate != p.cfg.SampleRate {
			return syncsession.Samples{}, fmt.Errorf("%s is %d Hz and ffmpeg is unavailable to resample to %d Hz", path, rate, p.cfg.SampleRate)
		}
		p.log.Debugf("ffmpeg not found; read %s directly", path)
		return syncsession.Samples{Data: data, SampleRate: rate}, nil
	}
	if err != nil {
		return syncsession.Samples{}, fmt.Errorf("audio conversion failed: %w", err)
	}
	if !p.cfg.KeepTemp {
		defer os.Remove(wavPath)
	}

	data, rate, err := ReadWavMono(wavPath)
	if err != nil {
		return syncsession.Samples{}, fmt.Errorf("failed to read WAV file: %w", err)
	}
	p.log.Debugf("Decoded %s: %d samples at %d Hz", path, len(data), rate)
	return syncsession.Samples{Data: data, SampleRate: rate}, nil
}

// ExtractFeatures returns the onset envelope at roughly 100 frames per second.
func (p *Processor) ExtractFeatures(samples syncsession.Samples) (syncsession.Features, error) {
	env, rate, err := dsp.OnsetEnvelope(samples.Data, samples.SampleRate)
	if err != nil {
		return syncsession.Features{}, err
	}
	return syncsession.Features{Data: env, Rate: rate}, nil
}

func (p *Processor) CrossCorrelate(a, b syncsession.Features, windowStart, windowEnd int) (int, float64, error) {
	return dsp.CrossCorrelate(a.Data, b.Data, windowStart, windowEnd)
}

var _ syncsession.AudioProcessor = (*Processor)(nil)
var _ syncsession.MetadataProvider = (*FFprobeProvider)(nil)

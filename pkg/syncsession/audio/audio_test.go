package audio

import (
	"context"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/AcousticSync/pkg/logger"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
)

func sine(n, rate int, freq, amp float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return x
}

// clicks is silence with short decaying bursts at irregular intervals
// averaging period samples.
func clicks(n, period int) []float64 {
	rng := rand.New(rand.NewSource(int64(period)))
	x := make([]float64, n)
	for i := 0; i < n; i += period/2 + rng.Intn(period) {
		for j := 0; j < 200 && i+j < n; j++ {
			x[i+j] = 0.8 * math.Exp(-float64(j)/40) * math.Sin(float64(j))
		}
	}
	return x
}

func TestWavMonoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	in := sine(1600, 16000, 440, 0.5)
	require.NoError(t, WriteWavMono(path, in, 16000))

	out, rate, err := ReadWavMono(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1.0/16000)
	}
}

func TestReadWavMonoAveragesChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	// Left at +half scale, right at zero.
	data := make([]int, 2*100)
	for i := 0; i < 100; i++ {
		data[2*i] = 16384
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	out, rate, err := ReadWavMono(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	require.Len(t, out, 100)
	assert.InDelta(t, 0.25, out[50], 1e-6)
}

func TestReadWavMonoRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("INVALID HEADER DATA"), 0o644))

	_, _, err := ReadWavMono(path)
	assert.ErrorIs(t, err, ErrInvalidWAV)

	_, _, err = ReadWavMono(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestWriteWavMonoClips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loud.wav")
	require.NoError(t, WriteWavMono(path, []float64{2, -2, 0}, 8000))
	out, _, err := ReadWavMono(path)
	require.NoError(t, err)
	assert.InDelta(t, 1, out[0], 1e-3)
	assert.InDelta(t, -1, out[1], 1e-3)
	assert.Error(t, WriteWavMono(path, nil, 0))
}

func TestProcessorReadsWavWithoutFFmpeg(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ZOOM0001.wav")
	require.NoError(t, WriteWavMono(path, clicks(3*DefaultSampleRate, 4000), DefaultSampleRate))

	p := NewProcessor(ProcessorConfig{TempDir: dir, FFmpeg: "acousticsync-no-such-ffmpeg"}, logger.Nop())
	s, err := p.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleRate, s.SampleRate)
	assert.InDelta(t, 3.0, s.Duration(), 1e-9)

	other := filepath.Join(dir, "low.wav")
	require.NoError(t, WriteWavMono(other, clicks(8000, 2000), 8000))
	_, err = p.Load(context.Background(), other)
	assert.Error(t, err)
}

func TestProcessorDecodesEveryLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ZOOM0002.wav")
	require.NoError(t, WriteWavMono(path, clicks(2*DefaultSampleRate, 4000), DefaultSampleRate))

	p := NewProcessor(ProcessorConfig{TempDir: dir, FFmpeg: "acousticsync-no-such-ffmpeg"}, logger.Nop())
	first, err := p.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, first.Data, 2*DefaultSampleRate)

	require.NoError(t, os.Remove(path))
	_, err = p.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestProcessorFindsLag(t *testing.T) {
	rate := DefaultSampleRate
	world := clicks(12*rate, 7919)
	for i := range world {
		world[i] += 0.001 * math.Sin(float64(i)*0.37)
	}
	a := world[:10*rate]
	b := world[2*rate : 8*rate]

	p := NewProcessor(ProcessorConfig{}, logger.Nop())
	fa, err := p.ExtractFeatures(syncsession.Samples{Data: a, SampleRate: rate})
	require.NoError(t, err)
	fb, err := p.ExtractFeatures(syncsession.Samples{Data: b, SampleRate: rate})
	require.NoError(t, err)
	assert.InDelta(t, 100, fa.Rate, 1e-9)

	k, strength, err := p.CrossCorrelate(fa, fb, 0, 400)
	require.NoError(t, err)
	assert.InDelta(t, 200, k, 1)
	assert.Greater(t, strength, 0.8)
}

func TestConvertToMonoWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skipf("ffmpeg not available: %v", err)
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	require.NoError(t, WriteWavMono(src, sine(44100, 44100, 440, 0.5), 44100))

	out, err := ConvertToMonoWAV(context.Background(), src, filepath.Join(dir, "out"), ConvertWAVConfig{})
	require.NoError(t, err)
	assert.NotEqual(t, src, out)

	data, rate, err := ReadWavMono(out)
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleRate, rate)
	assert.InDelta(t, DefaultSampleRate, len(data), 32)
}

func TestRenderSpectrogram(t *testing.T) {
	out := filepath.Join(t.TempDir(), "plots", "tone.png")
	require.NoError(t, RenderSpectrogram(sine(16000, 16000, 1000, 0.5), 16000, out, SpectrogramConfig{Width: 256, Height: 64}))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, RenderSpectrogram(nil, 16000, out, SpectrogramConfig{}))
}

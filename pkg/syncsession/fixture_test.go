package syncsession

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/logger"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/dsp"
)

const testRate = 100

var (
	baseTime  = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixedNow  = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	errNoFile = errors.New("no such file")
)

// burstSignal is sparse decaying clicks over a faint noise floor, sampled at
// testRate. It stands in for both audio and its feature curve.
func burstSignal(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64() * 0.01
	}
	for i := 0; i < n; i += 20 + rng.Intn(60) {
		amp := 0.5 + rng.Float64()*0.5
		for j := 0; j < 10 && i+j < n; j++ {
			x[i+j] += amp * math.Exp(-float64(j)/3)
		}
	}
	return x
}

func gaussianNoise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64() * 0.1
	}
	return x
}

type fakeMetadata struct {
	mu    sync.Mutex
	items map[string]MediaMetadata
	errs  map[string]error
	calls map[string]int
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		items: make(map[string]MediaMetadata),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeMetadata) Probe(ctx context.Context, path string) (MediaMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	md, ok := f.items[path]
	if err := f.errs[path]; err != nil {
		return md, err
	}
	if !ok {
		return MediaMetadata{}, fmt.Errorf("probe %s: %w", path, errNoFile)
	}
	return md, nil
}

type fakeAudio struct {
	mu      sync.Mutex
	signals map[string][]float64
	windows []int

	block   atomic.Bool
	started chan struct{}
	once    sync.Once
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{signals: make(map[string][]float64), started: make(chan struct{})}
}

func (f *fakeAudio) Load(ctx context.Context, path string) (Samples, error) {
	if f.block.Load() {
		f.once.Do(func() { close(f.started) })
		<-ctx.Done()
		return Samples{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.signals[path]
	if !ok {
		return Samples{}, fmt.Errorf("load %s: %w", path, errNoFile)
	}
	return Samples{Data: append([]float64(nil), data...), SampleRate: testRate}, nil
}

func (f *fakeAudio) ExtractFeatures(s Samples) (Features, error) {
	return Features{Data: s.Data, Rate: float64(s.SampleRate)}, nil
}

func (f *fakeAudio) CrossCorrelate(a, b Features, windowStart, windowEnd int) (int, float64, error) {
	f.mu.Lock()
	f.windows = append(f.windows, windowEnd-windowStart)
	f.mu.Unlock()
	return dsp.CrossCorrelate(a.Data, b.Data, windowStart, windowEnd)
}

func (f *fakeAudio) correlationWindows() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.windows...)
}

// fixture builds a shoot: clips cut from one shared "world" recording so
// devices that overlap in world time hear the same events.
type fixture struct {
	t     *testing.T
	meta  *fakeMetadata
	audio *fakeAudio
	world []float64
	files []FileHandle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:     t,
		meta:  newFakeMetadata(),
		audio: newFakeAudio(),
		world: burstSignal(1500*testRate, 42),
	}
}

func (f *fixture) cut(worldAt, dur float64) []float64 {
	lo := int(math.Round(worldAt * testRate))
	hi := lo + int(math.Round(dur*testRate))
	return append([]float64(nil), f.world[lo:hi]...)
}

func (f *fixture) add(path string, md MediaMetadata, signal []float64) {
	f.meta.items[path] = md
	if signal != nil {
		f.audio.signals[path] = signal
	}
	f.files = append(f.files, FileHandle{Path: path, Color: "blue"})
}

func at(seconds float64) *time.Time {
	t := baseTime.Add(time.Duration(seconds * float64(time.Second)))
	return &t
}

// camera adds a video clip with sound starting at metadata second start.
func (f *fixture) camera(path string, start *time.Time, dur float64, signal []float64) {
	fps := 25.0
	rate := testRate
	f.add(path, MediaMetadata{
		StartTime:       start,
		DurationSeconds: dur,
		FrameRate:       &fps,
		SampleRate:      &rate,
		HasVideo:        true,
		HasAudio:        signal != nil,
	}, signal)
}

// recorder adds an audio-only clip.
func (f *fixture) recorder(path string, start *time.Time, dur float64, signal []float64) {
	rate := testRate
	f.add(path, MediaMetadata{
		StartTime:       start,
		DurationSeconds: dur,
		SampleRate:      &rate,
		HasAudio:        signal != nil,
	}, signal)
}

func testOptions(extra ...Option) []Option {
	opts := []Option{
		WithLogger(logger.Nop()),
		WithClock(func() time.Time { return fixedNow }),
		WithSessionID("test-session"),
		WithModTime(func(string) (time.Time, error) { return time.Time{}, errNoFile }),
		WithWorkers(2),
	}
	return append(opts, extra...)
}

func (f *fixture) session(extra ...Option) *Session {
	f.t.Helper()
	s, err := NewSession(f.meta, f.audio, testOptions(extra...)...)
	if err != nil {
		f.t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func testConfig(t *testing.T, extra ...Option) *Config {
	t.Helper()
	cfg, err := newConfig(testOptions(extra...))
	if err != nil {
		t.Fatalf("newConfig failed: %v", err)
	}
	return cfg
}

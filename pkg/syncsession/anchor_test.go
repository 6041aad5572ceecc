package syncsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

// tickingClock advances one second per call so anchors get distinct
// creation times.
func tickingClock() func() time.Time {
	var (
		mu  sync.Mutex
		now = fixedNow
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// scenarioThree is a recorder and a camera with no usable sound, ten
// seconds apart by metadata.
func scenarioThree(f *fixture) {
	f.recorder("/shoot/rec/R_0001.wav", at(0), 120, nil)
	f.camera("/shoot/cam/C_0001.mov", at(10), 120, nil)
}

func anchorEdges(res *models.SyncResult) []models.MatchEdge {
	var out []models.MatchEdge
	for _, e := range res.Edges {
		if e.Type == models.MatchAnchor {
			out = append(out, e)
		}
	}
	return out
}

func TestExplicitTimeAnchor(t *testing.T) {
	tests := []struct {
		name    string
		reverse bool
		tcA     string
		tcB     string
	}{
		{name: "recorder first", tcA: "00:00:41:18", tcB: "00:01:23:12"},
		{name: "camera first", reverse: true, tcA: "00:01:23:12", tcB: "00:00:41:18"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			scenarioThree(f)
			s := f.session()
			first, err := s.Run(context.Background(), f.files)
			require.NoError(t, err)

			rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
			cam := clipAt(t, first, "/shoot/cam/C_0001.mov")
			req := AnchorRequest{ClipA: rec.ID, ClipB: cam.ID, Type: models.AnchorExplicitTime, TimecodeA: tt.tcA, TimecodeB: tt.tcB, FrameRate: 25}
			if tt.reverse {
				req.ClipA, req.ClipB = cam.ID, rec.ID
			}

			anchor, res, err := s.AddAnchor(context.Background(), req)
			require.NoError(t, err)
			require.NotNil(t, res)

			want := -1044.0 / 25
			if tt.reverse {
				want = 1044.0 / 25
			}
			assert.Equal(t, want, anchor.OffsetSeconds)
			assert.False(t, anchor.AudioRefined)
			assert.Equal(t, 25.0, anchor.FrameRate)

			camDev := res.Devices[cam.DeviceID]
			assert.Equal(t, models.OffsetAnchor, camDev.OffsetSource)
			assert.Equal(t, 1.0, camDev.OffsetConfidence)
			recDev := res.Devices[rec.DeviceID]
			assert.Equal(t, models.OffsetMetadata, recDev.OffsetSource)

			edges := anchorEdges(res)
			require.Len(t, edges, 1)
			assert.Equal(t, anchor.ID, edges[0].AnchorID)
			assert.Equal(t, anchor.OffsetSeconds, edges[0].OffsetSeconds)
			assert.InDelta(t, 0.96, edges[0].Confidence, 1e-9)

			recNow := clipAt(t, res, "/shoot/rec/R_0001.wav")
			camNow := clipAt(t, res, "/shoot/cam/C_0001.mov")
			assert.Equal(t, models.StatusMatched, camNow.Status)
			assert.Equal(t, models.StatusMatched, recNow.Status)
			assert.InDelta(t, -41.76, position(t, camNow)-position(t, recNow), 1e-9)
			assert.Len(t, s.Anchors(), 1)
		})
	}
}

func TestExplicitAnchorSourceTimecode(t *testing.T) {
	f := newFixture(t)
	scenarioThree(f)
	md := f.meta.items["/shoot/rec/R_0001.wav"]
	md.TimecodeOriginSeconds = 3600
	f.meta.items["/shoot/rec/R_0001.wav"] = md

	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	cam := clipAt(t, first, "/shoot/cam/C_0001.mov")

	anchor, _, err := s.AddAnchor(context.Background(), AnchorRequest{
		ClipA:          rec.ID,
		ClipB:          cam.ID,
		Type:           models.AnchorExplicitTime,
		TimecodeA:      "01:00:41:18",
		TimecodeB:      "00:01:23:12",
		SourceTimecode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, -1044.0/25, anchor.OffsetSeconds)
	require.NotNil(t, anchor.TimeInA)
	assert.InDelta(t, 41.72, *anchor.TimeInA, 1e-9)
}

func TestClipToClipAnchorRefinedByAudio(t *testing.T) {
	f := newFixture(t)
	f.recorder("/shoot/rec/R_0001.wav", at(0), 120, f.cut(100, 120))
	f.camera("/shoot/cam/C_0001.mov", at(0), 60, f.cut(105, 60))

	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	cam := clipAt(t, first, "/shoot/cam/C_0001.mov")
	assert.InDelta(t, 5, position(t, cam), 0.011)

	lag := 4.3
	anchor, res, err := s.AddAnchor(context.Background(), AnchorRequest{
		ClipA:           rec.ID,
		ClipB:           cam.ID,
		Type:            models.AnchorClipToClip,
		Lag:             &lag,
		RefineWithAudio: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4.3, anchor.OffsetSeconds)
	assert.True(t, anchor.AudioRefined)
	require.NotNil(t, anchor.RefinedOffsetSeconds)
	assert.InDelta(t, 5.0, *anchor.RefinedOffsetSeconds, 1e-9)
	assert.InDelta(t, 5.0, anchor.EffectiveOffset(), 1e-9)

	assert.InDelta(t, 5.0, position(t, clipAt(t, res, "/shoot/cam/C_0001.mov")), 1e-9)
	assert.Equal(t, models.OffsetAnchor, res.Devices[cam.DeviceID].OffsetSource)

	// Anchored pairs are re-matched inside the narrow anchor window.
	edges := audioEdges(res, cam.ID)
	require.Len(t, edges, 1)
	assert.InDelta(t, 5.0, edges[0].OffsetSeconds, 0.011)
	windows := f.audio.correlationWindows()
	assert.LessOrEqual(t, windows[len(windows)-1], 2*2*testRate)
}

func TestClipToClipAnchorKeepsManualLagWithoutAudioSupport(t *testing.T) {
	f := newFixture(t)
	f.recorder("/shoot/rec/R_0001.wav", at(0), 120, f.cut(100, 120))
	f.camera("/shoot/cam/C_0001.mov", at(0), 60, gaussianNoise(60*testRate, 3))

	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	cam := clipAt(t, first, "/shoot/cam/C_0001.mov")

	lag := 12.5
	anchor, res, err := s.AddAnchor(context.Background(), AnchorRequest{
		ClipA:           rec.ID,
		ClipB:           cam.ID,
		Type:            models.AnchorClipToClip,
		Lag:             &lag,
		RefineWithAudio: true,
	})
	require.NoError(t, err)
	assert.False(t, anchor.AudioRefined)
	assert.Nil(t, anchor.RefinedOffsetSeconds)
	assert.InDelta(t, 12.5, position(t, clipAt(t, res, "/shoot/cam/C_0001.mov")), 1e-9)
}

func TestClipToClipAnchorDefaultsToShownLag(t *testing.T) {
	f := newFixture(t)
	scenarioThree(f)
	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	cam := clipAt(t, first, "/shoot/cam/C_0001.mov")

	anchor, res, err := s.AddAnchor(context.Background(), AnchorRequest{
		ClipA: rec.ID,
		ClipB: cam.ID,
		Type:  models.AnchorClipToClip,
	})
	require.NoError(t, err)
	assert.InDelta(t, 10, anchor.OffsetSeconds, 1e-9)
	assert.InDelta(t, 10, position(t, clipAt(t, res, cam.Path))-position(t, clipAt(t, res, rec.Path)), 1e-9)
}

func TestLatestAnchorPerPairWins(t *testing.T) {
	f := newFixture(t)
	scenarioThree(f)
	s := f.session(WithClock(tickingClock()))
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	cam := clipAt(t, first, "/shoot/cam/C_0001.mov")

	for _, lag := range []float64{3, -7} {
		_, _, err := s.AddAnchor(context.Background(), AnchorRequest{
			ClipA: rec.ID, ClipB: cam.ID, Type: models.AnchorClipToClip, Lag: &lag,
		})
		require.NoError(t, err)
	}

	res := s.Result()
	anchors := s.Anchors()
	require.Len(t, anchors, 2)
	assert.True(t, anchors[0].CreatedAt.Before(anchors[1].CreatedAt))

	edges := anchorEdges(res)
	require.Len(t, edges, 1)
	assert.Equal(t, anchors[1].ID, edges[0].AnchorID)
	assert.InDelta(t, -7, position(t, clipAt(t, res, cam.Path))-position(t, clipAt(t, res, rec.Path)), 1e-9)
}

func TestAddAnchorValidation(t *testing.T) {
	f := newFixture(t)
	f.recorder("/shoot/rec/R_0001.wav", at(0), 120, nil)
	f.camera("/shoot/cam/C_0001.mov", at(10), 60, nil)
	f.camera("/shoot/cam/C_0002.mov", at(80), 60, nil)

	s := f.session()
	_, _, err := s.AddAnchor(context.Background(), AnchorRequest{})
	require.ErrorIs(t, err, ErrNotRun)

	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav").ID
	c1 := clipAt(t, first, "/shoot/cam/C_0001.mov").ID
	c2 := clipAt(t, first, "/shoot/cam/C_0002.mov").ID

	tests := []struct {
		name string
		req  AnchorRequest
		want error
	}{
		{"unknown clip", AnchorRequest{ClipA: rec, ClipB: "missing", Type: models.AnchorClipToClip}, ErrUnknownClip},
		{"same clip", AnchorRequest{ClipA: c1, ClipB: c1, Type: models.AnchorClipToClip}, ErrSameClip},
		{"same device", AnchorRequest{ClipA: c1, ClipB: c2, Type: models.AnchorClipToClip}, ErrSameDevice},
		{"bad timecode", AnchorRequest{ClipA: rec, ClipB: c1, Type: models.AnchorExplicitTime, TimecodeA: "00:00:00:30", TimecodeB: "00:00:01:00"}, ErrInvalidTimecode},
		{"malformed timecode", AnchorRequest{ClipA: rec, ClipB: c1, Type: models.AnchorExplicitTime, TimecodeA: "1:2", TimecodeB: "00:00:01:00"}, ErrInvalidTimecode},
		{"unknown type", AnchorRequest{ClipA: rec, ClipB: c1, Type: "sideways"}, ErrInvalidAnchor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anchor, res, err := s.AddAnchor(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, anchor)
			assert.Nil(t, res)
		})
	}
	assert.Empty(t, s.Anchors())
	assert.Same(t, first, s.Result())
}

func TestAddAnchorCancelsInFlightRun(t *testing.T) {
	f := newFixture(t)
	scenarioOne(f)
	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)

	f.audio.block.Store(true)
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), f.files)
		errCh <- err
	}()
	select {
	case <-f.audio.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached audio loading")
	}
	f.audio.block.Store(false)

	lag := 0.0
	_, res, err := s.AddAnchor(context.Background(), AnchorRequest{
		ClipA: clipAt(t, first, "/shoot/rec/ZOOM0001.wav").ID,
		ClipB: clipAt(t, first, "/shoot/cam/C_0001.mov").ID,
		Type:  models.AnchorClipToClip,
		Lag:   &lag,
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight run was not cancelled")
	}
	assert.Same(t, res, s.Result())
	assert.Len(t, anchorEdges(res), 1)
}

func TestImportAnchors(t *testing.T) {
	f := newFixture(t)
	scenarioThree(f)
	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	cam := clipAt(t, first, "/shoot/cam/C_0001.mov")

	lag := 6.0
	_, want, err := s.AddAnchor(context.Background(), AnchorRequest{ClipA: rec.ID, ClipB: cam.ID, Type: models.AnchorClipToClip, Lag: &lag})
	require.NoError(t, err)

	restored := f.session()
	stale := models.Anchor{ID: "stale", ClipA: "gone", ClipB: cam.ID, Type: models.AnchorClipToClip, CreatedAt: fixedNow.Add(-time.Hour)}
	restored.ImportAnchors(append(s.Anchors(), stale))
	got, err := restored.Run(context.Background(), f.files)
	require.NoError(t, err)

	assert.Equal(t, want.Devices[cam.DeviceID].Offset(), got.Devices[cam.DeviceID].Offset())
	assert.Equal(t, want.Clips, got.Clips)
	assert.Len(t, restored.Anchors(), 2)
	assert.Equal(t, "stale", restored.Anchors()[0].ID)

	var ignored bool
	for _, w := range got.Warnings {
		if w == "anchor stale references clips not in this run; ignored" {
			ignored = true
		}
	}
	assert.True(t, ignored)
}

func TestAnchorFollowsPartnerMovedByAudio(t *testing.T) {
	f := newFixture(t)
	f.recorder("/shoot/rec/R_0001.wav", at(0), 120, f.cut(100, 120))
	f.camera("/shoot/camX/C_0001.mov", at(0), 60, f.cut(98, 60))
	f.camera("/shoot/camY/C_0001.mov", at(30), 60, nil)

	s := f.session()
	first, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	rec := clipAt(t, first, "/shoot/rec/R_0001.wav")
	camX := clipAt(t, first, "/shoot/camX/C_0001.mov")
	camY := clipAt(t, first, "/shoot/camY/C_0001.mov")
	require.Equal(t, rec.DeviceID, first.Segments[0].MasterDeviceID)

	lag := 10.0
	_, res, err := s.AddAnchor(context.Background(), AnchorRequest{
		ClipA: camX.ID, ClipB: camY.ID, Type: models.AnchorClipToClip, Lag: &lag,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OffsetAudio, res.Devices[camX.DeviceID].OffsetSource)
	assert.Equal(t, models.OffsetAnchor, res.Devices[camY.DeviceID].OffsetSource)

	recPos := position(t, clipAt(t, res, rec.Path))
	xPos := position(t, clipAt(t, res, camX.Path))
	yPos := position(t, clipAt(t, res, camY.Path))
	assert.InDelta(t, -2, xPos-recPos, 0.011)
	assert.InDelta(t, 10, yPos-xPos, 1e-9)

	again, err := s.Run(context.Background(), f.files)
	require.NoError(t, err)
	assert.Equal(t, res.Clips, again.Clips)
}

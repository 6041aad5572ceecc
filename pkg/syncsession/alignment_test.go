package syncsession

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

func alignFixture(t *testing.T, f *fixture) *runState {
	t.Helper()
	st := clusterFixture(t, f)
	require.NoError(t, NewAlignmentService(testConfig(t)).Align(context.Background(), st))
	return st
}

func TestAlignUsesLargestOverlap(t *testing.T) {
	f := newFixture(t)
	f.recorder("/s/rec/ZOOM0001.WAV", at(0), 100, nil)
	f.recorder("/s/rec/ZOOM0002.WAV", at(110), 100, nil)
	// Overlaps ZOOM0001 by 10s and ZOOM0002 by 40s.
	f.camera("/s/cam/A_0001.mov", at(90), 60, nil)

	st := alignFixture(t, f)

	require.Len(t, st.edges, 1)
	e := st.edges[0]
	assert.Equal(t, models.MatchMetadata, e.Type)
	a := st.clips[e.ClipA]
	assert.Equal(t, "/s/rec/ZOOM0002.WAV", a.Path)
	assert.Equal(t, -20.0, e.OffsetSeconds)
	assert.Equal(t, st.segments[0].ID, e.SegmentID)

	rec := st.devices[st.reference]
	assert.Equal(t, models.DeviceRecorder, rec.Kind)
	assert.Equal(t, models.OffsetMetadata, rec.OffsetSource)
	assert.Equal(t, 1.0, rec.OffsetConfidence)

	cam := st.devices[st.clips[e.ClipB].DeviceID]
	require.NotNil(t, cam.TimeOffsetSeconds)
	assert.Equal(t, 0.0, *cam.TimeOffsetSeconds)
	assert.Equal(t, models.OffsetMetadata, cam.OffsetSource)
	assert.InDelta(t, 0.5*40.0/60.0, cam.OffsetConfidence, 1e-9)
}

func TestAlignLeavesUntimedDeviceUnset(t *testing.T) {
	f := newFixture(t)
	f.recorder("/s/rec/ZOOM0001.WAV", at(0), 100, nil)
	f.camera("/s/cam/A_0001.mov", at(10), 30, nil)
	f.camera("/s/cam2/B_0001.mov", nil, 30, nil)

	st := alignFixture(t, f)

	var cam2 *models.Device
	for _, d := range st.devices {
		if d.Name == "cam2" {
			cam2 = d
		}
	}
	require.NotNil(t, cam2)
	assert.Nil(t, cam2.TimeOffsetSeconds)
	assert.Equal(t, 0.0, cam2.OffsetConfidence)
	assert.Equal(t, models.OffsetNone, cam2.OffsetSource)
}

func TestAlignNoOverlapNoEdge(t *testing.T) {
	f := newFixture(t)
	f.recorder("/s/rec/ZOOM0001.WAV", at(0), 60, nil)
	f.camera("/s/cam/A_0001.mov", at(100), 30, nil)

	st := alignFixture(t, f)
	assert.Empty(t, st.edges)
	cam := st.devices[st.clips[st.clipOrder[1]].DeviceID]
	assert.Nil(t, cam.TimeOffsetSeconds)
}

package syncsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

func clusterFixture(t *testing.T, f *fixture, extra ...Option) *runState {
	t.Helper()
	st := ingestFixture(t, f, extra...)
	require.NoError(t, NewClusterService(testConfig(t, extra...)).Cluster(context.Background(), st))
	return st
}

func segmentPaths(st *runState) [][]string {
	var out [][]string
	for _, seg := range st.segments {
		var paths []string
		for _, id := range seg.ClipIDs {
			paths = append(paths, st.clips[id].Path)
		}
		out = append(out, paths)
	}
	return out
}

func TestClusterGapThreshold(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want [][]string
	}{
		{
			name: "default gap",
			gap:  300 * time.Second,
			want: [][]string{
				{"/s/cam/A_0001.mov", "/s/cam/A_0002.mov", "/s/cam/A_0003.mov"},
				{"/s/cam/A_0004.mov"},
			},
		},
		{
			name: "tight gap",
			gap:  30 * time.Second,
			want: [][]string{
				{"/s/cam/A_0001.mov", "/s/cam/A_0002.mov"},
				{"/s/cam/A_0003.mov"},
				{"/s/cam/A_0004.mov"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.camera("/s/cam/A_0001.mov", at(0), 60, nil)
			// Overlaps the first clip.
			f.camera("/s/cam/A_0002.mov", at(50), 30, nil)
			// Starts 220s after the previous end.
			f.camera("/s/cam/A_0003.mov", at(300), 60, nil)
			// Starts 540s after the previous end.
			f.camera("/s/cam/A_0004.mov", at(900), 60, nil)

			st := clusterFixture(t, f, WithGapThreshold(tt.gap))
			assert.Equal(t, tt.want, segmentPaths(st))
		})
	}
}

func TestClusterSegmentBoundsAndOrder(t *testing.T) {
	f := newFixture(t)
	// Deliberately out of order on input.
	f.camera("/s/cam/A_0002.mov", at(1000), 20, nil)
	f.camera("/s/cam/A_0001.mov", at(100), 50, nil)

	st := clusterFixture(t, f)
	require.Len(t, st.segments, 2)
	assert.Equal(t, "Segment 1", st.segments[0].Name)
	assert.Equal(t, 0.0, st.segments[0].StartSeconds)
	assert.Equal(t, 50.0, st.segments[0].EndSeconds)
	assert.Equal(t, 900.0, st.segments[1].StartSeconds)
	assert.Equal(t, 920.0, st.segments[1].EndSeconds)
	assert.Equal(t, models.JustifyTimeOverlap, st.segments[0].Justification)
}

func TestClusterSingleClipSegment(t *testing.T) {
	f := newFixture(t)
	f.camera("/s/cam/A_0001.mov", at(0), 5, nil)

	st := clusterFixture(t, f)
	require.Len(t, st.segments, 1)
	assert.Len(t, st.segments[0].ClipIDs, 1)
	assert.Equal(t, st.deviceOrder[0], st.segments[0].MasterDeviceID)
	assert.Equal(t, st.deviceOrder[0], st.reference)
}

func TestClusterMasterPrefersRecorder(t *testing.T) {
	f := newFixture(t)
	f.camera("/s/cam/A_0001.mov", at(0), 60, nil)
	f.camera("/s/cam/A_0002.mov", at(70), 60, nil)
	f.camera("/s/cam/A_0003.mov", at(140), 60, nil)
	f.recorder("/s/rec/ZOOM0001.WAV", at(0), 200, nil)

	st := clusterFixture(t, f)
	require.Len(t, st.segments, 1)
	seg := st.segments[0]
	rec := st.devices[seg.MasterDeviceID]
	assert.Equal(t, models.DeviceRecorder, rec.Kind)
	assert.True(t, seg.HasRecorder)
}

func TestClusterMasterMostClipsThenLowestID(t *testing.T) {
	f := newFixture(t)
	f.camera("/s/camA/A_0001.mov", at(0), 60, nil)
	f.camera("/s/camB/B_0001.mov", at(0), 30, nil)
	f.camera("/s/camB/B_0002.mov", at(30), 30, nil)

	st := clusterFixture(t, f)
	camB := st.devices[st.deviceOrder[1]]
	assert.Equal(t, camB.ID, st.segments[0].MasterDeviceID)

	f2 := newFixture(t)
	f2.camera("/s/camA/A_0001.mov", at(0), 60, nil)
	f2.camera("/s/camB/B_0001.mov", at(0), 60, nil)
	st2 := clusterFixture(t, f2)
	lowest := st2.deviceOrder[0]
	if st2.deviceOrder[1] < lowest {
		lowest = st2.deviceOrder[1]
	}
	assert.Equal(t, lowest, st2.segments[0].MasterDeviceID)
}

func TestClusterUntimedBySequence(t *testing.T) {
	f := newFixture(t)
	f.camera("/s/cam/A_0001.mov", at(0), 60, nil)
	f.camera("/s/cam/A_0010.mov", at(2000), 60, nil)
	f.camera("/s/cam/A_0009.mov", nil, 60, nil)
	f.camera("/s/cam/A_0002.mov", nil, 60, nil)
	f.camera("/s/other/clip.mov", nil, 60, nil)

	st := clusterFixture(t, f)

	assert.Equal(t, [][]string{
		{"/s/cam/A_0001.mov", "/s/cam/A_0002.mov"},
		{"/s/cam/A_0010.mov", "/s/cam/A_0009.mov"},
		{"/s/other/clip.mov"},
	}, segmentPaths(st))

	unknown := st.segments[2]
	assert.Equal(t, "Unknown", unknown.Name)
	assert.Equal(t, models.JustifyManual, unknown.Justification)

	var kinds []string
	for _, a := range st.anomalies {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []string{models.AnomalyUnknownSegment}, kinds)
}

func TestClusterCancelled(t *testing.T) {
	f := newFixture(t)
	f.camera("/s/cam/A_0001.mov", at(0), 60, nil)
	st := ingestFixture(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClusterService(testConfig(t)).Cluster(ctx, st)
	assert.ErrorIs(t, err, ErrCancelled)
}

package syncsession

import (
	"context"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

// AlignmentService derives rough device offsets and metadata edges from
// overlapping start times.
type AlignmentService struct {
	log Logger
}

func NewAlignmentService(cfg *Config) *AlignmentService {
	return &AlignmentService{log: cfg.Logger}
}

// Align walks every segment and relates each non-master device to the master
// through the master/device clip pair with the largest metadata overlap.
// Devices with no usable timestamps keep a nil offset and zero confidence.
func (s *AlignmentService) Align(ctx context.Context, st *runState) error {
	if ref := st.devices[st.reference]; ref != nil && ref.TimeOffsetSeconds == nil {
		ref.SetOffset(0, 1, models.OffsetMetadata)
	}

	aligned := 0
	for _, seg := range st.segments {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		master := st.devices[seg.MasterDeviceID]
		if master == nil {
			continue
		}
		clips := st.segmentClips(seg)
		if master.TimeOffsetSeconds == nil && hasTimedClip(clips, master.ID) {
			master.SetOffset(0, 0.5, models.OffsetMetadata)
		}

		for _, devID := range st.devicesIn(seg) {
			if devID == master.ID {
				continue
			}
			m, d, overlap := largestOverlap(clips, master.ID, devID)
			if m == nil {
				s.log.Debugf("No overlapping metadata window for device %s in %s", st.devices[devID].Name, seg.Name)
				continue
			}
			st.edges = append(st.edges, models.MatchEdge{
				ID:            utils.StableID("edge", string(models.MatchMetadata), m.ID, d.ID),
				ClipA:         m.ID,
				ClipB:         d.ID,
				Type:          models.MatchMetadata,
				OffsetSeconds: d.StartTime.Sub(*m.StartTime).Seconds(),
				SegmentID:     seg.ID,
			})

			dev := st.devices[devID]
			if dev.TimeOffsetSeconds != nil {
				continue
			}
			conf := overlap / minFloat(m.DurationSeconds, d.DurationSeconds)
			if m.TimeUnknown || d.TimeUnknown {
				conf *= 0.5
			}
			dev.SetOffset(master.Offset(), 0.5*clamp01(conf), models.OffsetMetadata)
			aligned++
		}
	}
	s.log.Infof("Metadata alignment set offsets for %d devices, %d metadata edges", aligned, len(st.edges))
	return nil
}

func hasTimedClip(clips []*models.Clip, deviceID string) bool {
	for _, c := range clips {
		if c.DeviceID == deviceID && c.Timed() {
			return true
		}
	}
	return false
}

// largestOverlap returns the master/device clip pair whose metadata windows
// overlap the most. The first pair in segment order wins ties.
func largestOverlap(clips []*models.Clip, masterID, deviceID string) (*models.Clip, *models.Clip, float64) {
	var (
		bestM, bestD *models.Clip
		best         float64
	)
	for _, m := range clips {
		if m.DeviceID != masterID || !m.Timed() {
			continue
		}
		for _, d := range clips {
			if d.DeviceID != deviceID || !d.Timed() {
				continue
			}
			ov := overlapSeconds(*m.StartTime, m.End(), *d.StartTime, d.End())
			if ov > best {
				bestM, bestD, best = m, d, ov
			}
		}
	}
	return bestM, bestD, best
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

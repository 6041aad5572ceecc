package syncsession

import (
	"context"
	"fmt"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

// ClusterService groups clips into segments by start-time proximity.
type ClusterService struct {
	gap time.Duration
	log Logger
}

func NewClusterService(cfg *Config) *ClusterService {
	return &ClusterService{gap: cfg.GapThreshold, log: cfg.Logger}
}

// Cluster builds segments from timed clips, attaches untimed clips by
// filename sequence proximity and picks a master device per segment.
func (s *ClusterService) Cluster(ctx context.Context, st *runState) error {
	var timed, untimed []*models.Clip
	for _, id := range st.clipOrder {
		c := st.clips[id]
		if c.Timed() {
			timed = append(timed, c)
		} else {
			untimed = append(untimed, c)
		}
	}
	sortClips(timed)
	sortClips(untimed)

	var (
		cur    *models.SessionSegment
		maxEnd time.Time
	)
	for _, c := range timed {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		if cur != nil && !c.StartTime.After(maxEnd.Add(s.gap)) {
			cur.ClipIDs = append(cur.ClipIDs, c.ID)
			c.SegmentID = cur.ID
			if c.End().After(maxEnd) {
				maxEnd = c.End()
				cur.EndSeconds = maxEnd.Sub(st.t0).Seconds()
			}
			continue
		}
		cur = &models.SessionSegment{
			ID:            utils.StableID("segment", c.ID),
			Name:          fmt.Sprintf("Segment %d", len(st.segments)+1),
			StartSeconds:  c.StartTime.Sub(st.t0).Seconds(),
			EndSeconds:    c.End().Sub(st.t0).Seconds(),
			ClipIDs:       []string{c.ID},
			Justification: models.JustifyTimeOverlap,
		}
		maxEnd = c.End()
		c.SegmentID = cur.ID
		st.segments = append(st.segments, cur)
	}

	var unknown *models.SessionSegment
	for _, c := range untimed {
		if seg := s.nearestBySequence(st, c); seg != nil {
			seg.ClipIDs = append(seg.ClipIDs, c.ID)
			c.SegmentID = seg.ID
			continue
		}
		if unknown == nil {
			unknown = &models.SessionSegment{
				ID:            utils.StableID("segment", "unknown"),
				Name:          "Unknown",
				Justification: models.JustifyManual,
			}
		}
		unknown.ClipIDs = append(unknown.ClipIDs, c.ID)
		c.SegmentID = unknown.ID
		st.anomaly(models.AnomalyUnknownSegment, c.ID, "no start time and no numbered sibling on the same device")
	}
	if unknown != nil {
		st.segments = append(st.segments, unknown)
	}

	for _, seg := range st.segments {
		seg.MasterDeviceID = s.pickMaster(st, seg)
		for _, c := range st.segmentClips(seg) {
			if st.devices[c.DeviceID].Kind == models.DeviceRecorder {
				seg.HasRecorder = true
				break
			}
		}
	}
	if len(st.segments) > 0 {
		st.reference = st.segments[0].MasterDeviceID
	}

	s.log.Infof("Clustered %d clips into %d segments", len(st.clipOrder), len(st.segments))
	return nil
}

// nearestBySequence finds the segment of the same-device timed clip whose
// sequence number is closest to c's. Ties go to the lower number.
func (s *ClusterService) nearestBySequence(st *runState, c *models.Clip) *models.SessionSegment {
	if c.Sequence == nil {
		return nil
	}
	var (
		best     *models.Clip
		bestDist int
	)
	for _, id := range st.devices[c.DeviceID].ClipIDs {
		o := st.clips[id]
		if o == c || !o.Timed() || o.Sequence == nil || o.SegmentID == "" {
			continue
		}
		d := abs(*o.Sequence - *c.Sequence)
		if best == nil || d < bestDist || (d == bestDist && *o.Sequence < *best.Sequence) {
			best, bestDist = o, d
		}
	}
	if best == nil {
		return nil
	}
	for _, seg := range st.segments {
		if seg.ID == best.SegmentID {
			return seg
		}
	}
	return nil
}

// pickMaster prefers devices that recorded an audio-only clip in the segment,
// then the device with most clips there, then the lowest device id.
func (s *ClusterService) pickMaster(st *runState, seg *models.SessionSegment) string {
	counts := make(map[string]int)
	hasAudioClip := make(map[string]bool)
	for _, c := range st.segmentClips(seg) {
		counts[c.DeviceID]++
		if c.Kind == models.MediaAudio {
			hasAudioClip[c.DeviceID] = true
		}
	}
	pool := st.devicesIn(seg)
	if len(hasAudioClip) > 0 {
		var recorders []string
		for _, id := range pool {
			if hasAudioClip[id] {
				recorders = append(recorders, id)
			}
		}
		pool = recorders
	}
	best := ""
	for _, id := range pool {
		if best == "" || counts[id] > counts[best] || (counts[id] == counts[best] && id < best) {
			best = id
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package syncsession

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

const placeEpsilon = 1e-9

// TimelineBuilder places clips on tracks and is the only producer of
// SyncResult values.
type TimelineBuilder struct {
	mode   PlacementMode
	scorer *ConfidenceScorer
	cfg    *Config
	log    Logger
}

func NewTimelineBuilder(scorer *ConfidenceScorer, cfg *Config) *TimelineBuilder {
	return &TimelineBuilder{mode: cfg.PlacementMode, scorer: scorer, cfg: cfg, log: cfg.Logger}
}

type trackState struct {
	track *models.Track
	clips []*models.Clip
}

func (t *trackState) fits(start, dur float64) bool {
	for _, c := range t.clips {
		p := *c.TimelinePosition
		if start < p+c.DurationSeconds-placeEpsilon && p < start+dur-placeEpsilon {
			return false
		}
	}
	return true
}

type layout struct {
	st       *runState
	tracks   []*trackState
	byDevice map[string]*trackState
	overflow []*trackState
}

func (l *layout) place(c *models.Clip, pos float64, ts *trackState) {
	c.TimelinePosition = floatPtr(pos)
	c.TrackID = ts.track.ID
	ts.clips = append(ts.clips, c)
}

// latestEnd is the end of the last placed clip, or 0 on an empty timeline.
func (l *layout) latestEnd() float64 {
	end := math.Inf(-1)
	for _, ts := range l.tracks {
		for _, c := range ts.clips {
			end = math.Max(end, *c.TimelinePosition+c.DurationSeconds)
		}
	}
	if math.IsInf(end, -1) {
		return 0
	}
	return end
}

// Build lays out every clip and freezes the run into a SyncResult.
func (b *TimelineBuilder) Build(st *runState, sessionID string, createdAt time.Time) *models.SyncResult {
	l := &layout{st: st, byDevice: make(map[string]*trackState)}
	for i, devID := range st.deviceOrder {
		dev := st.devices[devID]
		kind := models.MediaVideo
		if dev.Kind == models.DeviceRecorder {
			kind = models.MediaAudio
		}
		ts := &trackState{track: &models.Track{
			ID:       utils.StableID("track", devID),
			Index:    i,
			Name:     dev.Name,
			Kind:     kind,
			DeviceID: devID,
			Color:    dev.Color,
		}}
		dev.TrackID = ts.track.ID
		l.tracks = append(l.tracks, ts)
		l.byDevice[devID] = ts
	}

	positions := b.matchedPositions(st)
	var pending []*models.Clip
	for _, devID := range st.deviceOrder {
		var own []*models.Clip
		for _, cid := range st.devices[devID].ClipIDs {
			own = append(own, st.clips[cid])
		}
		sortClips(own)
		for _, c := range own {
			if pos, ok := positions[c.ID]; ok {
				l.place(c, pos, l.byDevice[devID])
				continue
			}
			if c.Status == models.StatusMatched {
				st.anomaly(models.AnomalyUnplacedMatch, c.ID, "matched only to clips without a timeline position")
			}
			pending = append(pending, c)
		}
	}

	if b.mode == PlacementTailBin {
		b.tailBin(l, pending)
	} else {
		b.nearGap(l, pending)
	}

	return b.freeze(l, sessionID, createdAt)
}

// matchedPositions positions matched clips from their device offsets, then
// propagates along accepted edges to matched clips that have none.
func (b *TimelineBuilder) matchedPositions(st *runState) map[string]float64 {
	pos := make(map[string]float64)
	for _, id := range st.clipOrder {
		c := st.clips[id]
		if c.Status != models.StatusMatched {
			continue
		}
		if st.devices[c.DeviceID].TimeOffsetSeconds == nil {
			continue
		}
		if p, ok := st.correctedPos(c); ok {
			pos[c.ID] = p
		}
	}

	for changed := true; changed; {
		changed = false
		for _, e := range st.edges {
			if !b.scorer.Accepted(e) {
				continue
			}
			pa, okA := pos[e.ClipA]
			pb, okB := pos[e.ClipB]
			switch {
			case okA && !okB:
				pos[e.ClipB] = pa + e.OffsetSeconds
				changed = true
			case okB && !okA:
				pos[e.ClipA] = pb - e.OffsetSeconds
				changed = true
			}
		}
	}
	return pos
}

// nearGap puts each clip on an overflow track next to the placed sibling
// with the closest filename sequence number.
func (b *TimelineBuilder) nearGap(l *layout, pending []*models.Clip) {
	for _, c := range pending {
		slot, ok := b.siblingSlot(l, c)
		if !ok {
			if p, timed := l.st.metaPos(c); timed {
				slot = p + l.st.devices[c.DeviceID].Offset()
			} else {
				slot = l.latestEnd()
			}
		}
		l.place(c, slot, l.overflowFor(c, slot))
	}
}

func (b *TimelineBuilder) siblingSlot(l *layout, c *models.Clip) (float64, bool) {
	if c.Sequence == nil {
		return 0, false
	}
	var (
		best     *models.Clip
		bestDist int
	)
	for _, ts := range l.tracks {
		for _, o := range ts.clips {
			if o.DeviceID != c.DeviceID || o.Sequence == nil {
				continue
			}
			d := abs(*o.Sequence - *c.Sequence)
			if best == nil || d < bestDist || (d == bestDist && *o.Sequence < *best.Sequence) {
				best, bestDist = o, d
			}
		}
	}
	if best == nil {
		return 0, false
	}
	if *best.Sequence <= *c.Sequence {
		return *best.TimelinePosition + best.DurationSeconds, true
	}
	return *best.TimelinePosition - c.DurationSeconds, true
}

// overflowFor returns the first overflow track of the clip's kind with room at
// slot, creating one when none fits.
func (l *layout) overflowFor(c *models.Clip, slot float64) *trackState {
	for _, ts := range l.overflow {
		if ts.track.Kind == c.Kind && ts.fits(slot, c.DurationSeconds) {
			return ts
		}
	}
	n := len(l.overflow) + 1
	ts := &trackState{track: &models.Track{
		ID:       utils.StableID("track", "overflow", fmt.Sprint(n)),
		Index:    len(l.tracks),
		Name:     fmt.Sprintf("Overflow %d", n),
		Kind:     c.Kind,
		Overflow: true,
	}}
	l.tracks = append(l.tracks, ts)
	l.overflow = append(l.overflow, ts)
	return ts
}

// tailBin appends pending clips after the latest placed clip, grouped by
// device in session order, each on its own device track.
func (b *TimelineBuilder) tailBin(l *layout, pending []*models.Clip) {
	cursor := l.latestEnd()
	for _, c := range pending {
		l.place(c, cursor, l.byDevice[c.DeviceID])
		cursor += c.DurationSeconds
	}
}

func (b *TimelineBuilder) freeze(l *layout, sessionID string, createdAt time.Time) *models.SyncResult {
	st := l.st
	res := &models.SyncResult{
		SessionID:     sessionID,
		CreatedAt:     createdAt,
		FrameRate:     b.cfg.FrameRate,
		Strictness:    string(b.cfg.Strictness),
		PlacementMode: string(b.mode),
		Clips:         make(map[string]*models.Clip, len(st.clips)),
		Devices:       make(map[string]*models.Device, len(st.devices)),
		DeviceOrder:   append([]string(nil), st.deviceOrder...),
		Edges:         append([]models.MatchEdge(nil), st.edges...),
		Warnings:      append([]string(nil), st.warnings...),
		Anomalies:     append([]models.Anomaly(nil), st.anomalies...),
	}

	for _, ts := range l.tracks {
		sort.SliceStable(ts.clips, func(i, j int) bool {
			return *ts.clips[i].TimelinePosition < *ts.clips[j].TimelinePosition
		})
		t := *ts.track
		t.ClipIDs = make([]string, 0, len(ts.clips))
		for _, c := range ts.clips {
			t.ClipIDs = append(t.ClipIDs, c.ID)
		}
		res.Tracks = append(res.Tracks, t)
	}

	first := true
	var confSum float64
	for _, id := range st.clipOrder {
		c := st.clips[id]
		res.Clips[id] = models.CloneClip(c)
		res.Summary.TotalClips++
		if c.Status == models.StatusMatched {
			res.Summary.MatchedClips++
		} else {
			res.Summary.UnmatchedClips++
		}
		confSum += c.Confidence
		if c.TimelinePosition == nil {
			continue
		}
		start, end := *c.TimelinePosition, *c.TimelinePosition+c.DurationSeconds
		if first || start < res.TimelineStart {
			res.TimelineStart = start
		}
		if first || end > res.TimelineEnd {
			res.TimelineEnd = end
		}
		first = false
	}
	if res.Summary.TotalClips > 0 {
		res.Summary.AverageConfidence = confSum / float64(res.Summary.TotalClips)
	}
	for id, d := range st.devices {
		res.Devices[id] = models.CloneDevice(d)
	}

	for _, seg := range st.segments {
		s := *seg
		s.ClipIDs = append([]string(nil), seg.ClipIDs...)
		bounded := seg.Justification != models.JustifyManual
		for _, cid := range seg.ClipIDs {
			c := st.clips[cid]
			if c.TimelinePosition == nil {
				continue
			}
			start, end := *c.TimelinePosition, *c.TimelinePosition+c.DurationSeconds
			if !bounded {
				s.StartSeconds, s.EndSeconds = start, end
				bounded = true
				continue
			}
			s.StartSeconds = math.Min(s.StartSeconds, start)
			s.EndSeconds = math.Max(s.EndSeconds, end)
		}
		res.Segments = append(res.Segments, s)
	}

	b.log.Infof("Timeline built: %d tracks, %d/%d clips matched, span %.1fs..%.1fs",
		len(res.Tracks), res.Summary.MatchedClips, res.Summary.TotalClips, res.TimelineStart, res.TimelineEnd)
	return res
}

package syncsession

import (
	"fmt"
	"sort"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

// runState is the working set of one pipeline run. Stages read and write it
// in order; nothing in it outlives the run except what TimelineBuilder copies
// into the SyncResult.
type runState struct {
	clips       map[string]*models.Clip
	clipOrder   []string
	devices     map[string]*models.Device
	deviceOrder []string

	segments []*models.SessionSegment
	edges    []models.MatchEdge

	// t0 is the earliest start among timed clips; timeline second 0.
	t0    time.Time
	hasT0 bool

	reference string
	anchored  map[string]string
	links     []anchorLink

	warnings  []string
	anomalies []models.Anomaly
}

// anchorLink pins device to partner's offset plus delta.
type anchorLink struct {
	device  string
	partner string
	delta   float64
}

func newRunState() *runState {
	return &runState{
		clips:    make(map[string]*models.Clip),
		devices:  make(map[string]*models.Device),
		anchored: make(map[string]string),
	}
}

func (st *runState) warnf(log Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	st.warnings = append(st.warnings, msg)
	log.Warnf("%s", msg)
}

func (st *runState) anomaly(kind, clipID, detail string) {
	st.anomalies = append(st.anomalies, models.Anomaly{Kind: kind, ClipID: clipID, Detail: detail})
}

// metaPos is the clip's metadata start in timeline seconds, ignoring device
// offsets.
func (st *runState) metaPos(c *models.Clip) (float64, bool) {
	if c.StartTime == nil || !st.hasT0 {
		return 0, false
	}
	return c.StartTime.Sub(st.t0).Seconds(), true
}

// correctedPos applies the device clock correction to the metadata start.
func (st *runState) correctedPos(c *models.Clip) (float64, bool) {
	pos, ok := st.metaPos(c)
	if !ok {
		return 0, false
	}
	if d := st.devices[c.DeviceID]; d != nil {
		pos += d.Offset()
	}
	return pos, true
}

func (st *runState) segmentClips(seg *models.SessionSegment) []*models.Clip {
	out := make([]*models.Clip, 0, len(seg.ClipIDs))
	for _, id := range seg.ClipIDs {
		out = append(out, st.clips[id])
	}
	return out
}

// devicesIn returns the device ids present in the segment in session order.
func (st *runState) devicesIn(seg *models.SessionSegment) []string {
	present := make(map[string]bool)
	for _, id := range seg.ClipIDs {
		present[st.clips[id].DeviceID] = true
	}
	var out []string
	for _, id := range st.deviceOrder {
		if present[id] {
			out = append(out, id)
		}
	}
	return out
}

// sortClips orders clips by start time (untimed last), then sequence, then path.
func sortClips(clips []*models.Clip) {
	sort.SliceStable(clips, func(i, j int) bool {
		a, b := clips[i], clips[j]
		if a.Timed() != b.Timed() {
			return a.Timed()
		}
		if a.Timed() && !a.StartTime.Equal(*b.StartTime) {
			return a.StartTime.Before(*b.StartTime)
		}
		sa, sb := seqOr(a, -1), seqOr(b, -1)
		if sa != sb {
			return sa < sb
		}
		return a.Path < b.Path
	})
}

func seqOr(c *models.Clip, def int) int {
	if c.Sequence == nil {
		return def
	}
	return *c.Sequence
}

func overlapSeconds(aStart, aEnd, bStart, bEnd time.Time) float64 {
	lo := aStart
	if bStart.After(lo) {
		lo = bStart
	}
	hi := aEnd
	if bEnd.Before(hi) {
		hi = bEnd
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo).Seconds()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func floatPtr(v float64) *float64 {
	return &v
}

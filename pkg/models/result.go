package models

import (
	"sort"
	"time"
)

// Anomaly kinds recorded on a SyncResult.
const (
	AnomalyUnknownSegment = "unknown_segment"
	AnomalySequenceOrder  = "sequence_order"
	AnomalyTimeUnknown    = "time_unknown"
	AnomalyUnplacedMatch  = "unplaced_match"
	AnomalySkippedPair    = "skipped_pair"
)

// Anomaly is a non-fatal irregularity the caller may want to resolve by hand.
type Anomaly struct {
	Kind   string `json:"kind"`
	ClipID string `json:"clip_id,omitempty"`
	Detail string `json:"detail"`
}

// Summary holds the counters shown alongside a timeline.
type Summary struct {
	TotalClips        int     `json:"total_clips"`
	MatchedClips      int     `json:"matched_clips"`
	UnmatchedClips    int     `json:"unmatched_clips"`
	AverageConfidence float64 `json:"average_confidence"`
}

// SyncResult is the frozen output of one pipeline run.
type SyncResult struct {
	SessionID     string             `json:"session_id"`
	CreatedAt     time.Time          `json:"created_at"`
	FrameRate     float64            `json:"frame_rate"`
	Strictness    string             `json:"strictness"`
	PlacementMode string             `json:"placement_mode"`
	Clips         map[string]*Clip   `json:"clips"`
	Devices       map[string]*Device `json:"devices"`
	DeviceOrder   []string           `json:"device_order"`
	Tracks        []Track            `json:"tracks"`
	Segments      []SessionSegment   `json:"segments"`
	Edges         []MatchEdge        `json:"edges"`
	TimelineStart float64            `json:"timeline_start"`
	TimelineEnd   float64            `json:"timeline_end"`
	Summary       Summary            `json:"summary"`
	Warnings      []string           `json:"warnings"`
	Anomalies     []Anomaly          `json:"anomalies"`
}

// ClipIDs returns clip ids in lexical order.
func (r *SyncResult) ClipIDs() []string {
	ids := make([]string, 0, len(r.Clips))
	for id := range r.Clips {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Track returns the track with the given id.
func (r *SyncResult) Track(id string) (*Track, bool) {
	for i := range r.Tracks {
		if r.Tracks[i].ID == id {
			return &r.Tracks[i], true
		}
	}
	return nil, false
}

// ClipByPath finds a clip by its source path.
func (r *SyncResult) ClipByPath(path string) (*Clip, bool) {
	for _, c := range r.Clips {
		if c.Path == path {
			return c, true
		}
	}
	return nil, false
}

// EdgesFor returns every edge touching the clip, in result order.
func (r *SyncResult) EdgesFor(clipID string) []MatchEdge {
	var out []MatchEdge
	for _, e := range r.Edges {
		if e.ClipA == clipID || e.ClipB == clipID {
			out = append(out, e)
		}
	}
	return out
}

// CloneClip returns a deep copy so a frozen result never shares state with a run.
func CloneClip(c *Clip) *Clip {
	if c == nil {
		return nil
	}
	cp := *c
	if c.StartTime != nil {
		t := *c.StartTime
		cp.StartTime = &t
	}
	if c.SampleRate != nil {
		v := *c.SampleRate
		cp.SampleRate = &v
	}
	if c.FrameRate != nil {
		v := *c.FrameRate
		cp.FrameRate = &v
	}
	if c.TimelinePosition != nil {
		v := *c.TimelinePosition
		cp.TimelinePosition = &v
	}
	if c.Sequence != nil {
		v := *c.Sequence
		cp.Sequence = &v
	}
	return &cp
}

// CloneDevice returns a deep copy of d.
func CloneDevice(d *Device) *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.TimeOffsetSeconds != nil {
		v := *d.TimeOffsetSeconds
		cp.TimeOffsetSeconds = &v
	}
	cp.ClipIDs = append([]string(nil), d.ClipIDs...)
	return &cp
}

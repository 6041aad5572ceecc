package models

import "time"

// MediaKind distinguishes picture-bearing clips from audio-only recordings.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// SyncStatus is the outcome of matching for a single clip.
type SyncStatus string

const (
	StatusUnprocessed SyncStatus = "unprocessed"
	StatusMatched     SyncStatus = "matched"
	StatusUnmatched   SyncStatus = "unmatched"
)

// TimeSource records where a clip's wall-clock start came from.
type TimeSource string

const (
	TimeSourceEmbedded TimeSource = "embedded"
	TimeSourceMtime    TimeSource = "mtime"
	TimeSourceNone     TimeSource = "none"
)

// DeviceKind is derived from the media a device produced.
type DeviceKind string

const (
	DeviceCamera   DeviceKind = "camera"
	DeviceRecorder DeviceKind = "recorder"
)

// OffsetSource names the stage that last wrote a device offset.
type OffsetSource string

const (
	OffsetNone     OffsetSource = ""
	OffsetMetadata OffsetSource = "metadata"
	OffsetAudio    OffsetSource = "audio"
	OffsetAnchor   OffsetSource = "anchor"
)

// Justification explains why clips were grouped into one segment.
type Justification string

const (
	JustifyTimeOverlap Justification = "time_overlap"
	JustifyAudioLink   Justification = "audio_link"
	JustifyManual      Justification = "manual"
)

// MatchType is the kind of evidence behind a MatchEdge.
type MatchType string

const (
	MatchAudio    MatchType = "audio"
	MatchAnchor   MatchType = "anchor"
	MatchMetadata MatchType = "metadata"
)

// AnchorType selects how an anchor offset is derived.
type AnchorType string

const (
	AnchorClipToClip   AnchorType = "clip_to_clip"
	AnchorExplicitTime AnchorType = "explicit_time"
)

// Reason codes attached to edges for diagnostics.
const (
	ReasonLowAudio       = "low_audio"
	ReasonNoisyEnv       = "noisy_env"
	ReasonAmbiguousPeak  = "ambiguous_peak"
	ReasonLowCorrelation = "low_correlation"
	ReasonDrift          = "drift_detected"
	ReasonTimeUnknown    = "time_unknown"
	ReasonUnconstrained  = "unconstrained_window"
)

// Clip is one media file under sync. Path, duration and device never change
// after ingest; the remaining fields are rewritten by later stages.
type Clip struct {
	ID                    string     `json:"id"`
	Path                  string     `json:"path"`
	StartTime             *time.Time `json:"start_time,omitempty"`
	TimeSource            TimeSource `json:"time_source"`
	TimeUnknown           bool       `json:"time_unknown,omitempty"`
	TimecodeOriginSeconds float64    `json:"timecode_origin_seconds,omitempty"`
	DurationSeconds       float64    `json:"duration_seconds"`
	DurationFrames        int64      `json:"duration_frames"`
	DeviceID              string     `json:"device_id"`
	Color                 string     `json:"color,omitempty"`
	Kind                  MediaKind  `json:"kind"`
	SampleRate            *int       `json:"sample_rate,omitempty"`
	FrameRate             *float64   `json:"frame_rate,omitempty"`
	HasAudio              bool       `json:"has_audio"`
	Status                SyncStatus `json:"status"`
	Confidence            float64    `json:"confidence"`
	TimelinePosition      *float64   `json:"timeline_position,omitempty"`
	TrackID               string     `json:"track_id,omitempty"`
	SegmentID             string     `json:"segment_id,omitempty"`
	Sequence              *int       `json:"sequence,omitempty"`
	SequenceAnomaly       bool       `json:"sequence_anomaly,omitempty"`
}

// Timed reports whether the clip carries a usable wall-clock start.
func (c *Clip) Timed() bool {
	return c.StartTime != nil
}

// End returns the metadata end time; only meaningful for timed clips.
func (c *Clip) End() time.Time {
	if c.StartTime == nil {
		return time.Time{}
	}
	return c.StartTime.Add(time.Duration(c.DurationSeconds * float64(time.Second)))
}

// Device is a physical camera or recorder, identified by its source folder.
type Device struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Kind              DeviceKind   `json:"kind"`
	SourceFolder      string       `json:"source_folder"`
	Color             string       `json:"color,omitempty"`
	TimeOffsetSeconds *float64     `json:"time_offset_seconds,omitempty"`
	OffsetConfidence  float64      `json:"offset_confidence"`
	OffsetSource      OffsetSource `json:"offset_source,omitempty"`
	ClipIDs           []string     `json:"clip_ids"`
	TrackID           string       `json:"track_id,omitempty"`
}

// Offset returns the device clock correction, or 0 when unset.
func (d *Device) Offset() float64 {
	if d.TimeOffsetSeconds == nil {
		return 0
	}
	return *d.TimeOffsetSeconds
}

// SetOffset records a new clock correction and the stage that produced it.
func (d *Device) SetOffset(seconds, confidence float64, source OffsetSource) {
	v := seconds
	d.TimeOffsetSeconds = &v
	d.OffsetConfidence = confidence
	d.OffsetSource = source
}

// Track is a timeline lane. Overflow tracks have no owning device.
type Track struct {
	ID       string    `json:"id"`
	Index    int       `json:"index"`
	Name     string    `json:"name"`
	Kind     MediaKind `json:"kind"`
	DeviceID string    `json:"device_id,omitempty"`
	Color    string    `json:"color,omitempty"`
	ClipIDs  []string  `json:"clip_ids"`
	Overflow bool      `json:"overflow,omitempty"`
}

// SessionSegment groups temporally related clips, typically one take.
type SessionSegment struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	StartSeconds   float64       `json:"start_seconds"`
	EndSeconds     float64       `json:"end_seconds"`
	ClipIDs        []string      `json:"clip_ids"`
	Justification  Justification `json:"justification"`
	HasRecorder    bool          `json:"has_recorder"`
	MasterDeviceID string        `json:"master_device_id,omitempty"`
}

// MatchEdge relates two clips by id. OffsetSeconds is the timeline start of
// B minus the timeline start of A.
type MatchEdge struct {
	ID                 string    `json:"id"`
	ClipA              string    `json:"clip_a"`
	ClipB              string    `json:"clip_b"`
	Type               MatchType `json:"type"`
	Confidence         float64   `json:"confidence"`
	OffsetSeconds      float64   `json:"offset_seconds"`
	SampleOffset       *int64    `json:"sample_offset,omitempty"`
	PriorOffsetSeconds *float64  `json:"prior_offset_seconds,omitempty"`
	SNR                *float64  `json:"snr_db,omitempty"`
	PeakValue          *float64  `json:"peak_value,omitempty"`
	SecondaryPeak      *float64  `json:"secondary_peak,omitempty"`
	DriftSeconds       *float64  `json:"drift_seconds,omitempty"`
	Ambiguous          bool      `json:"ambiguous"`
	Reasons            []string  `json:"reasons,omitempty"`
	SegmentID          string    `json:"segment_id,omitempty"`
	AnchorID           string    `json:"anchor_id,omitempty"`
}

// HasReason reports whether the edge carries the given reason code.
func (e *MatchEdge) HasReason(code string) bool {
	for _, r := range e.Reasons {
		if r == code {
			return true
		}
	}
	return false
}

// Anchor is a user-declared correspondence between two clips.
type Anchor struct {
	ID                   string     `json:"id"`
	ClipA                string     `json:"clip_a"`
	ClipB                string     `json:"clip_b"`
	Type                 AnchorType `json:"type"`
	TimeInA              *float64   `json:"time_in_a,omitempty"`
	TimeInB              *float64   `json:"time_in_b,omitempty"`
	FrameRate            float64    `json:"frame_rate,omitempty"`
	OffsetSeconds        float64    `json:"offset_seconds"`
	AudioRefined         bool       `json:"audio_refined"`
	RefinedOffsetSeconds *float64   `json:"refined_offset_seconds,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// EffectiveOffset prefers the audio-refined offset when one exists.
func (a *Anchor) EffectiveOffset() float64 {
	if a.AudioRefined && a.RefinedOffsetSeconds != nil {
		return *a.RefinedOffsetSeconds
	}
	return a.OffsetSeconds
}

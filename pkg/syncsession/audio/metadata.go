package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
)

type probeOutput struct {
	Format struct {
		Filename string            `json:"filename"`
		Duration string            `json:"duration"`
		Format   string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	SampleRate   string            `json:"sample_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Duration     string            `json:"duration"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
}

func (s *probeStream) tag(key string) string {
	return lookupTag(s.Tags, key)
}

// lookupTag is case-insensitive; muxers disagree on tag capitalisation.
func lookupTag(tags map[string]string, key string) string {
	if v, ok := tags[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var creationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

func parseCreationTime(v string) (time.Time, bool) {
	for _, layout := range creationLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseRate accepts ffprobe rationals ("30000/1001") and plain numbers.
func parseRate(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(v, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 || n <= 0 {
			return 0, false
		}
		return n / d, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseProbe converts ffprobe JSON into MediaMetadata. defaultFPS is used to
// read the start timecode of audio-only files.
//
// The start time comes from creation_time (container, then streams), falling
// back to the Broadcast WAV origination date and time, which recorders write
// in local wall-clock time and which is read here as UTC.
func ParseProbe(data []byte, defaultFPS float64) (syncsession.MediaMetadata, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return syncsession.MediaMetadata{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var md syncsession.MediaMetadata
	md.DurationSeconds, _ = strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)

	timecode := lookupTag(probe.Format.Tags, "timecode")
	created := lookupTag(probe.Format.Tags, "creation_time")

	var streamDur float64
	for i := range probe.Streams {
		s := &probe.Streams[i]
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			streamDur = math.Max(streamDur, d)
		}
		if timecode == "" {
			timecode = s.tag("timecode")
		}
		if created == "" {
			created = s.tag("creation_time")
		}

		switch s.CodecType {
		case "video":
			if s.Disposition["attached_pic"] == 1 {
				continue
			}
			md.HasVideo = true
			if md.FrameRate == nil {
				fps, ok := parseRate(s.AvgFrameRate)
				if !ok {
					fps, ok = parseRate(s.RFrameRate)
				}
				if ok {
					md.FrameRate = &fps
				}
			}
		case "audio":
			md.HasAudio = true
			if md.SampleRate == nil {
				if sr, err := strconv.Atoi(s.SampleRate); err == nil && sr > 0 {
					md.SampleRate = &sr
				}
			}
		}
	}

	if md.DurationSeconds <= 0 {
		md.DurationSeconds = streamDur
	}

	if t, ok := parseCreationTime(created); ok {
		md.StartTime = &t
	} else {
		date := lookupTag(probe.Format.Tags, "origination_date")
		clock := lookupTag(probe.Format.Tags, "origination_time")
		if date != "" && clock != "" {
			clock = strings.ReplaceAll(clock, "-", ":")
			if t, ok := parseCreationTime(date + " " + clock); ok {
				md.StartTime = &t
			}
		}
	}

	if timecode != "" {
		fps := defaultFPS
		if md.FrameRate != nil {
			fps = math.Round(*md.FrameRate)
		}
		// Drop-frame timecodes use ';' before the frame field; the origin
		// only needs to be consistent within one clip. An unreadable tag
		// leaves the origin at zero.
		tc := strings.ReplaceAll(timecode, ";", ":")
		if origin, err := syncsession.ParseTimecode(tc, fps); err == nil {
			md.TimecodeOriginSeconds = origin
		}
	}

	return md, nil
}

// FFprobeProvider is a MetadataProvider backed by the ffprobe binary.
type FFprobeProvider struct {
	// Binary defaults to "ffprobe" on PATH.
	Binary string
	// DefaultFrameRate reads timecodes on files without a video stream.
	DefaultFrameRate float64
	// Timeout bounds one probe when ctx has no deadline.
	Timeout time.Duration
}

func NewFFprobeProvider(defaultFPS float64) *FFprobeProvider {
	return &FFprobeProvider{Binary: "ffprobe", DefaultFrameRate: defaultFPS, Timeout: 10 * time.Second}
}

func (p *FFprobeProvider) Probe(ctx context.Context, path string) (syncsession.MediaMetadata, error) {
	if _, ok := ctx.Deadline(); !ok && p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(
		ctx,
		binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"--", path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return syncsession.MediaMetadata{}, ctx.Err()
		}
		return syncsession.MediaMetadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	fps := p.DefaultFrameRate
	if fps <= 0 {
		fps = 25
	}
	return ParseProbe(out, fps)
}

package syncsession

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var timecodePattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}):(\d{2})$`)

// ParseTimecodeFrames parses HH:MM:SS:FF at fps and returns the position in
// frames. Fractional rates yield fractional frame counts.
func ParseTimecodeFrames(tc string, fps float64) (float64, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, &InvalidTimecodeError{Value: tc, Reason: fmt.Sprintf("frame rate %v is not positive", fps)}
	}
	m := timecodePattern.FindStringSubmatch(tc)
	if m == nil {
		return 0, &InvalidTimecodeError{Value: tc, Reason: "want HH:MM:SS:FF"}
	}
	var parts [4]int
	for i := range parts {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, &InvalidTimecodeError{Value: tc, Reason: err.Error()}
		}
		parts[i] = v
	}
	hh, mm, ss, ff := parts[0], parts[1], parts[2], parts[3]
	if mm > 59 || ss > 59 {
		return 0, &InvalidTimecodeError{Value: tc, Reason: "minutes and seconds must be below 60"}
	}
	if float64(ff) >= fps {
		return 0, &InvalidTimecodeError{Value: tc, Reason: fmt.Sprintf("frame %d is not below %v fps", ff, fps)}
	}
	whole := hh*3600 + mm*60 + ss
	return float64(whole)*fps + float64(ff), nil
}

// ParseTimecode parses HH:MM:SS:FF at fps into seconds.
func ParseTimecode(tc string, fps float64) (float64, error) {
	frames, err := ParseTimecodeFrames(tc, fps)
	if err != nil {
		return 0, err
	}
	return frames / fps, nil
}

// FormatTimecode renders seconds as HH:MM:SS:FF at fps, rounding to the
// nearest frame. Negative values are clamped to zero.
func FormatTimecode(seconds, fps float64) string {
	if fps <= 0 {
		fps = 25
	}
	if seconds < 0 {
		seconds = 0
	}
	nominal := int(math.Round(fps))
	total := int(math.Round(seconds * fps))
	ff := total % nominal
	whole := total / nominal
	return fmt.Sprintf("%02d:%02d:%02d:%02d", whole/3600, whole/60%60, whole%60, ff)
}

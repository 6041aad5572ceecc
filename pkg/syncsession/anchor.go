package syncsession

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

// AnchorRequest asks for a new anchor between two clips.
//
// For explicit_time anchors TimecodeA and TimecodeB mark the same instant in
// each clip. They are clip-relative unless SourceTimecode is set, in which
// case each clip's embedded start timecode is subtracted first.
//
// For clip_to_clip anchors Lag is the offset of B relative to A as the user
// lined it up; when nil the lag shown by the previous result is used.
type AnchorRequest struct {
	ClipA           string
	ClipB           string
	Type            models.AnchorType
	TimecodeA       string
	TimecodeB       string
	FrameRate       float64
	SourceTimecode  bool
	Lag             *float64
	RefineWithAudio bool
}

// AnchorController validates anchor requests and applies stored anchors to a
// run before audio matching.
type AnchorController struct {
	audio AudioProcessor
	cfg   *Config
	log   Logger
}

func NewAnchorController(audio AudioProcessor, cfg *Config) *AnchorController {
	return &AnchorController{audio: audio, cfg: cfg, log: cfg.Logger}
}

// Create validates req against prev and returns a new immutable anchor.
func (c *AnchorController) Create(ctx context.Context, prev *models.SyncResult, req AnchorRequest) (*models.Anchor, error) {
	if prev == nil {
		return nil, ErrNotRun
	}
	a, ok := prev.Clips[req.ClipA]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, req.ClipA)
	}
	b, ok := prev.Clips[req.ClipB]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, req.ClipB)
	}
	if a.ID == b.ID {
		return nil, ErrSameClip
	}
	if a.DeviceID == b.DeviceID {
		return nil, ErrSameDevice
	}

	anchor := &models.Anchor{
		ID:        utils.GenerateUUID(),
		ClipA:     a.ID,
		ClipB:     b.ID,
		Type:      req.Type,
		CreatedAt: c.cfg.Clock(),
	}

	switch req.Type {
	case models.AnchorExplicitTime:
		fps := req.FrameRate
		if fps == 0 {
			fps = c.cfg.FrameRate
		}
		fa, err := ParseTimecodeFrames(req.TimecodeA, fps)
		if err != nil {
			return nil, err
		}
		fb, err := ParseTimecodeFrames(req.TimecodeB, fps)
		if err != nil {
			return nil, err
		}
		if req.SourceTimecode {
			fa -= math.Round(a.TimecodeOriginSeconds * fps)
			fb -= math.Round(b.TimecodeOriginSeconds * fps)
		}
		anchor.FrameRate = fps
		anchor.TimeInA = floatPtr(fa / fps)
		anchor.TimeInB = floatPtr(fb / fps)
		anchor.OffsetSeconds = (fa - fb) / fps

	case models.AnchorClipToClip:
		lag := expectedLag(prev, a, b)
		if req.Lag != nil {
			lag = *req.Lag
		}
		anchor.OffsetSeconds = lag
		if req.RefineWithAudio {
			refined, ok, err := c.refine(ctx, a, b, lag)
			if err != nil {
				return nil, err
			}
			if ok {
				anchor.AudioRefined = true
				anchor.RefinedOffsetSeconds = &refined
			}
		}

	default:
		return nil, fmt.Errorf("%w: unknown anchor type %q", ErrInvalidAnchor, req.Type)
	}

	c.log.Infof("Created %s anchor %s: %s -> %s offset %.3fs", anchor.Type, anchor.ID, a.Path, b.Path, anchor.EffectiveOffset())
	return anchor, nil
}

// expectedLag is the lag of b relative to a shown by prev, falling back to
// metadata starts and then zero.
func expectedLag(prev *models.SyncResult, a, b *models.Clip) float64 {
	if a.TimelinePosition != nil && b.TimelinePosition != nil {
		return *b.TimelinePosition - *a.TimelinePosition
	}
	if a.StartTime != nil && b.StartTime != nil {
		lag := b.StartTime.Sub(*a.StartTime).Seconds()
		if d := prev.Devices[b.DeviceID]; d != nil {
			lag += d.Offset()
		}
		if d := prev.Devices[a.DeviceID]; d != nil {
			lag -= d.Offset()
		}
		return lag
	}
	return 0
}

// refine runs one bounded correlation around lag. It reports false when the
// audio cannot confirm the alignment; only cancellation is an error.
func (c *AnchorController) refine(ctx context.Context, a, b *models.Clip, lag float64) (float64, bool, error) {
	if !a.HasAudio || !b.HasAudio {
		c.log.Warnf("Anchor refine skipped: %s or %s has no audio", a.Path, b.Path)
		return 0, false, nil
	}
	fa, fb, err := c.loadFeatures(ctx, a.Path, b.Path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, cancelled(ctx.Err())
		}
		c.log.Warnf("Anchor refine skipped: %v", err)
		return 0, false, nil
	}
	rate := fa.Rate
	center := int(math.Round(lag * rate))
	hw := int(math.Round(c.cfg.AnchorWindow.Seconds() * rate))
	k, strength, err := c.audio.CrossCorrelate(fa, fb, center-hw, center+hw)
	if err != nil {
		c.log.Warnf("Anchor refine failed for %s -> %s: %v", a.Path, b.Path, err)
		return 0, false, nil
	}
	if strength < c.cfg.MinPeakStrength {
		c.log.Warnf("Anchor refine peak %.2f below %.2f; keeping manual offset", strength, c.cfg.MinPeakStrength)
		return 0, false, nil
	}
	return float64(k) / rate, true, nil
}

func (c *AnchorController) loadFeatures(ctx context.Context, pathA, pathB string) (Features, Features, error) {
	sa, err := c.audio.Load(ctx, pathA)
	if err != nil {
		return Features{}, Features{}, fmt.Errorf("load %s: %w", pathA, err)
	}
	fa, err := c.audio.ExtractFeatures(sa)
	if err != nil {
		return Features{}, Features{}, fmt.Errorf("features %s: %w", pathA, err)
	}
	sb, err := c.audio.Load(ctx, pathB)
	if err != nil {
		return Features{}, Features{}, fmt.Errorf("load %s: %w", pathB, err)
	}
	fb, err := c.audio.ExtractFeatures(sb)
	if err != nil {
		return Features{}, Features{}, fmt.Errorf("features %s: %w", pathB, err)
	}
	if fa.Rate <= 0 || math.Abs(fa.Rate-fb.Rate) > 1e-9 {
		return Features{}, Features{}, fmt.Errorf("feature rates differ: %v vs %v", fa.Rate, fb.Rate)
	}
	return fa, fb, nil
}

// Apply writes anchor offsets into the run, in creation order, keeping only
// the most recent anchor per device pair. The anchored device is B's unless
// B's device is the session reference, in which case A's moves instead.
func (c *AnchorController) Apply(ctx context.Context, st *runState, anchors []models.Anchor) error {
	ordered := append([]models.Anchor(nil), anchors...)
	sortAnchors(ordered)

	latest := make(map[string]int)
	for i, an := range ordered {
		a, b := st.clips[an.ClipA], st.clips[an.ClipB]
		if a == nil || b == nil {
			continue
		}
		latest[pairKey(a.DeviceID, b.DeviceID)] = i
	}

	applied := 0
	for i, an := range ordered {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		a, b := st.clips[an.ClipA], st.clips[an.ClipB]
		if a == nil || b == nil {
			st.warnf(c.log, "anchor %s references clips not in this run; ignored", an.ID)
			continue
		}
		if latest[pairKey(a.DeviceID, b.DeviceID)] != i {
			c.log.Debugf("Anchor %s superseded", an.ID)
			continue
		}

		lag := an.EffectiveOffset()
		devA, devB := st.devices[a.DeviceID], st.devices[b.DeviceID]
		posA, okA := st.metaPos(a)
		posB, okB := st.metaPos(b)
		if !okA || !okB {
			posA, posB = 0, 0
		}
		link := anchorLink{device: devB.ID, partner: devA.ID, delta: posA + lag - posB}
		if devB.ID == st.reference && devA.ID != st.reference {
			link = anchorLink{device: devA.ID, partner: devB.ID, delta: posB - lag - posA}
		}
		st.devices[link.device].SetOffset(st.devices[link.partner].Offset()+link.delta, 1, models.OffsetAnchor)
		st.anchored[link.device] = an.ID
		st.links = append(st.links, link)

		st.edges = append(st.edges, models.MatchEdge{
			ID:            utils.StableID("edge", string(models.MatchAnchor), an.ID),
			ClipA:         a.ID,
			ClipB:         b.ID,
			Type:          models.MatchAnchor,
			OffsetSeconds: lag,
			SegmentID:     b.SegmentID,
			AnchorID:      an.ID,
		})
		applied++
	}
	if applied > 0 {
		c.log.Infof("Applied %d anchors", applied)
	}
	return nil
}

// Settle re-derives anchored offsets from their partners' final offsets, in
// creation order. Audio resolution may move a partner after Apply, and chained
// anchors need one pass per link to propagate.
func (c *AnchorController) Settle(st *runState) {
	for range st.links {
		for _, l := range st.links {
			dev := st.devices[l.device]
			want := st.devices[l.partner].Offset() + l.delta
			if dev.Offset() != want {
				dev.SetOffset(want, 1, models.OffsetAnchor)
			}
		}
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// sortAnchors orders anchors by creation time.
func sortAnchors(anchors []models.Anchor) {
	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].CreatedAt.Before(anchors[j].CreatedAt)
	})
}

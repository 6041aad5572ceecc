package syncsession

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/dsp"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

const unboundedLag = math.MaxInt32

// AudioMatcher refines device offsets with bounded cross-correlation between
// each non-master clip and a reference clip on the segment's master device.
type AudioMatcher struct {
	audio AudioProcessor
	cfg   *Config
	log   Logger
}

func NewAudioMatcher(audio AudioProcessor, cfg *Config) *AudioMatcher {
	return &AudioMatcher{audio: audio, cfg: cfg, log: cfg.Logger}
}

type matchJob struct {
	segment *models.SessionSegment
	ref     *models.Clip
	other   *models.Clip
	// prior is the expected lag of other relative to ref, in seconds.
	prior     *float64
	halfWidth float64
}

type jobResult struct {
	edge *models.MatchEdge
	skip string
}

type chunk struct {
	start, end int
	lo, hi     int
	transient  float64
}

type chunkMatch struct {
	chunk
	lag      int
	strength float64
}

// Match correlates every planned pair, in parallel up to cfg.Workers, and
// appends the resulting audio edges to st in job order.
func (m *AudioMatcher) Match(ctx context.Context, st *runState, progress func(done, total int, item string)) error {
	jobs := m.plan(st)
	results := make([]jobResult, len(jobs))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return cancelled(err)
			}
			res, err := m.matchPair(gctx, jobs[i])
			if err != nil {
				return err
			}
			results[i] = res

			mu.Lock()
			done++
			progress(done, len(jobs), jobs[i].other.Path)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return err
	}

	matched := 0
	for i, res := range results {
		if res.edge == nil {
			st.warnf(m.log, "skipped %s -> %s: %s", jobs[i].ref.Path, jobs[i].other.Path, res.skip)
			st.anomaly(models.AnomalySkippedPair, jobs[i].other.ID, res.skip)
			continue
		}
		st.edges = append(st.edges, *res.edge)
		matched++
	}
	m.log.Infof("Audio matching produced %d edges from %d pairs", matched, len(jobs))
	return nil
}

// plan pairs every non-master clip in a segment with the master clip it most
// likely overlaps, skipping pairs without audio.
func (m *AudioMatcher) plan(st *runState) []matchJob {
	var jobs []matchJob
	for _, seg := range st.segments {
		clips := st.segmentClips(seg)
		sortClips(clips)
		var masters []*models.Clip
		for _, c := range clips {
			if c.DeviceID == seg.MasterDeviceID {
				masters = append(masters, c)
			}
		}
		if len(masters) == 0 {
			continue
		}
		for _, devID := range st.devicesIn(seg) {
			if devID == seg.MasterDeviceID {
				continue
			}
			for _, c := range clips {
				if c.DeviceID != devID {
					continue
				}
				ref := m.pickReference(st, masters, c)
				if !ref.HasAudio || !c.HasAudio {
					st.warnf(m.log, "skipped %s -> %s: no audio stream", ref.Path, c.Path)
					st.anomaly(models.AnomalySkippedPair, c.ID, "no audio stream")
					continue
				}
				job := matchJob{segment: seg, ref: ref, other: c}
				posRef, okRef := st.correctedPos(ref)
				posC, okC := st.correctedPos(c)
				if okRef && okC {
					job.prior = floatPtr(posC - posRef)
					job.halfWidth = m.cfg.WindowHalfWidth.Seconds()
					if st.anchored[ref.DeviceID] != "" || st.anchored[c.DeviceID] != "" {
						job.halfWidth = m.cfg.AnchorWindow.Seconds()
					}
				}
				jobs = append(jobs, job)
			}
		}
	}
	return jobs
}

// pickReference chooses the master clip with the largest corrected overlap,
// then the nearest one, then the longest.
func (m *AudioMatcher) pickReference(st *runState, masters []*models.Clip, c *models.Clip) *models.Clip {
	var (
		best      *models.Clip
		bestScore = math.Inf(-1)
	)
	posC, okC := st.correctedPos(c)
	for _, r := range masters {
		score := r.DurationSeconds * 1e-6
		if posR, okR := st.correctedPos(r); okC && okR {
			lo := math.Max(posR, posC)
			hi := math.Min(posR+r.DurationSeconds, posC+c.DurationSeconds)
			score = hi - lo
		}
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}

func (m *AudioMatcher) matchPair(ctx context.Context, job matchJob) (jobResult, error) {
	skip := func(format string, args ...any) (jobResult, error) {
		if err := ctx.Err(); err != nil {
			return jobResult{}, cancelled(err)
		}
		return jobResult{skip: fmt.Sprintf(format, args...)}, nil
	}

	if job.prior != nil {
		lo := *job.prior - job.halfWidth
		hi := *job.prior + job.halfWidth
		if hi <= -job.other.DurationSeconds || lo >= job.ref.DurationSeconds {
			return skip("search window %.1fs..%.1fs does not overlap the reference clip", lo, hi)
		}
	}

	sa, err := m.audio.Load(ctx, job.ref.Path)
	if err != nil {
		return skip("load %s: %v", job.ref.Path, err)
	}
	sb, err := m.audio.Load(ctx, job.other.Path)
	if err != nil {
		return skip("load %s: %v", job.other.Path, err)
	}

	var reasons []string
	level := math.Min(dsp.LevelDBFS(sa.Data), dsp.LevelDBFS(sb.Data))
	if level < m.cfg.SilenceDBFS {
		return skip("no usable audio (%.1f dBFS)", level)
	}
	if level < m.cfg.LowAudioDBFS {
		reasons = append(reasons, models.ReasonLowAudio)
	}
	snr := math.Min(dsp.EstimateSNR(sa.Data, sa.SampleRate), dsp.EstimateSNR(sb.Data, sb.SampleRate))
	if snr < m.cfg.NoisySNRDB {
		reasons = append(reasons, models.ReasonNoisyEnv)
	}

	fa, err := m.audio.ExtractFeatures(sa)
	if err != nil {
		return skip("features %s: %v", job.ref.Path, err)
	}
	fb, err := m.audio.ExtractFeatures(sb)
	if err != nil {
		return skip("features %s: %v", job.other.Path, err)
	}
	refRate := sa.SampleRate

	if fa.Rate <= 0 || math.Abs(fa.Rate-fb.Rate) > 1e-9 {
		return skip("feature rates differ: %v vs %v", fa.Rate, fb.Rate)
	}
	rate := fa.Rate

	lo, hi := -unboundedLag, unboundedLag
	if job.prior != nil {
		center := int(math.Round(*job.prior * rate))
		hw := int(math.Round(job.halfWidth * rate))
		lo, hi = center-hw, center+hw
	} else {
		reasons = append(reasons, models.ReasonUnconstrained)
	}

	chunks := m.selectChunks(fa, fb, lo, hi, &reasons)
	if len(chunks) == 0 {
		return skip("search window falls outside the clip overlap")
	}

	var results []chunkMatch
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return jobResult{}, cancelled(err)
		}
		piece := Features{Data: fb.Data[ch.start:ch.end], Rate: rate}
		k, strength, err := m.audio.CrossCorrelate(fa, piece, ch.lo, ch.hi)
		if err != nil {
			m.log.Debugf("Chunk %d-%d of %s: %v", ch.start, ch.end, job.other.Path, err)
			continue
		}
		results = append(results, chunkMatch{chunk: ch, lag: k - ch.start, strength: strength})
	}
	if len(results) == 0 {
		return skip("correlation failed for every chunk")
	}

	primary := results[0]
	for _, r := range results[1:] {
		if r.strength > primary.strength {
			primary = r
		}
	}

	secondary, err := m.secondaryPeak(ctx, fa, fb, primary, rate)
	if err != nil {
		return jobResult{}, err
	}

	edge := &models.MatchEdge{
		ID:                 utils.StableID("edge", string(models.MatchAudio), job.ref.ID, job.other.ID),
		ClipA:              job.ref.ID,
		ClipB:              job.other.ID,
		Type:               models.MatchAudio,
		OffsetSeconds:      float64(primary.lag) / rate,
		PriorOffsetSeconds: job.prior,
		SNR:                floatPtr(snr),
		PeakValue:          floatPtr(primary.strength),
		SecondaryPeak:      floatPtr(secondary),
		SegmentID:          job.segment.ID,
	}
	samples := int64(math.Round(edge.OffsetSeconds * float64(refRate)))
	edge.SampleOffset = &samples

	if spread := m.lagSpread(results); spread > m.cfg.DriftToleranceFrames {
		reasons = append(reasons, models.ReasonDrift)
		edge.DriftSeconds = floatPtr(float64(spread) / rate)
	}
	if primary.strength < m.cfg.MinPeakStrength {
		edge.Ambiguous = true
		reasons = append(reasons, models.ReasonLowCorrelation)
	}
	if secondary >= m.cfg.AmbiguityRatio*primary.strength {
		edge.Ambiguous = true
		reasons = append(reasons, models.ReasonAmbiguousPeak)
	}
	edge.Reasons = reasons

	m.log.Debugf("Matched %s -> %s: lag %.3fs peak %.2f second %.2f snr %.1fdB %v",
		job.ref.Path, job.other.Path, edge.OffsetSeconds, primary.strength, secondary, snr, reasons)
	return jobResult{edge: edge}, nil
}

// selectChunks splits b into chunks, clamps each chunk's lag window to lags
// with enough overlap, and keeps the most transient-rich ones in time order.
func (m *AudioMatcher) selectChunks(fa, fb Features, lo, hi int, reasons *[]string) []chunk {
	lenA, lenB := len(fa.Data), len(fb.Data)
	chunkLen := int(math.Round(m.cfg.ChunkSeconds * fb.Rate))
	if chunkLen < 1 {
		chunkLen = lenB
	}

	var usable []chunk
	for start := 0; start < lenB; start += chunkLen {
		end := start + chunkLen
		// Fold a short tail into the chunk before it.
		if end > lenB || lenB-end < chunkLen/2 {
			end = lenB
		}
		n := end - start
		minOv := int(math.Round(m.cfg.MinOverlapSeconds * fb.Rate))
		minOv = minInt(minOv, minInt(n/2, lenA/2))
		if minOv < dsp.MinOverlap {
			minOv = dsp.MinOverlap
		}
		ch := chunk{
			start: start,
			end:   end,
			lo:    maxInt(lo+start, minOv-n),
			hi:    minInt(hi+start, lenA-minOv),
		}
		if ch.lo <= ch.hi && n >= dsp.MinOverlap {
			ch.transient = dsp.TransientScore(fb.Data[start:end], fb.Rate)
			usable = append(usable, ch)
		}
		if end == lenB {
			break
		}
	}
	if len(usable) == 0 {
		return nil
	}

	var picked []chunk
	for _, ch := range usable {
		if ch.transient >= m.cfg.TransientThreshold {
			picked = append(picked, ch)
		}
	}
	if len(picked) == 0 {
		best := usable[0]
		for _, ch := range usable[1:] {
			if ch.transient > best.transient {
				best = ch
			}
		}
		picked = []chunk{best}
		if !containsReason(*reasons, models.ReasonLowAudio) {
			*reasons = append(*reasons, models.ReasonLowAudio)
		}
	}

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].transient > picked[j].transient
	})
	if len(picked) > m.cfg.MaxChunks {
		picked = picked[:m.cfg.MaxChunks]
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].start < picked[j].start
	})
	return picked
}

// secondaryPeak is the best correlation inside the primary chunk's window
// once the neighbourhood of the primary peak is excluded.
func (m *AudioMatcher) secondaryPeak(ctx context.Context, fa, fb Features, primary chunkMatch, rate float64) (float64, error) {
	excl := int(math.Round(m.cfg.PeakExclusion.Seconds() * rate))
	k := primary.lag + primary.start
	piece := Features{Data: fb.Data[primary.start:primary.end], Rate: rate}

	var second float64
	for _, w := range [][2]int{{primary.lo, k - excl - 1}, {k + excl + 1, primary.hi}} {
		if w[0] > w[1] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, cancelled(err)
		}
		_, s, err := m.audio.CrossCorrelate(fa, piece, w[0], w[1])
		if err != nil {
			continue
		}
		second = math.Max(second, s)
	}
	return second, nil
}

// lagSpread is the range of whole-clip lags among chunks that correlated
// above the minimum strength.
func (m *AudioMatcher) lagSpread(results []chunkMatch) int {
	var (
		lo, hi int
		n      int
	)
	for _, r := range results {
		if r.strength < m.cfg.MinPeakStrength {
			continue
		}
		if n == 0 || r.lag < lo {
			lo = r.lag
		}
		if n == 0 || r.lag > hi {
			hi = r.lag
		}
		n++
	}
	if n < 2 {
		return 0
	}
	return hi - lo
}

// ResolveOffsets moves non-anchored devices onto the lag of their best
// accepted audio edge, one segment at a time so later segments see offsets
// resolved by earlier ones. The session reference device never moves.
func (m *AudioMatcher) ResolveOffsets(st *runState, threshold float64) {
	resolved := 0
	for _, seg := range st.segments {
		best := make(map[string]models.MatchEdge)
		var order []string
		for _, e := range st.edges {
			if e.Type != models.MatchAudio || e.SegmentID != seg.ID || e.Confidence < threshold {
				continue
			}
			devID := st.clips[e.ClipB].DeviceID
			if devID == st.reference || st.anchored[devID] != "" {
				continue
			}
			cur, seen := best[devID]
			if !seen {
				order = append(order, devID)
			}
			if !seen || e.Confidence > cur.Confidence {
				best[devID] = e
			}
		}
		for _, devID := range order {
			e := best[devID]
			dev := st.devices[devID]
			if dev.OffsetSource == models.OffsetAudio && dev.OffsetConfidence >= e.Confidence {
				continue
			}
			posA, okA := st.correctedPos(st.clips[e.ClipA])
			posB, okB := st.metaPos(st.clips[e.ClipB])
			if !okA || !okB {
				continue
			}
			dev.SetOffset(posA+e.OffsetSeconds-posB, e.Confidence, models.OffsetAudio)
			resolved++
		}
	}
	m.log.Infof("Audio resolved offsets for %d devices", resolved)
}

func containsReason(reasons []string, code string) bool {
	for _, r := range reasons {
		if r == code {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

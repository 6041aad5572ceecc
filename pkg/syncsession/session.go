package syncsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

// Session runs the sync pipeline for one set of files and keeps its anchors
// and latest result. Runs are serialised; AddAnchor cancels an in-flight run
// before re-running.
type Session struct {
	cfg      *Config
	metadata *cachingProvider
	audio    AudioProcessor

	ingest   *IngestService
	cluster  *ClusterService
	align    *AlignmentService
	anchors  *AnchorController
	matcher  *AudioMatcher
	scorer   *ConfidenceScorer
	timeline *TimelineBuilder

	runMu sync.Mutex

	mu         sync.Mutex
	files      []FileHandle
	anchorList []models.Anchor
	result     *models.SyncResult
	cancel     context.CancelFunc
}

// NewSession wires the pipeline components around the two capabilities.
func NewSession(metadata MetadataProvider, audio AudioProcessor, opts ...Option) (*Session, error) {
	if metadata == nil || audio == nil {
		return nil, errors.New("metadata provider and audio processor are required")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	cache := newCachingProvider(metadata)
	scorer := NewConfidenceScorer(cfg)
	return &Session{
		cfg:      cfg,
		metadata: cache,
		audio:    audio,
		ingest:   NewIngestService(cache, cfg),
		cluster:  NewClusterService(cfg),
		align:    NewAlignmentService(cfg),
		anchors:  NewAnchorController(audio, cfg),
		matcher:  NewAudioMatcher(audio, cfg),
		scorer:   scorer,
		timeline: NewTimelineBuilder(scorer, cfg),
	}, nil
}

// RunPipeline creates a session and runs it once over files.
func RunPipeline(ctx context.Context, files []FileHandle, metadata MetadataProvider, audio AudioProcessor, strictness Strictness, opts ...Option) (*Session, *models.SyncResult, error) {
	opts = append(opts, WithStrictness(strictness))
	s, err := NewSession(metadata, audio, opts...)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Run(ctx, files)
	if err != nil {
		return s, nil, err
	}
	return s, res, nil
}

func (s *Session) ID() string {
	return s.cfg.SessionID
}

func (s *Session) Config() Config {
	return *s.cfg
}

// Result returns the latest SyncResult, or nil before the first successful run.
func (s *Session) Result() *models.SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Anchors returns the session's anchors in creation order.
func (s *Session) Anchors() []models.Anchor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Anchor(nil), s.anchorList...)
}

// ImportAnchors restores previously created anchors, for example from an
// archive. They take effect on the next run.
func (s *Session) ImportAnchors(anchors []models.Anchor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorList = append(s.anchorList, anchors...)
	sortAnchors(s.anchorList)
}

// Run replaces the session's inputs with files and runs the full pipeline.
// The inputs are only replaced on success; a cancelled run returns an error
// wrapping ErrCancelled and leaves the previous files and result in place.
func (s *Session) Run(ctx context.Context, files []FileHandle) (*models.SyncResult, error) {
	in := append([]FileHandle(nil), files...)
	return s.execute(ctx, &in)
}

// AddAnchor validates req against the latest result, records the anchor and
// re-runs the pipeline. Any in-flight run is cancelled first. The anchor is
// kept even if the re-run fails.
func (s *Session) AddAnchor(ctx context.Context, req AnchorRequest) (*models.Anchor, *models.SyncResult, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	prev := s.result
	s.mu.Unlock()

	anchor, err := s.anchors.Create(ctx, prev, req)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.anchorList = append(s.anchorList, *anchor)
	s.mu.Unlock()

	res, err := s.execute(ctx, nil)
	if err != nil {
		return anchor, nil, err
	}
	return anchor, res, nil
}

func (s *Session) execute(ctx context.Context, files *[]FileHandle) (*models.SyncResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	in := s.files
	if files != nil {
		in = *files
	}
	in = append([]FileHandle(nil), in...)
	anchors := append([]models.Anchor(nil), s.anchorList...)
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	res, err := s.pipeline(runCtx, in, anchors)
	if err != nil {
		s.cfg.Logger.Warnf("Session %s run aborted: %v", s.cfg.SessionID, err)
		return nil, err
	}

	s.mu.Lock()
	s.files = in
	s.result = res
	s.mu.Unlock()
	return res, nil
}

func (s *Session) pipeline(ctx context.Context, files []FileHandle, anchors []models.Anchor) (*models.SyncResult, error) {
	prog := newProgressReporter(s.cfg.Progress)
	st := newRunState()

	if err := s.ingest.Ingest(ctx, st, files, prog.stage("ingest", 0, 10)); err != nil {
		return nil, err
	}
	if err := s.cluster.Cluster(ctx, st); err != nil {
		return nil, err
	}
	prog.report(12, "cluster", "")
	if err := s.align.Align(ctx, st); err != nil {
		return nil, err
	}
	prog.report(15, "align", "")
	if err := s.anchors.Apply(ctx, st, anchors); err != nil {
		return nil, err
	}
	prog.report(18, "anchors", "")
	if err := s.matcher.Match(ctx, st, prog.stage("match", 20, 90)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	s.scorer.Score(st)
	s.matcher.ResolveOffsets(st, s.cfg.Strictness.Threshold())
	s.anchors.Settle(st)
	prog.report(93, "score", "")

	res := s.timeline.Build(st, s.cfg.SessionID, s.cfg.Clock())
	prog.report(100, "timeline", "")
	return res, nil
}

type progressReporter struct {
	mu sync.Mutex
	fn ProgressFunc
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(percent float64, stage, item string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(Progress{Percent: percent, Stage: stage, Item: item})
}

// stage maps done/total within one stage onto the [from, to] percent band.
func (p *progressReporter) stage(name string, from, to float64) func(done, total int, item string) {
	return func(done, total int, item string) {
		pct := to
		if total > 0 {
			pct = from + (to-from)*float64(done)/float64(total)
		}
		p.report(pct, name, item)
	}
}

type probeEntry struct {
	md  MediaMetadata
	err error
}

// cachingProvider memoises probes so re-runs after an anchor see exactly the
// metadata the first run saw.
type cachingProvider struct {
	inner   MetadataProvider
	mu      sync.Mutex
	entries map[string]probeEntry
}

func newCachingProvider(inner MetadataProvider) *cachingProvider {
	return &cachingProvider{inner: inner, entries: make(map[string]probeEntry)}
}

func (c *cachingProvider) Probe(ctx context.Context, path string) (MediaMetadata, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	c.mu.Unlock()
	if ok {
		return e.md, e.err
	}
	md, err := c.inner.Probe(ctx, path)
	if err != nil && ctx.Err() != nil {
		return md, err
	}
	c.mu.Lock()
	c.entries[path] = probeEntry{md: md, err: err}
	c.mu.Unlock()
	return md, err
}

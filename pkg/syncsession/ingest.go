package syncsession

import (
	"context"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

var audioExtensions = map[string]bool{
	".wav": true, ".bwf": true, ".mp3": true, ".flac": true, ".aac": true,
	".m4a": true, ".aif": true, ".aiff": true, ".ogg": true, ".opus": true,
}

// IngestService turns file handles into clips and devices.
type IngestService struct {
	provider  MetadataProvider
	modTime   func(path string) (time.Time, error)
	frameRate float64
	log       Logger
}

func NewIngestService(provider MetadataProvider, cfg *Config) *IngestService {
	return &IngestService{
		provider:  provider,
		modTime:   cfg.ModTime,
		frameRate: cfg.FrameRate,
		log:       cfg.Logger,
	}
}

// SequenceNumber extracts the trailing digit run of a file name stem.
func SequenceNumber(path string) (int, bool) {
	m := trailingDigits.FindStringSubmatch(utils.FileStem(path))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Ingest probes every file and records clips and devices in st. Clips with a
// non-positive duration are dropped with a warning. A failing probe degrades
// the clip to its filesystem mtime and marks it time_unknown.
func (s *IngestService) Ingest(ctx context.Context, st *runState, files []FileHandle, progress func(done, total int, item string)) error {
	dropped := 0
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		progress(i, len(files), f.Path)

		path := filepath.Clean(f.Path)
		id := utils.StableID("clip", path)
		if _, dup := st.clips[id]; dup {
			st.warnf(s.log, "skipping duplicate input %s", path)
			dropped++
			continue
		}

		var (
			md       MediaMetadata
			probeErr error
		)
		if f.Metadata != nil {
			md = *f.Metadata
		} else {
			md, probeErr = s.provider.Probe(ctx, path)
			if probeErr != nil && ctx.Err() != nil {
				return cancelled(ctx.Err())
			}
		}
		if probeErr != nil {
			s.log.Warnf("Metadata probe failed for %s: %v", path, probeErr)
		}

		if md.DurationSeconds <= 0 || math.IsNaN(md.DurationSeconds) || math.IsInf(md.DurationSeconds, 0) {
			st.warnf(s.log, "dropping %s: duration %.3fs is not positive", path, md.DurationSeconds)
			dropped++
			continue
		}

		clip := &models.Clip{
			ID:                    id,
			Path:                  path,
			DurationSeconds:       md.DurationSeconds,
			DurationFrames:        int64(math.Round(md.DurationSeconds * s.frameRate)),
			Color:                 f.Color,
			FrameRate:             md.FrameRate,
			SampleRate:            md.SampleRate,
			HasAudio:              md.HasAudio,
			TimecodeOriginSeconds: md.TimecodeOriginSeconds,
			Status:                models.StatusUnprocessed,
		}
		s.resolveStart(clip, md, probeErr)
		if clip.TimeUnknown {
			st.anomaly(models.AnomalyTimeUnknown, clip.ID, "metadata probe failed; start time taken from "+string(clip.TimeSource))
		}

		switch {
		case md.HasVideo:
			clip.Kind = models.MediaVideo
		case md.HasAudio:
			clip.Kind = models.MediaAudio
		default:
			// No stream information at all: guess from the extension and let
			// audio loading decide whether there is anything to match.
			clip.Kind = models.MediaVideo
			if audioExtensions[strings.ToLower(filepath.Ext(path))] {
				clip.Kind = models.MediaAudio
			}
			clip.HasAudio = true
		}

		if n, ok := SequenceNumber(path); ok {
			clip.Sequence = &n
		}

		folder := utils.SourceFolder(path)
		devID := utils.StableID("device", folder)
		dev, ok := st.devices[devID]
		if !ok {
			dev = &models.Device{
				ID:           devID,
				Name:         filepath.Base(folder),
				SourceFolder: folder,
				Color:        f.Color,
			}
			st.devices[devID] = dev
			st.deviceOrder = append(st.deviceOrder, devID)
		}
		clip.DeviceID = devID
		dev.ClipIDs = append(dev.ClipIDs, clip.ID)

		st.clips[clip.ID] = clip
		st.clipOrder = append(st.clipOrder, clip.ID)
	}
	progress(len(files), len(files), "")

	for _, id := range st.deviceOrder {
		dev := st.devices[id]
		dev.Kind = models.DeviceRecorder
		for _, cid := range dev.ClipIDs {
			if st.clips[cid].Kind != models.MediaAudio {
				dev.Kind = models.DeviceCamera
				break
			}
		}
	}

	for _, id := range st.clipOrder {
		c := st.clips[id]
		if c.StartTime != nil && (!st.hasT0 || c.StartTime.Before(st.t0)) {
			st.t0 = *c.StartTime
			st.hasT0 = true
		}
	}

	s.flagSequenceAnomalies(st)
	s.log.Infof("Ingested %d clips from %d devices (%d dropped)", len(st.clipOrder), len(st.deviceOrder), dropped)
	return nil
}

func (s *IngestService) resolveStart(clip *models.Clip, md MediaMetadata, probeErr error) {
	if probeErr == nil && md.StartTime != nil {
		t := *md.StartTime
		clip.StartTime = &t
		clip.TimeSource = models.TimeSourceEmbedded
		return
	}
	clip.TimeUnknown = probeErr != nil
	if mt, err := s.modTime(clip.Path); err == nil && !mt.IsZero() {
		clip.StartTime = &mt
		clip.TimeSource = models.TimeSourceMtime
		return
	}
	clip.TimeSource = models.TimeSourceNone
}

// flagSequenceAnomalies marks clips whose filename numbering runs backwards
// (or repeats) relative to their start times on the same device.
func (s *IngestService) flagSequenceAnomalies(st *runState) {
	for _, devID := range st.deviceOrder {
		var timed []*models.Clip
		for _, cid := range st.devices[devID].ClipIDs {
			c := st.clips[cid]
			if c.Timed() && c.Sequence != nil {
				timed = append(timed, c)
			}
		}
		sort.SliceStable(timed, func(i, j int) bool {
			return timed[i].StartTime.Before(*timed[j].StartTime)
		})
		for i := 1; i < len(timed); i++ {
			if *timed[i].Sequence <= *timed[i-1].Sequence {
				timed[i].SequenceAnomaly = true
				st.anomaly(models.AnomalySequenceOrder, timed[i].ID,
					"sequence "+strconv.Itoa(*timed[i].Sequence)+" follows "+strconv.Itoa(*timed[i-1].Sequence)+" but starts later")
			}
		}
	}
}

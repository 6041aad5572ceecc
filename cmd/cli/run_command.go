package main

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticSync/internal/config"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var colors []string
	var name string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <files...>",
		Short: "Sync a set of clips and archive the result as a new session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(colors) > 1 && len(colors) != len(args) {
				return fmt.Errorf("--color must be given once or once per file (%d files, %d colors)", len(args), len(colors))
			}

			files := make([]syncsession.FileHandle, len(args))
			paths := make([]string, len(args))
			fileColors := make([]string, len(args))
			for i, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				color := ""
				switch len(colors) {
				case 0:
				case 1:
					color = colors[0]
				default:
					color = colors[i]
				}
				files[i] = syncsession.FileHandle{Path: abs, Color: color}
				paths[i] = abs
				fileColors[i] = color
			}
			if name == "" {
				name = fmt.Sprintf("%s %s", filepath.Base(utils.SourceFolder(paths[0])), time.Now().Format("2006-01-02 15:04"))
			}

			id := utils.GenerateUUID()
			lock, err := storage.LockSession(ctx.cfg.LockDir, id)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			sess, err := ctx.newSession(id)
			if err != nil {
				return err
			}
			ctx.log.Infof("Syncing %d file(s) as session %s", len(files), id)
			res, err := sess.Run(cmd.Context(), files)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			rec := sessionRecord(id, name, ctx.cfg)
			if err := db.SaveSession(rec, paths, fileColors); err != nil {
				return err
			}
			if err := db.SaveResult(res); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			printSessionHeader(out, &rec, len(files))
			printResult(out, res, false)
			return nil
		},
	}

	cfg := &ctx.cfg
	cmd.Flags().StringSliceVar(&colors, "color", nil, "Clip colour, once for all files or once per file")
	cmd.Flags().StringVar(&name, "name", "", "Session name (default: folder of the first file and the date)")
	cmd.Flags().StringVar(&cfg.Strictness, "strictness", cfg.Strictness, "Match acceptance: low, medium or high")
	cmd.Flags().StringVar(&cfg.PlacementMode, "placement", cfg.PlacementMode, "Unmatched clip placement: near_gap or tail_bin")
	cmd.Flags().DurationVar(&cfg.GapThreshold, "gap", cfg.GapThreshold, "Gap that splits clips into separate segments")
	cmd.Flags().DurationVar(&cfg.WindowHalfWidth, "window", cfg.WindowHalfWidth, "Half width of the audio search window around the metadata offset")
	cmd.Flags().DurationVar(&cfg.AnchorWindow, "anchor-window", cfg.AnchorWindow, "Half width of the audio search window around an anchor")
	cmd.Flags().Float64Var(&cfg.ChunkSeconds, "chunk-seconds", cfg.ChunkSeconds, "Length of correlated audio chunks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

// sessionRecord captures every setting that shapes a run so anchors re-run
// the session exactly as it was created.
func sessionRecord(id, name string, cfg config.Config) storage.Session {
	return storage.Session{
		ID:                  id,
		Name:                name,
		Strictness:          cfg.Strictness,
		PlacementMode:       cfg.PlacementMode,
		FrameRate:           cfg.FrameRate,
		GapSeconds:          cfg.GapThreshold.Seconds(),
		WindowSeconds:       cfg.WindowHalfWidth.Seconds(),
		AnchorWindowSeconds: cfg.AnchorWindow.Seconds(),
		ChunkSeconds:        cfg.ChunkSeconds,
		SampleRate:          cfg.SampleRate,
	}
}

// restoreSettings overwrites cfg with the settings stored on rec. Rows
// written before the engine settings were archived have no sample rate and
// keep cfg's engine settings.
func restoreSettings(cfg *config.Config, rec *storage.Session) {
	if rec.Strictness != "" {
		cfg.Strictness = rec.Strictness
	}
	if rec.PlacementMode != "" {
		cfg.PlacementMode = rec.PlacementMode
	}
	if rec.FrameRate > 0 {
		cfg.FrameRate = rec.FrameRate
	}
	if rec.SampleRate == 0 {
		return
	}
	cfg.GapThreshold = seconds(rec.GapSeconds)
	cfg.WindowHalfWidth = seconds(rec.WindowSeconds)
	cfg.AnchorWindow = seconds(rec.AnchorWindowSeconds)
	cfg.ChunkSeconds = rec.ChunkSeconds
	cfg.SampleRate = rec.SampleRate
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}

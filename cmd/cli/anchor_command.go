package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
)

func newAnchorCommand(ctx *commandContext) *cobra.Command {
	var (
		sessionID string
		clipA     string
		clipB     string
		timeA     string
		timeB     string
		anchorFPS float64
		sourceTC  bool
		lag       float64
		refine    bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Pin two clips together and re-run the session",
		Long: `Adds an anchor between two clips of an archived session and re-runs it.

With --time-a and --time-b the two timecodes mark the same moment in each clip
(clip-relative unless --source-tc is set). Without them the clips keep the lag
they currently have on the timeline, or --lag, optionally refined by audio.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (timeA == "") != (timeB == "") {
				return errors.New("--time-a and --time-b must be given together")
			}

			lock, err := storage.LockSession(ctx.cfg.LockDir, sessionID)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, files, err := db.GetSession(sessionID)
			if err != nil {
				return err
			}
			anchors, err := db.ListAnchors(rec.ID)
			if err != nil {
				return err
			}

			restoreSettings(&ctx.cfg, rec)
			sess, err := ctx.newSession(rec.ID)
			if err != nil {
				return err
			}
			sess.ImportAnchors(anchors)

			handles := make([]syncsession.FileHandle, len(files))
			for i, f := range files {
				handles[i] = syncsession.FileHandle{Path: f.Path, Color: f.Color}
			}
			ctx.log.Infof("Restoring session %s with %d anchor(s)", rec.ID, len(anchors))
			prev, err := sess.Run(cmd.Context(), handles)
			if err != nil {
				return fmt.Errorf("restore session: %w", err)
			}

			req := syncsession.AnchorRequest{
				ClipA:           resolveClip(prev, clipA),
				ClipB:           resolveClip(prev, clipB),
				Type:            models.AnchorClipToClip,
				FrameRate:       anchorFPS,
				RefineWithAudio: refine,
			}
			if timeA != "" {
				req.Type = models.AnchorExplicitTime
				req.TimecodeA = timeA
				req.TimecodeB = timeB
				req.SourceTimecode = sourceTC
			} else if cmd.Flags().Changed("lag") {
				req.Lag = &lag
			}

			anchor, res, err := sess.AddAnchor(cmd.Context(), req)
			if anchor != nil {
				if serr := db.SaveAnchor(rec.ID, *anchor); serr != nil {
					return serr
				}
			}
			if err != nil {
				return fmt.Errorf("add anchor: %w", err)
			}

			rec.UpdatedAt = time.Now()
			paths := make([]string, len(files))
			colors := make([]string, len(files))
			for i, f := range files {
				paths[i] = f.Path
				colors[i] = f.Color
			}
			if err := db.SaveSession(*rec, paths, colors); err != nil {
				return err
			}
			if err := db.SaveResult(res); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, anchor)
			}
			fmt.Fprintf(out, "📌 Anchor %s: %s → %s offset %+.3fs", anchor.ID,
				filepath.Base(res.Clips[anchor.ClipA].Path), filepath.Base(res.Clips[anchor.ClipB].Path), anchor.EffectiveOffset())
			if anchor.AudioRefined {
				fmt.Fprintf(out, " (refined from %+.3fs)", anchor.OffsetSeconds)
			}
			fmt.Fprintln(out)
			printResult(out, res, false)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().StringVar(&clipA, "a", "", "First clip: id, path or file name")
	cmd.Flags().StringVar(&clipB, "b", "", "Second clip: id, path or file name")
	cmd.Flags().StringVar(&timeA, "time-a", "", "Timecode HH:MM:SS:FF in clip A")
	cmd.Flags().StringVar(&timeB, "time-b", "", "Timecode HH:MM:SS:FF in clip B marking the same moment")
	cmd.Flags().Float64Var(&anchorFPS, "tc-fps", 0, "Frame rate of the timecodes (default: session frame rate)")
	cmd.Flags().BoolVar(&sourceTC, "source-tc", false, "Timecodes are burned-in source timecode rather than clip-relative")
	cmd.Flags().Float64Var(&lag, "lag", 0, "Seconds clip B starts after clip A")
	cmd.Flags().BoolVar(&refine, "refine", false, "Refine the lag by correlating audio around it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the anchor as JSON")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}

// resolveClip accepts a clip id, a path or a unique file name and returns
// the clip id. Unknown references are returned unchanged so the engine
// reports them.
func resolveClip(res *models.SyncResult, ref string) string {
	if _, ok := res.Clips[ref]; ok {
		return ref
	}
	if abs, err := filepath.Abs(ref); err == nil {
		if c, ok := res.ClipByPath(abs); ok {
			return c.ID
		}
	}
	match := ""
	for _, id := range res.ClipIDs() {
		if filepath.Base(res.Clips[id].Path) == ref {
			if match != "" {
				return ref
			}
			match = id
		}
	}
	if match == "" {
		return ref
	}
	return match
}

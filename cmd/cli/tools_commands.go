package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/audio"
	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

func newSpectrogramCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var spec audio.SpectrogramConfig

	cmd := &cobra.Command{
		Use:   "spectrogram <file>",
		Short: "Render a clip's audio as a spectrogram PNG",
		Long:  "Useful for checking clips whose edges report low_audio or noisy_env.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if outPath == "" {
				outPath = utils.FileStem(path) + ".png"
			}

			proc := newProcessor(ctx.cfg, ctx.log)
			samples, err := proc.Load(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			if err := audio.RenderSpectrogram(samples.Data, samples.SampleRate, outPath, spec); err != nil {
				return err
			}

			size := ""
			if info, err := os.Stat(outPath); err == nil {
				size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🖼️  %s: %s of audio → %s%s\n",
				filepath.Base(path), formatSeconds(samples.Duration()), outPath, size)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output PNG (default: <file stem>.png)")
	cmd.Flags().IntVar(&spec.Width, "width", 0, "Image width in pixels")
	cmd.Flags().IntVar(&spec.Height, "height", 0, "Image height in pixels")
	return cmd
}

func newTimecodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "timecode <HH:MM:SS:FF>",
		Short: "Validate a timecode at the project frame rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fps := ctx.cfg.FrameRate
			frames, err := syncsession.ParseTimecodeFrames(args[0], fps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s @ %s fps = %s frames = %.3fs\n",
				args[0], humanize.Ftoa(fps), humanize.Ftoa(frames), frames/fps)
			return nil
		},
	}
}

package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

// DefaultSampleRate is the analysis rate every clip is converted to. At 16 kHz
// a 160-sample hop gives exactly 100 feature frames per second.
const DefaultSampleRate = 16000

type ConvertWAVConfig struct {
	SampleRate int
	// FFmpeg is the ffmpeg binary; defaults to "ffmpeg" on PATH.
	FFmpeg string
	// Timeout bounds one conversion when ctx has no deadline.
	Timeout time.Duration
}

// ConvertToMonoWAV extracts the first audio stream of inputPath as 16-bit mono
// PCM at cfg.SampleRate and returns the path of the new file in outputDir.
// Output names include a hash of the full input path so same-named clips from
// different cards never collide.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(inputPath)
	if err != nil {
		abs = inputPath
	}
	name := fmt.Sprintf("%s-%.8s.wav", utils.FileStem(inputPath), utils.StableID("wav", abs))
	outputPath := filepath.Join(outputDir, name)

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		cfg.FFmpeg,
		"-y",
		"-v", "error",
		"-i", inputPath,
		"-map", "0:a:0",
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %w (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

package audio

import (
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/AcousticSync/pkg/utils"
)

type SpectrogramConfig struct {
	Width  int
	Height int
}

// RenderSpectrogram draws a magnitude spectrogram of samples to a PNG, used
// to eyeball why a pair did or did not correlate.
func RenderSpectrogram(samples []float64, sampleRate int, outPath string, cfg SpectrogramConfig) error {
	if len(samples) == 0 || sampleRate <= 0 {
		return fmt.Errorf("nothing to render for %s", outPath)
	}
	if cfg.Width <= 0 {
		cfg.Width = 2048
	}
	if cfg.Height <= 0 {
		cfg.Height = 512
	}
	if err := utils.MakeDir(filepath.Dir(outPath)); err != nil {
		return err
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, cfg.Width, cfg.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, linear magnitude.
	spectrogram.Drawfft(
		img,
		samples,
		uint32(sampleRate),
		uint32(cfg.Height),
		false,
		false,
		true,
		false,
	)

	if err := spectrogram.SavePng(img, outPath); err != nil {
		return fmt.Errorf("saving spectrogram %s: %w", outPath, err)
	}
	return nil
}

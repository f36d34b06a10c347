// Package refine upscales selected candidates through an external
// super-resolution service and composites them onto the studio canvas.
package refine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/scraper"
)

// Result is the studio-ready artifact for one candidate.
type Result struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
	Upscaled    bool
}

// Refiner runs the upscale-and-composite stage.
type Refiner struct {
	config   *Config
	upscaler *UpscaleClient
	logger   *logrus.Logger
}

// NewRefiner creates a new Refiner
func NewRefiner(config *Config, upscaler *UpscaleClient) (*Refiner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Refiner{config: config, upscaler: upscaler, logger: config.Logger}, nil
}

// Refine produces the final studio image for a candidate. Upscale failure is
// never fatal: the original bytes are composited instead. Returns nil only
// when even the original cannot be composited; the caller then falls back to
// delivering the raw candidate.
func (r *Refiner) Refine(ctx context.Context, cand *scraper.Candidate, mode Mode) *Result {
	log := r.logger.WithFields(logrus.Fields{
		"url":  cand.SourceURL,
		"mode": string(mode),
	})

	data := cand.Data
	upscaled := false

	if mode != ModeCompressed && r.upscaler != nil {
		if factor := FactorFor(cand.Width, cand.Height); factor > 0 {
			out, err := r.upscaler.Upscale(ctx, cand.Data, factor)
			if err != nil {
				log.WithError(err).Warn("Upscale failed, compositing original")
			} else {
				data = out
				upscaled = true
				log.WithField("factor", factor).Debug("Candidate upscaled")
			}
		}
	}

	composed, canvasSize, err := r.Composite(data, mode)
	if err != nil {
		if !upscaled {
			log.WithError(err).Error("Compositing failed")
			return nil
		}
		// The upscaler may have returned a corrupt buffer; the original is
		// still worth a try.
		composed, canvasSize, err = r.Composite(cand.Data, mode)
		if err != nil {
			log.WithError(err).Error("Compositing failed for original bytes too")
			return nil
		}
		upscaled = false
	}

	contentType := "image/png"
	if mode == ModeCompressed {
		contentType = "image/jpeg"
	}

	return &Result{
		Data:        composed,
		Width:       canvasSize,
		Height:      canvasSize,
		ContentType: contentType,
		Upscaled:    upscaled,
	}
}

// Package scoring turns downloaded candidate buffers into 0-100 quality
// scores and selects the images worth refining. Scores are pure functions of
// bytes and metadata; no network is touched once a buffer is in hand.
package scoring

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/scraper"
)

const (
	baseScore = 50
	minScore  = 0
	maxScore  = 100

	// Watermark penalty brackets
	watermarkHighThreshold = 60
	watermarkMidThreshold  = 40
	watermarkHighPenalty   = -40
	watermarkMidPenalty    = -20
)

// positiveURLKeywords suggest the URL points at real product photography.
var positiveURLKeywords = []string{"product", "main", "hero", "large", "zoom", "hires", "detail", "primary"}

// Config holds scoring policy
type Config struct {
	// MinSelectScore is the keep bar; candidates below it are dropped unless
	// nothing clears it.
	MinSelectScore int
	// MaxSelected caps the images delivered per identifier.
	MaxSelected int
	// PixelAnalysis enables the pixel-statistics and watermark rules. When
	// false the scorer runs on metadata alone (degraded path) and watermark
	// scores stay at zero.
	PixelAnalysis bool

	Logger *logrus.Logger
}

// Validate checks settings and applies defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.MinSelectScore <= 0 {
		c.MinSelectScore = 40
	}
	if c.MaxSelected <= 0 {
		c.MaxSelected = 3
	}
	return nil
}

// evaluation bundles everything a rule may inspect.
type evaluation struct {
	cand  *scraper.Candidate
	stats *pixelStats
}

// rule is one condition -> score delta entry. Keeping the heuristic as a
// table means each rule is unit-testable in isolation and the aggregate
// stays a pure function of its inputs.
type rule struct {
	name  string
	delta func(e evaluation) int
}

var metadataRules = []rule{
	{
		name: "file size bracket",
		delta: func(e evaluation) int {
			switch kb := e.cand.SizeKB; {
			case kb >= 500:
				return 15
			case kb >= 150:
				return 10
			case kb >= 50:
				return 5
			case kb < 20:
				return -10
			}
			return 0
		},
	},
	{
		name: "dimension bracket",
		delta: func(e evaluation) int {
			minSide := e.cand.Width
			if e.cand.Height < minSide {
				minSide = e.cand.Height
			}
			switch {
			case minSide >= 1500:
				return 15
			case minSide >= 800:
				return 10
			case minSide >= 500:
				return 5
			case minSide < 300:
				return -15
			}
			return 0
		},
	},
	{
		name: "aspect ratio",
		delta: func(e evaluation) int {
			if e.cand.Height == 0 {
				return 0
			}
			ratio := float64(e.cand.Width) / float64(e.cand.Height)
			switch {
			case ratio >= 0.6 && ratio <= 1.2:
				return 10
			case ratio > 2.5 || ratio < 0.4:
				return -15
			}
			return 0
		},
	},
	{
		name: "url keywords",
		delta: func(e evaluation) int {
			lower := strings.ToLower(e.cand.SourceURL)
			for _, kw := range positiveURLKeywords {
				if strings.Contains(lower, kw) {
					return 5
				}
			}
			return 0
		},
	},
}

var pixelRules = []rule{
	{
		name: "pixel variance",
		delta: func(e evaluation) int {
			if e.stats == nil {
				return 0
			}
			// Near-zero variance means a flat placeholder; strong variance
			// with a bright mean reads as a lit product on a light sweep.
			switch {
			case e.stats.StdLuma < 8:
				return -20
			case e.stats.StdLuma > 40 && e.stats.MeanLuma > 140:
				return 10
			}
			return 0
		},
	},
}

// Scorer scores candidates against the rule tables.
type Scorer struct {
	config *Config
	logger *logrus.Logger
}

// NewScorer creates a new Scorer
func NewScorer(config *Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Scorer{config: config, logger: config.Logger}, nil
}

// Score computes the candidate's quality score and, when pixel analysis is
// enabled, its watermark score. Both are written back onto the candidate.
func (s *Scorer) Score(cand *scraper.Candidate) int {
	e := evaluation{cand: cand}

	if s.config.PixelAnalysis {
		if img := decodeForAnalysis(cand.Data); img != nil {
			stats := computeStats(img)
			e.stats = &stats
		}

		wm, reason := DetectWatermark(cand.Data)
		cand.WatermarkScore = wm
		if wm >= watermarkMidThreshold {
			s.logger.WithFields(logrus.Fields{
				"url":             cand.SourceURL,
				"watermark_score": wm,
				"reason":          reason,
			}).Debug("Watermark suspected")
		}
	}

	score := baseScore
	for _, r := range metadataRules {
		score += r.delta(e)
	}
	if s.config.PixelAnalysis {
		for _, r := range pixelRules {
			score += r.delta(e)
		}
		switch {
		case cand.WatermarkScore >= watermarkHighThreshold:
			score += watermarkHighPenalty
		case cand.WatermarkScore >= watermarkMidThreshold:
			score += watermarkMidPenalty
		}
	}

	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}

	cand.QualityScore = score
	return score
}

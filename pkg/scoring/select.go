package scoring

import (
	"math"
	"sort"

	"github.com/shelfshot/shelfshot/pkg/scraper"
)

// aspectEpsilon is the width/height ratio distance below which two
// candidates count as near-duplicates of the same shot.
const aspectEpsilon = 0.02

// Select scores every candidate and returns the delivery set: candidates at
// or above the keep bar, best first. When nothing clears the bar it falls
// back to all successfully downloaded candidates ranked by byte size, so an
// inconclusive scorer degrades to "biggest image wins" rather than failing
// the identifier.
func (s *Scorer) Select(candidates []scraper.Candidate) []scraper.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	for i := range candidates {
		s.Score(&candidates[i])
	}

	var kept []scraper.Candidate
	for _, c := range candidates {
		if c.QualityScore >= s.config.MinSelectScore {
			kept = append(kept, c)
		}
	}

	if len(kept) == 0 {
		kept = append(kept, candidates...)
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].SizeKB > kept[j].SizeKB
		})
	} else {
		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].QualityScore != kept[j].QualityScore {
				return kept[i].QualityScore > kept[j].QualityScore
			}
			return kept[i].SizeKB > kept[j].SizeKB
		})
	}

	kept = dedupeByAspect(kept)

	if len(kept) > s.config.MaxSelected {
		kept = kept[:s.config.MaxSelected]
	}
	return kept
}

// dedupeByAspect drops later candidates whose aspect ratio is nearly
// identical to an earlier (better) one. Stores frequently serve the same
// shot at several resolutions; the ratio survives resizing.
func dedupeByAspect(cands []scraper.Candidate) []scraper.Candidate {
	var out []scraper.Candidate
	var ratios []float64

	for _, c := range cands {
		if c.Height == 0 {
			continue
		}
		ratio := float64(c.Width) / float64(c.Height)
		dup := false
		for _, seen := range ratios {
			if math.Abs(ratio-seen) < aspectEpsilon {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		ratios = append(ratios, ratio)
		out = append(out, c)
	}
	return out
}

package scoring

import (
	"fmt"
	"image"
	"strings"
)

// Watermark signature weights. Additive, capped at 100.
const (
	gridCellsStrongBonus = 30 // 3+ text-signature cells
	gridCellsWeakBonus   = 15 // exactly 2
	gridCellCenterBonus  = 8  // a lone flagged cell, but dead center
	centerOverlayMax     = 45
	rowBandingMax        = 25
	periodicityBonus     = 20
	watermarkCap         = 100
)

// DetectWatermark estimates the likelihood (0-100) that the image carries a
// text or logo overlay. Pure pixel analysis; malformed input returns 0 with
// a reason rather than an error.
func DetectWatermark(data []byte) (int, string) {
	img := decodeForAnalysis(data)
	if img == nil {
		return 0, "undecodable image, analysis skipped"
	}

	plane, w, h := greyscale(img)
	if w < 9 || h < 9 {
		return 0, "image too small for analysis"
	}
	grad := gradientMap(plane, w, h)

	score := 0
	var reasons []string

	// Thin overlay text produces cells with high edge density but low local
	// variance; broad product texture raises both together.
	flagged, elevated := textSignatureCells(grad, plane, w, h)
	cells := 0
	for _, f := range flagged {
		if f {
			cells++
		}
	}
	switch {
	case cells >= 3:
		score += gridCellsStrongBonus
		reasons = append(reasons, fmt.Sprintf("%d grid cells show thin-overlay edges", cells))
	case cells == 2:
		score += gridCellsWeakBonus
		reasons = append(reasons, "2 grid cells show thin-overlay edges")
	case cells == 1 && flagged[4]:
		// A centered stamp elevates exactly one cell, the middle one.
		score += gridCellCenterBonus
		reasons = append(reasons, "center grid cell shows thin-overlay edges")
	}

	if pts := centerOverlayScore(img, plane, w, h); pts > 0 {
		score += pts
		reasons = append(reasons, "center region is washed out against its surround")
	}

	if pts, bands := rowBandingScore(grad, w, h); pts > 0 {
		score += pts
		reasons = append(reasons, fmt.Sprintf("%d isolated high-edge row bands (text lines)", bands))
	}

	// Multiple non-adjacent elevated cells point at a tiled watermark.
	if periodic(elevated) {
		score += periodicityBonus
		reasons = append(reasons, "non-adjacent elevated cells suggest tiling")
	}

	if score > watermarkCap {
		score = watermarkCap
	}
	if len(reasons) == 0 {
		return score, "no overlay signatures detected"
	}
	return score, strings.Join(reasons, "; ")
}

// textSignatureCells evaluates a 3x3 grid of (edge density, local variance)
// and returns the cells matching the thin-text signature plus the elevation
// map used by the periodicity check.
func textSignatureCells(grad, plane []float64, w, h int) ([9]bool, [9]bool) {
	var density [9]float64
	var variance [9]float64
	var flagged [9]bool
	var elevated [9]bool

	cellW, cellH := w/3, h/3
	var avgDensity, avgVariance float64

	for cy := 0; cy < 3; cy++ {
		for cx := 0; cx < 3; cx++ {
			region := image.Rect(cx*cellW, cy*cellH, (cx+1)*cellW, (cy+1)*cellH)

			var edgeSum float64
			var count int
			for y := region.Min.Y; y < region.Max.Y; y++ {
				for x := region.Min.X; x < region.Max.X; x++ {
					edgeSum += grad[y*w+x]
					count++
				}
			}
			idx := cy*3 + cx
			if count > 0 {
				density[idx] = edgeSum / float64(count)
			}
			variance[idx] = regionContrast(plane, w, region)

			avgDensity += density[idx]
			avgVariance += variance[idx]
		}
	}
	avgDensity /= 9
	avgVariance /= 9

	for i := 0; i < 9; i++ {
		if avgDensity > 0 && density[i] > 1.6*avgDensity {
			elevated[i] = true
			if variance[i] < 1.3*avgVariance {
				flagged[i] = true
			}
		}
	}
	return flagged, elevated
}

// centerOverlayScore compares the center 40% region's saturation and
// contrast against an outer-quadrant sample. A centered semi-transparent
// overlay desaturates and flattens the middle of the frame.
func centerOverlayScore(img *image.NRGBA, plane []float64, w, h int) int {
	cx0, cy0 := int(float64(w)*0.3), int(float64(h)*0.3)
	cx1, cy1 := int(float64(w)*0.7), int(float64(h)*0.7)
	center := image.Rect(cx0, cy0, cx1, cy1)

	quadW, quadH := w/4, h/4
	outer := []image.Rectangle{
		image.Rect(0, 0, quadW, quadH),
		image.Rect(w-quadW, 0, w, quadH),
		image.Rect(0, h-quadH, quadW, h),
		image.Rect(w-quadW, h-quadH, w, h),
	}

	centerSat := regionSaturation(img, center)
	centerCon := regionContrast(plane, w, center)

	var outerSat, outerCon float64
	for _, q := range outer {
		outerSat += regionSaturation(img, q)
		outerCon += regionContrast(plane, w, q)
	}
	outerSat /= 4
	outerCon /= 4

	pts := 0
	if outerSat > 0.05 && centerSat < outerSat*0.7 {
		pts += 25
	}
	if outerCon > 5 && centerCon < outerCon*0.75 {
		pts += 20
	}
	if pts > centerOverlayMax {
		pts = centerOverlayMax
	}
	return pts
}

// rowBandingScore finds short runs of high-edge rows bracketed by quiet
// neighbors, the signature of horizontal text lines. The downscale smears a
// text line across several adjacent rows, so a band is a run, not a single
// row.
func rowBandingScore(grad []float64, w, h int) (int, int) {
	rowEdge := make([]float64, h)
	var avg float64
	for y := 0; y < h; y++ {
		var sum float64
		for x := 0; x < w; x++ {
			sum += grad[y*w+x]
		}
		rowEdge[y] = sum / float64(w)
		avg += rowEdge[y]
	}
	avg /= float64(h)
	if avg == 0 {
		return 0, 0
	}

	bands := 0
	for y := 0; y < h; {
		if rowEdge[y] <= 1.6*avg {
			y++
			continue
		}
		start := y
		for y < h && rowEdge[y] > 1.6*avg {
			y++
		}
		// Broad texture elevates long stretches; text lines stay narrow.
		if y-start > 8 {
			continue
		}
		if quietNear(rowEdge, avg, start-1, -1) && quietNear(rowEdge, avg, y, 1) {
			bands++
		}
	}

	switch {
	case bands >= 8:
		return rowBandingMax, bands
	case bands >= 4:
		return 15, bands
	case bands >= 2:
		return 8, bands
	}
	return 0, bands
}

// quietNear reports whether the edge profile falls back below average within
// four rows of y in the given direction. The image border counts as quiet.
func quietNear(rowEdge []float64, avg float64, y, step int) bool {
	for i := 0; i < 4; i++ {
		idx := y + i*step
		if idx < 0 || idx >= len(rowEdge) {
			return true
		}
		if rowEdge[idx] < avg {
			return true
		}
	}
	return false
}

// periodic reports whether at least two elevated grid cells are non-adjacent,
// which a single centered logo cannot produce.
func periodic(elevated [9]bool) bool {
	var idx []int
	for i, e := range elevated {
		if e {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return false
	}
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			r1, c1 := idx[i]/3, idx[i]%3
			r2, c2 := idx[j]/3, idx[j]%3
			if abs(r1-r2) > 1 || abs(c1-c2) > 1 {
				return true
			}
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

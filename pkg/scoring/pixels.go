package scoring

import (
	"bytes"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// pixelStats summarizes an image's channel statistics for the scorer.
type pixelStats struct {
	MeanR, MeanG, MeanB float64
	StdR, StdG, StdB    float64
	MeanLuma, StdLuma   float64
}

// analysisWidth is the fixed width every image is downscaled to before
// pixel analysis, keeping the cost independent of input size.
const analysisWidth = 256

// decodeForAnalysis decodes the buffer and downscales it for analysis.
// Returns nil on malformed input.
func decodeForAnalysis(data []byte) *image.NRGBA {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return imaging.Resize(img, analysisWidth, 0, imaging.Box)
}

// computeStats walks the downscaled pixels once, accumulating per-channel
// mean and standard deviation.
func computeStats(img *image.NRGBA) pixelStats {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return pixelStats{}
	}

	var sumR, sumG, sumB, sumL float64
	var sqR, sqG, sqB, sqL float64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			r := float64(img.Pix[i])
			g := float64(img.Pix[i+1])
			b := float64(img.Pix[i+2])
			l := 0.299*r + 0.587*g + 0.114*b

			sumR += r
			sumG += g
			sumB += b
			sumL += l
			sqR += r * r
			sqG += g * g
			sqB += b * b
			sqL += l * l
		}
	}

	stats := pixelStats{
		MeanR:    sumR / n,
		MeanG:    sumG / n,
		MeanB:    sumB / n,
		MeanLuma: sumL / n,
	}
	stats.StdR = math.Sqrt(math.Max(0, sqR/n-stats.MeanR*stats.MeanR))
	stats.StdG = math.Sqrt(math.Max(0, sqG/n-stats.MeanG*stats.MeanG))
	stats.StdB = math.Sqrt(math.Max(0, sqB/n-stats.MeanB*stats.MeanB))
	stats.StdLuma = math.Sqrt(math.Max(0, sqL/n-stats.MeanLuma*stats.MeanLuma))
	return stats
}

// greyscale returns the image as a luma plane.
func greyscale(img *image.NRGBA) ([]float64, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			plane[y*w+x] = 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		}
	}
	return plane, w, h
}

// gradientMap computes per-pixel gradient magnitude of a luma plane with a
// simple central-difference kernel.
func gradientMap(plane []float64, w, h int) []float64 {
	grad := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := plane[y*w+x+1] - plane[y*w+x-1]
			gy := plane[(y+1)*w+x] - plane[(y-1)*w+x]
			grad[y*w+x] = math.Hypot(gx, gy)
		}
	}
	return grad
}

// saturation returns per-pixel HSV-style saturation for a region.
func regionSaturation(img *image.NRGBA, region image.Rectangle) float64 {
	var sum float64
	var count int
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if !image.Pt(x, y).In(img.Bounds()) {
				continue
			}
			i := img.PixOffset(x, y)
			r := float64(img.Pix[i])
			g := float64(img.Pix[i+1])
			b := float64(img.Pix[i+2])
			max := math.Max(r, math.Max(g, b))
			min := math.Min(r, math.Min(g, b))
			if max > 0 {
				sum += (max - min) / max
			}
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// regionContrast returns the luma standard deviation in a region.
func regionContrast(plane []float64, w int, region image.Rectangle) float64 {
	var sum, sq float64
	var count int
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if x < 0 || y < 0 || y*w+x >= len(plane) || x >= w {
				continue
			}
			v := plane[y*w+x]
			sum += v
			sq += v * v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	mean := sum / float64(count)
	return math.Sqrt(math.Max(0, sq/float64(count)-mean*mean))
}

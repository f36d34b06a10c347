package scoring

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/scraper"
)

// solidPNG renders a single-color PNG at the analysis resolution so pixel
// tests are independent of the downscale step.
func solidPNG(w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// stripedPNG renders dark horizontal bars on white, the shape of overlaid
// text rows.
func stripedPNG(w, h, spacing int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m := y % spacing; m >= spacing/2 && m < spacing/2+3 {
				img.Set(x, y, color.NRGBA{A: 255})
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// renderPNG draws a soft greyscale gradient, the texture of a studio product
// backdrop with no hard edges.
func renderPNG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		v := uint8(235 - 60*y/h)
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// stampOverlay blends dashed 60%-alpha text rows onto a copy of src, the way
// stock-photo watermarks are stamped. rows gives the top of each 4px line.
func stampOverlay(src []byte, rows []int) []byte {
	img, _, err := image.Decode(bytes.NewReader(src))
	Expect(err).NotTo(HaveOccurred())
	canvas := imaging.Clone(img)
	b := canvas.Bounds()

	const alpha = 0.6
	for _, top := range rows {
		for y := top; y < top+4 && y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				if (x/12)%2 == 1 {
					continue // dash gap
				}
				i := canvas.PixOffset(x, y)
				for c := 0; c < 3; c++ {
					canvas.Pix[i+c] = uint8(float64(canvas.Pix[i+c])*(1-alpha) + 80*alpha)
				}
			}
		}
	}

	var buf bytes.Buffer
	Expect(png.Encode(&buf, canvas)).To(Succeed())
	return buf.Bytes()
}

func newTestScorer(pixel bool) *Scorer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	scorer, err := NewScorer(&Config{PixelAnalysis: pixel, Logger: logger})
	Expect(err).NotTo(HaveOccurred(), "Failed to create scorer")
	return scorer
}

var _ = Describe("Scorer", func() {
	Context("with metadata rules only", func() {
		var scorer *Scorer

		BeforeEach(func() {
			scorer = newTestScorer(false)
		})

		It("rewards large, square, well-named candidates", func() {
			cand := scraper.Candidate{
				SourceURL: "https://m.media-amazon.com/images/I/product-hero-large.jpg",
				Width:     1600,
				Height:    1600,
				SizeKB:    600,
			}
			// base 50, size +15, dimensions +15, aspect +10, keywords +5
			Expect(scorer.Score(&cand)).To(Equal(95))
			Expect(cand.QualityScore).To(Equal(95))
		})

		It("punishes tiny elongated candidates", func() {
			cand := scraper.Candidate{
				SourceURL: "https://example.com/img/x.jpg",
				Width:     210,
				Height:    630,
				SizeKB:    10,
			}
			// base 50, size -10, dimensions -15, aspect -15
			Expect(scorer.Score(&cand)).To(Equal(10))
		})

		It("is a pure function of the candidate", func() {
			cand := scraper.Candidate{
				SourceURL: "https://example.com/product.jpg",
				Width:     900,
				Height:    900,
				SizeKB:    180,
			}
			first := scorer.Score(&cand)
			Expect(scorer.Score(&cand)).To(Equal(first))
		})

		It("stays within bounds for extreme inputs", func() {
			worst := scraper.Candidate{Width: 1, Height: 100, SizeKB: 1}
			best := scraper.Candidate{
				SourceURL: "https://cdn.example.com/product-hero-zoom-hires.jpg",
				Width:     4000, Height: 4000, SizeKB: 5000,
			}
			Expect(scorer.Score(&worst)).To(BeNumerically(">=", 0))
			Expect(scorer.Score(&best)).To(BeNumerically("<=", 100))
		})

		It("leaves the watermark score untouched", func() {
			cand := scraper.Candidate{Width: 800, Height: 800, SizeKB: 100}
			scorer.Score(&cand)
			Expect(cand.WatermarkScore).To(BeZero())
		})
	})

	Context("with pixel analysis", func() {
		var scorer *Scorer

		BeforeEach(func() {
			scorer = newTestScorer(true)
		})

		It("penalizes flat placeholder buffers", func() {
			cand := scraper.Candidate{
				SourceURL: "https://example.com/img.png",
				Width:     256,
				Height:    256,
				SizeKB:    60,
				Data:      solidPNG(256, 256, color.NRGBA{R: 128, G: 128, B: 128, A: 255}),
			}
			// base 50, size +5, dimensions -15, aspect +10, flat pixels -20
			Expect(scorer.Score(&cand)).To(Equal(30))
		})

		It("falls back to metadata when the buffer is undecodable", func() {
			cand := scraper.Candidate{
				Width:  1600,
				Height: 1600,
				SizeKB: 600,
				Data:   []byte("definitely not an image"),
			}
			// base 50, size +15, dimensions +15, aspect +10
			Expect(scorer.Score(&cand)).To(Equal(90))
			Expect(cand.WatermarkScore).To(BeZero())
		})
	})
})

var _ = Describe("DetectWatermark", func() {
	It("returns zero for undecodable input", func() {
		score, reason := DetectWatermark([]byte{0xde, 0xad, 0xbe, 0xef})
		Expect(score).To(BeZero())
		Expect(reason).To(ContainSubstring("undecodable"))
	})

	It("finds no signatures in a uniform image", func() {
		score, reason := DetectWatermark(solidPNG(256, 256, color.White))
		Expect(score).To(BeZero())
		Expect(reason).To(ContainSubstring("no overlay signatures"))
	})

	It("flags text-row banding", func() {
		striped, _ := DetectWatermark(stripedPNG(256, 256, 16))
		plain, _ := DetectWatermark(solidPNG(256, 256, color.White))
		Expect(striped).To(BeNumerically(">=", 8), "Repeated thin lines should trip the banding rule")
		Expect(striped).To(BeNumerically(">", plain))
	})

	It("scores a centered semi-transparent text overlay above the clean original", func() {
		clean := renderPNG(400, 400)
		marked := stampOverlay(clean, []int{180, 200, 220})

		cleanScore, _ := DetectWatermark(clean)
		markedScore, reason := DetectWatermark(marked)

		Expect(cleanScore).To(BeZero(), "A smooth render carries no overlay signatures")
		Expect(markedScore).To(BeNumerically(">", cleanScore), "Stamping an overlay must raise the score")
		Expect(markedScore).To(BeNumerically(">=", 8))
		Expect(reason).To(ContainSubstring("row bands"))
	})

	It("scores a tiled semi-transparent overlay above the clean original", func() {
		clean := renderPNG(400, 400)
		var rows []int
		for y := 20; y < 400; y += 40 {
			rows = append(rows, y)
		}
		marked := stampOverlay(clean, rows)

		cleanScore, _ := DetectWatermark(clean)
		markedScore, _ := DetectWatermark(marked)

		Expect(markedScore).To(BeNumerically(">", cleanScore), "Full-frame tiling must raise the score")
		Expect(markedScore).To(BeNumerically(">=", rowBandingMax))
	})

	It("returns zero for images too thin to analyze", func() {
		// Downscaling pins the width, so only a sliver can end up under
		// the minimum analysis height.
		score, reason := DetectWatermark(solidPNG(1000, 2, color.White))
		Expect(score).To(BeZero())
		Expect(reason).To(ContainSubstring("too small"))
	})
})

var _ = Describe("Select", func() {
	var scorer *Scorer

	BeforeEach(func() {
		scorer = newTestScorer(false)
	})

	It("keeps only candidates above the bar, best first", func() {
		strong := scraper.Candidate{
			SourceURL: "https://cdn.example.com/product-hero.jpg",
			Width:     1600, Height: 1600, SizeKB: 600,
		}
		weak := scraper.Candidate{
			SourceURL: "https://cdn.example.com/thumb.jpg",
			Width:     210, Height: 630, SizeKB: 10,
		}

		selected := scorer.Select([]scraper.Candidate{weak, strong})
		Expect(selected).To(HaveLen(1))
		Expect(selected[0].SourceURL).To(Equal(strong.SourceURL))
	})

	It("falls back to size ranking when nothing clears the bar", func() {
		small := scraper.Candidate{Width: 210, Height: 630, SizeKB: 10}
		bigger := scraper.Candidate{Width: 240, Height: 750, SizeKB: 18}

		selected := scorer.Select([]scraper.Candidate{small, bigger})
		Expect(selected).NotTo(BeEmpty(), "An inconclusive scorer must not empty the delivery set")
		Expect(selected[0].SizeKB).To(Equal(18), "Fallback ranks by byte size")
	})

	It("drops near-duplicate aspect ratios", func() {
		a := scraper.Candidate{SourceURL: "a", Width: 1600, Height: 1600, SizeKB: 600}
		b := scraper.Candidate{SourceURL: "b", Width: 1500, Height: 1500, SizeKB: 550}
		c := scraper.Candidate{SourceURL: "c", Width: 1500, Height: 1000, SizeKB: 550}

		selected := scorer.Select([]scraper.Candidate{a, b, c})

		var urls []string
		for _, s := range selected {
			urls = append(urls, s.SourceURL)
		}
		Expect(urls).To(ContainElement("a"))
		Expect(urls).To(ContainElement("c"))
		Expect(urls).NotTo(ContainElement("b"), "Same shot at a second resolution should be dropped")
	})

	It("caps the delivery set", func() {
		var cands []scraper.Candidate
		for i := 0; i < 10; i++ {
			cands = append(cands, scraper.Candidate{
				SourceURL: "https://cdn.example.com/product-hero.jpg",
				Width:     1000 + i*100, Height: 1000, SizeKB: 600,
			})
		}
		selected := scorer.Select(cands)
		Expect(len(selected)).To(BeNumerically("<=", 3))
	})

	It("returns nil for no candidates", func() {
		Expect(scorer.Select(nil)).To(BeNil())
	})
})

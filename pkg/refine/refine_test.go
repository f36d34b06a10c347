package refine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/scraper"
)

func encodePNG(w, h int, c color.Color) []byte {
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

func newTestRefiner() *Refiner {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	refiner, err := NewRefiner(&Config{
		InferenceBaseURL: "http://localhost:0",
		StudioCanvas:     512,
		CompressedCanvas: 256,
		MarginFraction:   0.10,
		JPEGQuality:      80,
		Logger:           logger,
	}, nil)
	Expect(err).NotTo(HaveOccurred(), "Failed to create refiner")
	return refiner
}

var _ = Describe("FactorFor", func() {
	DescribeTable("scale decisions",
		func(width, height, expected int) {
			Expect(FactorFor(width, height)).To(Equal(expected))
		},
		Entry("large images skip inference", 2400, 2000, 0),
		Entry("medium sparse images get 2x", 1200, 1000, 2),
		Entry("medium dense images skip inference", 2400, 1000, 0),
		Entry("small images get 4x", 640, 480, 4),
		Entry("the shorter side governs", 3000, 500, 4),
	)
})

var _ = Describe("ParseResetHint", func() {
	const fallback = 15 * time.Second

	It("prefers Retry-After seconds", func() {
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"7"}}}
		Expect(ParseResetHint(resp, fallback)).To(Equal(7 * time.Second))
	})

	It("derives the wait from X-RateLimit-Reset", func() {
		reset := time.Now().Add(30 * time.Second).Unix()
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		wait := ParseResetHint(resp, fallback)
		Expect(wait).To(BeNumerically(">", 25*time.Second))
		Expect(wait).To(BeNumerically("<=", 30*time.Second))
	})

	It("falls back for a reset in the past", func() {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10))
		Expect(ParseResetHint(resp, fallback)).To(Equal(fallback))
	})

	It("falls back for missing or malformed headers", func() {
		Expect(ParseResetHint(nil, fallback)).To(Equal(fallback))

		resp := &http.Response{Header: http.Header{}}
		Expect(ParseResetHint(resp, fallback)).To(Equal(fallback))

		resp.Header.Set("Retry-After", "soon")
		Expect(ParseResetHint(resp, fallback)).To(Equal(fallback))
	})
})

var _ = Describe("CanvasGeometry", func() {
	It("centers a square image inside the margin", func() {
		fitW, fitH, offX, offY := CanvasGeometry(1000, 1000, 2048, 0.10)
		// usable = 2048 * 0.8 = 1638
		Expect(fitW).To(Equal(1638))
		Expect(fitH).To(Equal(1638))
		Expect(offX).To(Equal((2048 - 1638) / 2))
		Expect(offY).To(Equal(offX))
	})

	It("preserves aspect ratio for landscape images", func() {
		fitW, fitH, _, offY := CanvasGeometry(2000, 1000, 2048, 0.10)
		Expect(fitW).To(Equal(1638))
		Expect(fitH).To(Equal(819))
		Expect(offY).To(BeNumerically(">", 0), "Short side gets extra whitespace")
	})

	It("preserves aspect ratio for portrait images", func() {
		fitW, fitH, offX, _ := CanvasGeometry(1000, 2000, 2048, 0.10)
		Expect(fitH).To(Equal(1638))
		Expect(fitW).To(Equal(819))
		Expect(offX).To(BeNumerically(">", 0))
	})

	It("never collapses to zero for degenerate inputs", func() {
		fitW, fitH, _, _ := CanvasGeometry(10000, 1, 512, 0.10)
		Expect(fitW).To(BeNumerically(">=", 1))
		Expect(fitH).To(BeNumerically(">=", 1))
	})
})

var _ = Describe("Composite", func() {
	var refiner *Refiner

	BeforeEach(func() {
		refiner = newTestRefiner()
	})

	It("produces a white-bordered square PNG in studio mode", func() {
		data, canvasSize, err := refiner.Composite(encodePNG(100, 100, color.NRGBA{R: 200, A: 255}), ModeStudio)
		Expect(err).NotTo(HaveOccurred())
		Expect(canvasSize).To(Equal(512))

		decoded, err := png.Decode(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred(), "Studio output should be PNG")
		Expect(decoded.Bounds().Dx()).To(Equal(512))
		Expect(decoded.Bounds().Dy()).To(Equal(512))

		r, g, b, _ := decoded.At(2, 2).RGBA()
		Expect(r >> 8).To(Equal(uint32(255)), "Corners must be white margin")
		Expect(g >> 8).To(Equal(uint32(255)))
		Expect(b >> 8).To(Equal(uint32(255)))
	})

	It("uses the smaller JPEG canvas in compressed mode", func() {
		data, canvasSize, err := refiner.Composite(encodePNG(100, 100, color.NRGBA{B: 200, A: 255}), ModeCompressed)
		Expect(err).NotTo(HaveOccurred())
		Expect(canvasSize).To(Equal(256))

		_, format, err := image.Decode(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("jpeg"))
	})

	It("fails cleanly on undecodable input", func() {
		_, _, err := refiner.Composite([]byte("garbage"), ModeStudio)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Refine", func() {
	It("composites the original bytes when no upscaler is configured", func() {
		refiner := newTestRefiner()
		cand := &scraper.Candidate{
			SourceURL: "https://cdn.example.com/p.png",
			Data:      encodePNG(64, 64, color.NRGBA{G: 180, A: 255}),
			Width:     64,
			Height:    64,
		}

		result := refiner.Refine(context.Background(), cand, ModeStudio)
		Expect(result).NotTo(BeNil())
		Expect(result.Upscaled).To(BeFalse())
		Expect(result.Width).To(Equal(512))
		Expect(result.ContentType).To(Equal("image/png"))
	})

	It("returns nil when nothing can be composited", func() {
		refiner := newTestRefiner()
		cand := &scraper.Candidate{Data: []byte("not an image"), Width: 64, Height: 64}
		Expect(refiner.Refine(context.Background(), cand, ModeStudio)).To(BeNil())
	})
})

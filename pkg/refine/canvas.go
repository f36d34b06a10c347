package refine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// CanvasGeometry computes the fitted image size and offset for centering an
// image of the given dimensions onto a square canvas with the configured
// margin, preserving aspect ratio.
func CanvasGeometry(imgW, imgH, canvas int, margin float64) (fitW, fitH, offX, offY int) {
	usable := int(float64(canvas) * (1 - 2*margin))
	if usable < 1 {
		usable = canvas
	}

	if imgW >= imgH {
		fitW = usable
		fitH = int(float64(imgH) * float64(usable) / float64(imgW))
	} else {
		fitH = usable
		fitW = int(float64(imgW) * float64(usable) / float64(imgH))
	}
	if fitW < 1 {
		fitW = 1
	}
	if fitH < 1 {
		fitH = 1
	}

	offX = (canvas - fitW) / 2
	offY = (canvas - fitH) / 2
	return fitW, fitH, offX, offY
}

// Composite centers the image onto a pure-white square canvas and encodes it
// in the mode's output format.
func (r *Refiner) Composite(data []byte, mode Mode) ([]byte, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image for compositing: %w", err)
	}

	canvasSize := r.config.StudioCanvas
	if mode == ModeCompressed {
		canvasSize = r.config.CompressedCanvas
	}

	b := img.Bounds()
	fitW, fitH, offX, offY := CanvasGeometry(b.Dx(), b.Dy(), canvasSize, r.config.MarginFraction)

	fitted := imaging.Resize(img, fitW, fitH, imaging.Lanczos)
	canvas := imaging.New(canvasSize, canvasSize, color.White)
	composed := imaging.Paste(canvas, fitted, image.Pt(offX, offY))

	var buf bytes.Buffer
	if mode == ModeCompressed {
		err = imaging.Encode(&buf, composed, imaging.JPEG, imaging.JPEGQuality(r.config.JPEGQuality))
	} else {
		err = imaging.Encode(&buf, composed, imaging.PNG)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode canvas: %w", err)
	}

	return buf.Bytes(), canvasSize, nil
}

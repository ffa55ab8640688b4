package detector

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-firewatch/images"
	"github.com/nvr-ai/go-firewatch/inference/runner"
)

var padColor = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// Letterbox records how a frame was scaled and padded into the model input.
type Letterbox struct {
	Scale   float64
	OffsetX int
	OffsetY int
	SrcW    int
	SrcH    int
}

// NewLetterbox fits a srcW x srcH frame into dstW x dstH keeping the aspect
// ratio, centred.
func NewLetterbox(srcW, srcH, dstW, dstH int) Letterbox {
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	nw := int(float64(srcW) * scale)
	nh := int(float64(srcH) * scale)
	return Letterbox{
		Scale:   scale,
		OffsetX: (dstW - nw) / 2,
		OffsetY: (dstH - nh) / 2,
		SrcW:    srcW,
		SrcH:    srcH,
	}
}

// Apply resizes img and pastes it on a gray dstW x dstH canvas.
func (l Letterbox) Apply(img image.Image, dstW, dstH int) *image.NRGBA {
	nw := uint(float64(l.SrcW) * l.Scale)
	nh := uint(float64(l.SrcH) * l.Scale)
	resized := resize.Resize(nw, nh, img, resize.Bilinear)
	canvas := imaging.New(dstW, dstH, padColor)
	return imaging.Paste(canvas, resized, image.Pt(l.OffsetX, l.OffsetY))
}

// Unmap converts a box in model input pixels back to frame pixels, clamped
// to the frame.
func (l Letterbox) Unmap(r images.Rect) images.Rect {
	x := func(v int) int { return int(math.Round(float64(v-l.OffsetX) / l.Scale)) }
	y := func(v int) int { return int(math.Round(float64(v-l.OffsetY) / l.Scale)) }
	return images.Rect{X1: x(r.X1), Y1: y(r.Y1), X2: x(r.X2), Y2: y(r.Y2)}.Clamp(l.SrcW, l.SrcH)
}

// FillTensor writes the RGB channels of img, scaled to [0, 1], into dst in
// the given layout.
func FillTensor(dst []float32, img *image.NRGBA, layout runner.Layout) error {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	if len(dst) != plane*3 {
		return fmt.Errorf("input buffer holds %d values, a %dx%d RGB image needs %d", len(dst), w, h, plane*3)
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				if layout == runner.NHWC {
					dst[i*3+c] = v
				} else {
					dst[c*plane+i] = v
				}
			}
		}
	}
	return nil
}

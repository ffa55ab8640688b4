package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-firewatch/detector"
	"gocv.io/x/gocv"
)

// gocv takes colors as RGBA and writes them to the Mat as BGR.
var (
	// BoxColor is BGR(64, 64, 255).
	BoxColor = color.RGBA{R: 255, G: 64, B: 64, A: 0}
	// TextColor is white.
	TextColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

const (
	// BoxShrink moves every edge inward by this fraction of the box size.
	BoxShrink = 0.2

	boxThickness = 4
	labelScale   = 0.8
	labelWeight  = 2
	labelInset   = 8
	fpsScale     = 0.5
	fpsWeight    = 2
	fpsX         = 8
	fpsY         = 24
)

// Label formats the caption of a detection, e.g. "87% fire".
func Label(score float32, name string) string {
	return fmt.Sprintf("%d%% %s", int(score*100), name)
}

// ClassName returns names[class], or a numeric name when out of range.
func ClassName(names []string, class int) string {
	if class >= 0 && class < len(names) {
		return names[class]
	}
	return fmt.Sprintf("class %d", class)
}

// Annotate draws a shrunk box and a label for every detection onto frame.
func Annotate(frame *gocv.Mat, dets detector.Detections, names []string) {
	for i, box := range dets.Boxes {
		r := box.Shrink(BoxShrink)
		top, left, bottom, right := r.TLBR()

		gocv.Rectangle(frame, image.Rect(left, top, right, bottom), BoxColor, boxThickness)
		gocv.PutTextWithParams(frame,
			Label(dets.Scores[i], ClassName(names, dets.Classes[i])),
			image.Pt(left+labelInset, bottom-labelInset),
			gocv.FontHersheySimplex, labelScale, BoxColor, labelWeight, gocv.LineAA, false)
	}
}

// DrawFPS writes the frame rate in the top-left corner of frame.
func DrawFPS(frame *gocv.Mat, fps float64) {
	gocv.PutTextWithParams(frame, fmt.Sprintf("FPS: %.2f", fps), image.Pt(fpsX, fpsY),
		gocv.FontHersheySimplex, fpsScale, TextColor, fpsWeight, gocv.LineAA, false)
}

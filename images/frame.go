package images

import (
	"crypto/md5"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrUnsupportedMat is returned when a Mat is not an 8-bit, 3 channel image.
var ErrUnsupportedMat = errors.New("unsupported mat type")

// FromRGBMat copies an 8-bit RGB Mat into an *image.NRGBA.
//
// gocv's own Mat.ToImage assumes BGR channel order for 3 channel data, which
// would swap red and blue for frames that have already been converted to RGB.
//
// Arguments:
//   - mat: An RGB frame of type gocv.MatTypeCV8UC3.
//
// Returns:
//   - *image.NRGBA: The frame as a Go image, fully opaque.
//   - error: ErrUnsupportedMat if the Mat is empty or not CV8UC3.
func FromRGBMat(mat gocv.Mat) (*image.NRGBA, error) {
	if mat.Empty() || mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Wrapf(ErrUnsupportedMat, "type %v", mat.Type())
	}

	width, height := mat.Cols(), mat.Rows()
	src, err := mat.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "reading mat data")
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := src[y*width*3 : (y+1)*width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			dst[x*4+0] = row[x*3+0]
			dst[x*4+1] = row[x*3+1]
			dst[x*4+2] = row[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img, nil
}

// ComputeMatChecksum generates a deterministic checksum for a Mat, used to
// compare frames before and after drawing.
//
// Arguments:
//   - mat: The Mat to compute checksum for.
//
// Returns:
//   - A hex-encoded MD5 checksum string, or "empty" for an empty Mat.
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, _ := mat.DataPtrUint8()
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}

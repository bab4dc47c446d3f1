package rotation

import (
	"bytes"
	"image"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

// exifOrientations maps the EXIF Orientation tag onto the drawing that shows
// the stored pixels upright: an optional horizontal mirror followed by a
// clockwise turn.
var exifOrientations = map[int]struct {
	mirror bool
	angle  Angle
}{
	2: {mirror: true, angle: Angle0},
	3: {angle: Angle180},
	4: {mirror: true, angle: Angle180},
	5: {mirror: true, angle: Angle270},
	6: {angle: Angle90},
	7: {mirror: true, angle: Angle90},
	8: {angle: Angle270},
}

// jpegOrientation returns the EXIF Orientation of a JPEG, or 1 when the file
// carries none or an unreadable one.
func jpegOrientation(data []byte) (orientation int) {
	defer func() {
		if recover() != nil {
			orientation = 1
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	value, err := tag.Int(0)
	if err != nil || value < 1 || value > 8 {
		return 1
	}
	return value
}

// applyOrientation returns img as it is meant to be displayed. Browsers apply
// the tag before drawing, so rotations start from the upright image.
func applyOrientation(img image.Image, orientation int) image.Image {
	o, ok := exifOrientations[orientation]
	if !ok {
		return img
	}
	bounds := img.Bounds()
	out := Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}.Rotated(o.angle)

	surface := newSurface(img, out)
	draw.NearestNeighbor.Transform(surface, orientMatrix(bounds, out, o.angle, o.mirror), img, bounds, draw.Src, nil)
	return surface
}

package rotation

import (
	"fmt"
	"math"
)

// ImageBuffer is an encoded image together with the media type it was declared as.
// The media type must describe the actual encoding of Data.
type ImageBuffer struct {
	Data      []byte
	MediaType string
}

// Len returns the size of the encoded image in bytes
func (b ImageBuffer) Len() int {
	return len(b.Data)
}

// IsEmpty reports whether the buffer carries no image bytes
func (b ImageBuffer) IsEmpty() bool {
	return len(b.Data) == 0
}

// Dimensions is the pixel size of a decoded image
type Dimensions struct {
	Width  int
	Height int
}

// Rotated returns the dimensions an image has after being turned by angle.
// Width and height are swapped for 90 and 270 degrees and kept otherwise.
func (d Dimensions) Rotated(angle Angle) Dimensions {
	if angle.swapsAxes() {
		return Dimensions{Width: d.Height, Height: d.Width}
	}
	return d
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Angle is a clockwise rotation in degrees. Only quarter turns are supported.
type Angle int

const (
	Angle0   Angle = 0
	Angle90  Angle = 90
	Angle180 Angle = 180
	Angle270 Angle = 270
)

// ParseAngle converts degrees into an Angle, rejecting anything that is not a quarter turn
func ParseAngle(degrees int) (Angle, error) {
	angle := Angle(degrees)
	if !angle.Valid() {
		return 0, fmt.Errorf("%w: %d degrees (must be 0, 90, 180 or 270)", ErrUnsupportedAngle, degrees)
	}
	return angle, nil
}

// Valid reports whether the angle is one of the four supported quarter turns
func (a Angle) Valid() bool {
	switch a {
	case Angle0, Angle90, Angle180, Angle270:
		return true
	}
	return false
}

// Radians returns the angle in radians
func (a Angle) Radians() float64 {
	return float64(a) * (math.Pi / 180)
}

// Add accumulates two quarter turns, wrapping at a full turn
func (a Angle) Add(other Angle) Angle {
	return Angle((int(a) + int(other)) % 360)
}

func (a Angle) swapsAxes() bool {
	return a == Angle90 || a == Angle270
}

// sincos returns exact values for quarter turns so that the affine transform
// maps pixel centers onto pixel centers without floating point drift.
func (a Angle) sincos() (sin, cos float64) {
	switch a {
	case Angle0:
		return 0, 1
	case Angle90:
		return 1, 0
	case Angle180:
		return 0, -1
	case Angle270:
		return -1, 0
	}
	return math.Sincos(a.Radians())
}

package rotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/tiff"
)

type rasterBitmap struct {
	img         image.Image
	jpegQuality int
}

func (b *rasterBitmap) Dimensions() Dimensions {
	bounds := b.img.Bounds()
	return Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}
}

func (b *rasterBitmap) Image() (image.Image, error) {
	return b.img, nil
}

func (b *rasterBitmap) DrawRotated(ctx context.Context, angle Angle, mediaType string) ([]byte, error) {
	if !angle.Valid() {
		return nil, &Error{Op: "draw", MediaType: mediaType, Kind: ErrUnsupportedAngle, Err: fmt.Errorf("%d degrees", int(angle))}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	surface := drawRotated(b.img, angle)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return encodeRaster(surface, NormalizeMediaType(mediaType), b.jpegQuality)
}

// drawRotated allocates a surface of the rotated size and draws src onto it
// through the same affine transform a 2D canvas would use: move the origin to
// the center of the surface, rotate, then draw the image centered on the origin.
func drawRotated(src image.Image, angle Angle) draw.Image {
	bounds := src.Bounds()
	in := Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}
	out := in.Rotated(angle)

	surface := newSurface(src, out)
	draw.NearestNeighbor.Transform(surface, rotationMatrix(bounds, out, angle), src, bounds, draw.Src, nil)
	return surface
}

// newSurface keeps paletted images paletted so GIF output reuses the original colors
func newSurface(src image.Image, size Dimensions) draw.Image {
	rect := image.Rect(0, 0, size.Width, size.Height)
	if paletted, ok := src.(*image.Paletted); ok {
		return image.NewPaletted(rect, paletted.Palette)
	}
	return image.NewRGBA(rect)
}

// rotationMatrix returns translate(out/2) · rotate(angle) · translate(-center(src))
func rotationMatrix(src image.Rectangle, out Dimensions, angle Angle) f64.Aff3 {
	return orientMatrix(src, out, angle, false)
}

// orientMatrix is rotationMatrix with an optional horizontal mirror applied
// before the turn
func orientMatrix(src image.Rectangle, out Dimensions, angle Angle, mirror bool) f64.Aff3 {
	sin, cos := angle.sincos()
	fx := 1.0
	if mirror {
		fx = -1
	}

	cx := float64(src.Min.X) + float64(src.Dx())/2
	cy := float64(src.Min.Y) + float64(src.Dy())/2
	tx := float64(out.Width) / 2
	ty := float64(out.Height) / 2

	a, b := cos*fx, -sin
	d, e := sin*fx, cos
	return f64.Aff3{
		a, b, tx - a*cx - b*cy,
		d, e, ty - d*cx - e*cy,
	}
}

func encodeRaster(img image.Image, mediaType string, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch mediaType {
	case MediaTypeJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case MediaTypePNG:
		err = png.Encode(&buf, img)
	case MediaTypeGIF:
		err = gif.Encode(&buf, img, nil)
	case MediaTypeBMP:
		err = bmp.Encode(&buf, img)
	case MediaTypeTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	case MediaTypeWebP:
		return nil, encodeError(mediaType, fmt.Errorf("%w: no webp encoder available", ErrUnsupportedMediaType))
	default:
		return nil, encodeError(mediaType, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType))
	}

	if err != nil {
		return nil, encodeError(mediaType, err)
	}
	if buf.Len() == 0 {
		return nil, encodeError(mediaType, errors.New("encoder produced no output"))
	}
	return buf.Bytes(), nil
}

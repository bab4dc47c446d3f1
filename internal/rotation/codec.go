package rotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultJPEGQuality matches the quality browsers use when a canvas is exported as JPEG
	DefaultJPEGQuality = 92
	// DefaultMaxPixels bounds the decoded size of an image, about 64 megapixels
	DefaultMaxPixels int64 = 64 << 20
)

// Decoder turns encoded bytes into a Bitmap. Decoding may block and must
// respect ctx.
type Decoder interface {
	Decode(ctx context.Context, input ImageBuffer) (Bitmap, error)
}

// Bitmap is a decoded image that can be drawn onto a rotated surface and
// serialized again.
type Bitmap interface {
	Dimensions() Dimensions
	DrawRotated(ctx context.Context, angle Angle, mediaType string) ([]byte, error)
}

// Rasterizer is implemented by bitmaps that can hand out their pixels
type Rasterizer interface {
	Image() (image.Image, error)
}

// Codec is the default Decoder. Raster formats are decoded with the image
// package and the golang.org/x/image decoders, SVG documents are parsed
// as XML and rendered with oksvg when pixels are needed.
type Codec struct {
	JPEGQuality int
	// SVGFallback is used for SVG documents without width, height and viewBox
	SVGFallback Dimensions
	// MaxPixels rejects images whose width times height exceeds it before
	// any pixel memory is allocated. Zero means DefaultMaxPixels.
	MaxPixels int64
}

// NewCodec creates a codec with the default JPEG quality and pixel limit
func NewCodec() *Codec {
	return &Codec{JPEGQuality: DefaultJPEGQuality, MaxPixels: DefaultMaxPixels}
}

// Decode implements Decoder
func (c *Codec) Decode(ctx context.Context, input ImageBuffer) (Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mediaType := NormalizeMediaType(input.MediaType)
	if input.IsEmpty() {
		return nil, decodeError(mediaType, errors.New("image buffer is empty"))
	}
	if mediaType == "" || mediaType == mediaTypeOctetStream {
		mediaType = DetectMediaType(input.Data)
	}

	if mediaType == MediaTypeSVG {
		return decodeSVG(input.Data, c.SVGFallback)
	}
	if !IsSupported(mediaType) {
		return nil, decodeError(mediaType, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType))
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(input.Data))
	if err != nil {
		slog.Debug("Codec: failed to read image header", "media_type", mediaType, "error", err)
		return nil, decodeError(mediaType, err)
	}
	if actual := mediaTypeForFormat(format); actual != mediaType {
		return nil, decodeError(mediaType, fmt.Errorf("declared media type %s does not match encoded format %s", mediaType, format))
	}
	if err := c.checkPixels(mediaType, Dimensions{Width: config.Width, Height: config.Height}); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(input.Data))
	if err != nil {
		slog.Debug("Codec: failed to decode image", "media_type", mediaType, "error", err)
		return nil, decodeError(mediaType, err)
	}
	if mediaType == MediaTypeJPEG {
		if orientation := jpegOrientation(input.Data); orientation != 1 {
			slog.Debug("Codec: applying EXIF orientation", "orientation", orientation)
			img = applyOrientation(img, orientation)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quality := c.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &rasterBitmap{img: img, jpegQuality: quality}, nil
}

// Raster decodes input and returns its pixels. SVG documents are rendered
// at their intrinsic size.
func (c *Codec) Raster(ctx context.Context, input ImageBuffer) (image.Image, error) {
	bitmap, err := c.Decode(ctx, input)
	if err != nil {
		return nil, err
	}
	rasterizer, ok := bitmap.(Rasterizer)
	if !ok {
		return nil, decodeError(input.MediaType, errors.New("bitmap cannot be rasterized"))
	}
	// vector documents are cheap to rotate but not to render
	if _, vector := bitmap.(*svgBitmap); vector {
		if err := c.checkPixels(MediaTypeSVG, bitmap.Dimensions()); err != nil {
			return nil, err
		}
	}
	return rasterizer.Image()
}

func (c *Codec) checkPixels(mediaType string, dims Dimensions) error {
	limit := c.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(dims.Width)*int64(dims.Height) > limit {
		return decodeError(mediaType, fmt.Errorf("%w: %s exceeds %d pixels", ErrImageTooLarge, dims, limit))
	}
	return nil
}

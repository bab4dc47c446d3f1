package commands

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/jo-hoe/gorotate/internal/backend/commandstructure"
	"github.com/jo-hoe/gorotate/internal/rotation"
	"golang.org/x/image/draw"
)

// rows per band handed to a worker while scaling
const thumbnailBandHeight = 32

// ThumbnailParams represents typed parameters for the thumbnail command
type ThumbnailParams struct {
	Height *int // Optional: if nil, derived from width
	Width  *int // Optional: if nil, derived from height
}

// NewThumbnailParamsFromMap creates ThumbnailParams from a generic map
func NewThumbnailParamsFromMap(params map[string]any) (*ThumbnailParams, error) {
	if err := commandstructure.RejectUnknownParams(params, "width", "height"); err != nil {
		return nil, err
	}

	height, err := commandstructure.OptionalPositiveIntParam(params, "height")
	if err != nil {
		return nil, err
	}
	width, err := commandstructure.OptionalPositiveIntParam(params, "width")
	if err != nil {
		return nil, err
	}
	if height == nil && width == nil {
		return nil, fmt.Errorf("at least one of 'height' or 'width' must be specified")
	}
	return &ThumbnailParams{Height: height, Width: width}, nil
}

// ThumbnailCommand renders a PNG preview that fits the configured box
type ThumbnailCommand struct {
	name   string
	params *ThumbnailParams
	codec  *rotation.Codec
}

// NewThumbnailCommand creates a new thumbnail command from configuration parameters
func NewThumbnailCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewThumbnailParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ThumbnailCommand{
		name:   "ThumbnailCommand",
		params: typedParams,
		codec:  rotation.NewCodec(),
	}, nil
}

// Name returns the command name
func (c *ThumbnailCommand) Name() string {
	return c.name
}

// Execute decodes (or rasterizes) the image and scales it down, preserving
// the aspect ratio. Images already inside the box are not enlarged.
func (c *ThumbnailCommand) Execute(ctx context.Context, buf rotation.ImageBuffer) (rotation.ImageBuffer, error) {
	slog.Debug("ThumbnailCommand: decoding image",
		"input_size_bytes", buf.Len(),
		"media_type", buf.MediaType)

	src, err := c.codec.Raster(ctx, buf)
	if err != nil {
		return rotation.ImageBuffer{}, err
	}

	bounds := src.Bounds()
	target := c.targetSize(rotation.Dimensions{Width: bounds.Dx(), Height: bounds.Dy()})
	slog.Debug("ThumbnailCommand: scaling image",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", target.Width,
		"target_height", target.Height)

	dst := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	bands := (target.Height + thumbnailBandHeight - 1) / thumbnailBandHeight
	canceled := parallelForStop(bands, func(i int) bool {
		if ctx.Err() != nil {
			return true
		}
		band := image.Rect(0, i*thumbnailBandHeight, target.Width, min((i+1)*thumbnailBandHeight, target.Height))
		// Scale maps the full source onto dst.Rect and clips to the band
		draw.ApproxBiLinear.Scale(dst.SubImage(band).(*image.RGBA), dst.Rect, src, bounds, draw.Src, nil)
		return false
	})
	if canceled {
		return rotation.ImageBuffer{}, ctx.Err()
	}

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		slog.Error("ThumbnailCommand: failed to encode thumbnail", "error", err)
		return rotation.ImageBuffer{}, fmt.Errorf("%w: failed to encode thumbnail: %w", rotation.ErrEncodeFailure, err)
	}

	slog.Debug("ThumbnailCommand: thumbnail complete", "output_size_bytes", out.Len())
	return rotation.ImageBuffer{Data: out.Bytes(), MediaType: rotation.MediaTypePNG}, nil
}

func (c *ThumbnailCommand) targetSize(original rotation.Dimensions) rotation.Dimensions {
	scale := 1.0
	if c.params.Width != nil {
		scale = min(scale, float64(*c.params.Width)/float64(original.Width))
	}
	if c.params.Height != nil {
		scale = min(scale, float64(*c.params.Height)/float64(original.Height))
	}
	return rotation.Dimensions{
		Width:  max(1, int(float64(original.Width)*scale+0.5)),
		Height: max(1, int(float64(original.Height)*scale+0.5)),
	}
}

// UseCodec replaces the default codec, e.g. with one that knows the SVG
// fallback size
func (c *ThumbnailCommand) UseCodec(codec *rotation.Codec) {
	c.codec = codec
}

func init() {
	commandstructure.DefaultRegistry.MustRegister("ThumbnailCommand", NewThumbnailCommand)
}

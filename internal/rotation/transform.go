// Package rotation turns encoded images by quarter turns while preserving
// their encoding. Decoding and drawing are delegated to a Decoder so the
// transform can run against any drawing backend.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jo-hoe/gorotate/internal/rotation"

// Transform rotates encoded images. It is safe for concurrent use as long as
// its Decoder is.
type Transform struct {
	decoder Decoder
	codec   *Codec
	tracer  trace.Tracer
}

// Option configures a Transform
type Option func(*Transform)

// WithDecoder replaces the default codec
func WithDecoder(decoder Decoder) Option {
	return func(t *Transform) {
		t.decoder = decoder
	}
}

// WithJPEGQuality sets the quality used when re-encoding JPEG images with the default codec
func WithJPEGQuality(quality int) Option {
	return func(t *Transform) {
		t.codec.JPEGQuality = quality
	}
}

// WithSVGFallbackSize sets the size assumed for SVG documents that declare none
func WithSVGFallbackSize(width, height int) Option {
	return func(t *Transform) {
		t.codec.SVGFallback = Dimensions{Width: width, Height: height}
	}
}

// WithMaxPixels bounds the pixel count of images decoded by the default codec
func WithMaxPixels(limit int64) Option {
	return func(t *Transform) {
		t.codec.MaxPixels = limit
	}
}

// WithTracer sets the tracer used for rotation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Transform) {
		t.tracer = tracer
	}
}

// NewTransform creates a Transform backed by the default Codec unless a Decoder is supplied
func NewTransform(opts ...Option) *Transform {
	codec := NewCodec()
	t := &Transform{
		decoder: codec,
		codec:   codec,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Codec returns the default codec, so that other decoding steps share its
// settings. It is not used for decoding when WithDecoder was given.
func (t *Transform) Codec() *Codec {
	return t.codec
}

// Rotate decodes input, draws it turned clockwise by angle and encodes the
// result in the input's media type. Either a complete image is returned or an
// error; the input is never modified. An angle of zero still runs the full
// decode, draw and encode cycle.
func (t *Transform) Rotate(ctx context.Context, input ImageBuffer, angle Angle) (ImageBuffer, error) {
	ctx, span := t.tracer.Start(ctx, "rotation.Rotate", trace.WithAttributes(
		attribute.Int("rotation.angle", int(angle)),
		attribute.String("rotation.media_type", input.MediaType),
		attribute.Int("rotation.input_bytes", input.Len()),
	))
	defer span.End()

	out, err := t.rotate(ctx, input, angle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ImageBuffer{}, err
	}
	span.SetAttributes(attribute.Int("rotation.output_bytes", out.Len()))
	return out, nil
}

func (t *Transform) rotate(ctx context.Context, input ImageBuffer, angle Angle) (ImageBuffer, error) {
	start := time.Now()

	mediaType := NormalizeMediaType(input.MediaType)
	if !angle.Valid() {
		return ImageBuffer{}, &Error{Op: "rotate", MediaType: mediaType, Kind: ErrUnsupportedAngle, Err: fmt.Errorf("%d degrees", int(angle))}
	}
	if input.IsEmpty() {
		return ImageBuffer{}, decodeError(mediaType, fmt.Errorf("image buffer is empty"))
	}
	if mediaType == "" || mediaType == mediaTypeOctetStream {
		mediaType = DetectMediaType(input.Data)
	}

	slog.Debug("rotation: decoding image",
		"input_size_bytes", input.Len(),
		"media_type", mediaType,
		"angle", int(angle))

	bitmap, err := t.decoder.Decode(ctx, ImageBuffer{Data: input.Data, MediaType: mediaType})
	if err != nil {
		return ImageBuffer{}, classify(err, ErrDecodeFailure, mediaType)
	}

	in := bitmap.Dimensions()
	out := in.Rotated(angle)
	slog.Debug("rotation: drawing rotated surface",
		"input_dimensions", in.String(),
		"output_dimensions", out.String())

	data, err := bitmap.DrawRotated(ctx, angle, mediaType)
	if err != nil {
		return ImageBuffer{}, classify(err, ErrEncodeFailure, mediaType)
	}

	slog.Debug("rotation: complete",
		"output_size_bytes", len(data),
		"media_type", mediaType,
		"duration_ms", time.Since(start).Milliseconds())

	return ImageBuffer{Data: data, MediaType: outputMediaType(input.MediaType, mediaType)}, nil
}

// outputMediaType keeps the caller's spelling of the media type (image/jpg
// stays image/jpg) as long as it names the encoding that was written.
func outputMediaType(declared, written string) string {
	if declared != "" && NormalizeMediaType(declared) == written {
		return declared
	}
	return written
}

// Inspect decodes input and reports its dimensions without re-encoding it
func (t *Transform) Inspect(ctx context.Context, input ImageBuffer) (Dimensions, error) {
	bitmap, err := t.decoder.Decode(ctx, input)
	if err != nil {
		return Dimensions{}, classify(err, ErrDecodeFailure, NormalizeMediaType(input.MediaType))
	}
	return bitmap.Dimensions(), nil
}

package rotation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCodec_MaxPixels(t *testing.T) {
	input := encodeTestImage(t, newPatternImage(20, 20), MediaTypePNG)

	codec := &Codec{MaxPixels: 100}
	_, err := codec.Decode(context.Background(), input)
	if !errors.Is(err, ErrImageTooLarge) || !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrImageTooLarge as a decode failure, got %v", err)
	}

	codec.MaxPixels = 400
	if _, err := codec.Decode(context.Background(), input); err != nil {
		t.Fatalf("expected an image at the limit to decode, got %v", err)
	}
}

func TestCodec_MaxPixelsDefault(t *testing.T) {
	codec := &Codec{}
	if err := codec.checkPixels(MediaTypePNG, Dimensions{8192, 8192}); err != nil {
		t.Fatalf("expected 8192x8192 within the default limit, got %v", err)
	}
	if err := codec.checkPixels(MediaTypePNG, Dimensions{1 << 16, 1 << 16}); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestCodec_RasterBoundsSVG(t *testing.T) {
	input := ImageBuffer{Data: []byte(testSVG), MediaType: MediaTypeSVG}
	codec := &Codec{MaxPixels: 100}

	// rotating a vector document does not render it
	if _, err := codec.Decode(context.Background(), input); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, err := codec.Raster(context.Background(), input); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge when rendering, got %v", err)
	}
}

func TestRotate_TooManyPixels(t *testing.T) {
	input := encodeTestImage(t, newPatternImage(20, 20), MediaTypePNG)
	_, err := NewTransform(WithMaxPixels(100)).Rotate(context.Background(), input, Angle90)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestRotate_KeepsDeclaredMediaTypeSpelling(t *testing.T) {
	input := encodeTestImage(t, newPatternImage(6, 4), MediaTypeJPEG)
	transform := NewTransform()

	tests := []struct {
		declared string
		want     string
	}{
		{"image/jpg", "image/jpg"},
		{MediaTypeJPEG, MediaTypeJPEG},
		{"", MediaTypeJPEG},
		{"application/octet-stream", MediaTypeJPEG},
	}
	for _, tt := range tests {
		out, err := transform.Rotate(context.Background(), ImageBuffer{Data: input.Data, MediaType: tt.declared}, Angle90)
		if err != nil {
			t.Fatalf("%q: Rotate failed: %v", tt.declared, err)
		}
		if out.MediaType != tt.want {
			t.Errorf("%q: expected media type %q, got %q", tt.declared, tt.want, out.MediaType)
		}
	}
}

func TestTransform_WithTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	transform := NewTransform(WithTracer(provider.Tracer("test")))
	input := encodeTestImage(t, newPatternImage(4, 3), MediaTypePNG)

	if _, err := transform.Rotate(context.Background(), input, Angle270); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if _, err := transform.Rotate(context.Background(), input, Angle(45)); err == nil {
		t.Fatal("expected an error for 45 degrees")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, span := range spans {
		if span.Name() != "rotation.Rotate" {
			t.Errorf("unexpected span name %q", span.Name())
		}
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["rotation.angle"].AsInt64() != 270 {
		t.Errorf("expected angle 270, got %v", attrs["rotation.angle"])
	}
	if attrs["rotation.media_type"].AsString() != MediaTypePNG {
		t.Errorf("expected media type attribute, got %v", attrs["rotation.media_type"])
	}
	if attrs["rotation.output_bytes"].AsInt64() <= 0 {
		t.Error("expected output size to be recorded")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected failed rotation to mark the span, got %v", spans[1].Status())
	}
}

package rotation

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestReadImage(t *testing.T) {
	input := encodeTestImage(t, newPatternImage(4, 4), MediaTypePNG)

	t.Run("declared type is normalized", func(t *testing.T) {
		buf, err := ReadImage(context.Background(), bytes.NewReader(input.Data), "image/x-png", 0)
		if err != nil {
			t.Fatalf("ReadImage failed: %v", err)
		}
		if buf.MediaType != MediaTypePNG || !bytes.Equal(buf.Data, input.Data) {
			t.Fatalf("unexpected buffer: %s, %d bytes", buf.MediaType, buf.Len())
		}
	})

	t.Run("generic type is inferred", func(t *testing.T) {
		buf, err := ReadImage(context.Background(), bytes.NewReader(input.Data), "application/octet-stream", 0)
		if err != nil {
			t.Fatalf("ReadImage failed: %v", err)
		}
		if buf.MediaType != MediaTypePNG {
			t.Fatalf("expected image/png, got %s", buf.MediaType)
		}
	})

	t.Run("limit exceeded", func(t *testing.T) {
		_, err := ReadImage(context.Background(), bytes.NewReader(input.Data), MediaTypePNG, 8)
		if !errors.Is(err, ErrReadFailure) {
			t.Fatalf("expected ErrReadFailure, got %v", err)
		}
	})

	t.Run("reader error", func(t *testing.T) {
		_, err := ReadImage(context.Background(), failingReader{}, MediaTypePNG, 0)
		if !errors.Is(err, ErrReadFailure) {
			t.Fatalf("expected ErrReadFailure, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ReadImage(ctx, bytes.NewReader(input.Data), MediaTypePNG, 0)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

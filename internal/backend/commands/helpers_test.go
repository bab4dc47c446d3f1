package commands

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/jo-hoe/gorotate/internal/rotation"
)

// makePatternImage returns a gray image with a red top-left pixel
func makePatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func encodePNG(t *testing.T, img image.Image) rotation.ImageBuffer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return rotation.ImageBuffer{Data: buf.Bytes(), MediaType: rotation.MediaTypePNG}
}

func encodeJPEG(t *testing.T, img image.Image) rotation.ImageBuffer {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return rotation.ImageBuffer{Data: buf.Bytes(), MediaType: rotation.MediaTypeJPEG}
}

func decodeBounds(t *testing.T, buf rotation.ImageBuffer) (image.Rectangle, string) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(buf.Data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return img.Bounds(), format
}

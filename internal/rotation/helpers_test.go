package rotation

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	white = color.RGBA{255, 255, 255, 255}
	gray  = color.RGBA{128, 128, 128, 255}
)

// newPatternImage builds a gray image with distinct corner colors to detect rotations
func newPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, gray)
		}
	}
	img.SetRGBA(0, 0, red)
	img.SetRGBA(width-1, 0, green)
	img.SetRGBA(0, height-1, blue)
	img.SetRGBA(width-1, height-1, white)
	return img
}

func encodeTestImage(t *testing.T, img image.Image, mediaType string) ImageBuffer {
	t.Helper()

	var buf bytes.Buffer
	var err error
	switch mediaType {
	case MediaTypePNG:
		err = png.Encode(&buf, img)
	case MediaTypeJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case MediaTypeGIF:
		err = gif.Encode(&buf, img, nil)
	case MediaTypeBMP:
		err = bmp.Encode(&buf, img)
	case MediaTypeTIFF:
		err = tiff.Encode(&buf, img, nil)
	default:
		t.Fatalf("no test encoder for %s", mediaType)
	}
	if err != nil {
		t.Fatalf("failed to encode %s test image: %v", mediaType, err)
	}
	return ImageBuffer{Data: buf.Bytes(), MediaType: mediaType}
}

func decodeTestImage(t *testing.T, buf ImageBuffer) (image.Image, string) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(buf.Data))
	if err != nil {
		t.Fatalf("result is not a decodable image: %v", err)
	}
	return img, format
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

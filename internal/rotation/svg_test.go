package rotation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
)

const testSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="40" height="20">
	<rect x="0" y="0" width="40" height="20" fill="#ff0000"/>
</svg>`

func TestRotateSVG_SwapsDimensions(t *testing.T) {
	transform := NewTransform()
	input := ImageBuffer{Data: []byte(testSVG), MediaType: MediaTypeSVG}

	out, err := transform.Rotate(context.Background(), input, Angle90)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if out.MediaType != MediaTypeSVG {
		t.Fatalf("expected %s, got %s", MediaTypeSVG, out.MediaType)
	}

	dims, err := transform.Inspect(context.Background(), out)
	if err != nil {
		t.Fatalf("rotated SVG could not be decoded: %v", err)
	}
	if dims != (Dimensions{20, 40}) {
		t.Fatalf("expected 20x40, got %s", dims)
	}
}

func TestRotateSVG_FullTurnCycle(t *testing.T) {
	transform := NewTransform()
	current := ImageBuffer{Data: []byte(testSVG), MediaType: MediaTypeSVG}

	for step := 0; step < 4; step++ {
		out, err := transform.Rotate(context.Background(), current, Angle90)
		if err != nil {
			t.Fatalf("step %d: Rotate failed: %v", step, err)
		}
		current = out
	}

	dims, err := transform.Inspect(context.Background(), current)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if dims != (Dimensions{40, 20}) {
		t.Fatalf("expected 40x20 after a full turn, got %s", dims)
	}
}

func TestDecodeSVG_Size(t *testing.T) {
	tests := []struct {
		name     string
		svg      string
		fallback Dimensions
		want     Dimensions
		wantErr  bool
	}{
		{
			name: "explicit size with px unit",
			svg:  `<svg xmlns="http://www.w3.org/2000/svg" width="120px" height="80px"></svg>`,
			want: Dimensions{120, 80},
		},
		{
			name: "viewBox only",
			svg:  `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64,32"/>`,
			want: Dimensions{64, 32},
		},
		{
			name:     "relative size uses viewBox",
			svg:      `<svg xmlns="http://www.w3.org/2000/svg" width="100%" height="100%" viewBox="0 0 10 20"/>`,
			fallback: Dimensions{300, 300},
			want:     Dimensions{10, 20},
		},
		{
			name:     "no size uses fallback",
			svg:      `<svg xmlns="http://www.w3.org/2000/svg"><circle cx="5" cy="5" r="4"/></svg>`,
			fallback: Dimensions{50, 25},
			want:     Dimensions{50, 25},
		},
		{
			name:    "no size without fallback",
			svg:     `<svg xmlns="http://www.w3.org/2000/svg"><circle cx="5" cy="5" r="4"/></svg>`,
			wantErr: true,
		},
		{
			name:    "wrong root element",
			svg:     `<html><body>not an svg</body></html>`,
			wantErr: true,
		},
		{
			name:    "unbalanced markup",
			svg:     `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><g></svg>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bitmap, err := decodeSVG([]byte(tt.svg), tt.fallback)
			if tt.wantErr {
				if !errors.Is(err, ErrDecodeFailure) {
					t.Fatalf("expected ErrDecodeFailure, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeSVG failed: %v", err)
			}
			if bitmap.Dimensions() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, bitmap.Dimensions())
			}
		})
	}
}

func TestRotateSVG_FallbackOption(t *testing.T) {
	input := ImageBuffer{
		Data:      []byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect width="4" height="4"/></svg>`),
		MediaType: MediaTypeSVG,
	}

	if _, err := NewTransform().Rotate(context.Background(), input, Angle90); !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure without fallback, got %v", err)
	}

	transform := NewTransform(WithSVGFallbackSize(30, 10))
	out, err := transform.Rotate(context.Background(), input, Angle90)
	if err != nil {
		t.Fatalf("Rotate with fallback failed: %v", err)
	}
	dims, err := transform.Inspect(context.Background(), out)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if dims != (Dimensions{10, 30}) {
		t.Fatalf("expected 10x30, got %s", dims)
	}
}

func TestSVGBitmap_RefusesRasterTarget(t *testing.T) {
	bitmap, err := decodeSVG([]byte(testSVG), Dimensions{})
	if err != nil {
		t.Fatalf("decodeSVG failed: %v", err)
	}
	_, err = bitmap.DrawRotated(context.Background(), Angle90, MediaTypePNG)
	if !errors.Is(err, ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
}

func TestCodec_RasterizesSVG(t *testing.T) {
	img, err := NewCodec().Raster(context.Background(), ImageBuffer{Data: []byte(testSVG), MediaType: MediaTypeSVG})
	if err != nil {
		t.Fatalf("Raster failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Fatalf("expected 40x20 raster, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
	if got := rgbaAt(img, 20, 10); got != red {
		t.Fatalf("expected red center pixel, got %v", got)
	}
}

// halfRedSVG is 20x10 with the left half red
const halfRedSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="10"><rect x="0" y="0" width="10" height="10" fill="#ff0000"/></svg>`

// rotateAndRender rotates an SVG document and renders the result
func rotateAndRender(t *testing.T, svg string, angle Angle) image.Image {
	t.Helper()
	transform := NewTransform()
	out, err := transform.Rotate(context.Background(), ImageBuffer{Data: []byte(svg), MediaType: MediaTypeSVG}, angle)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	img, err := transform.Codec().Raster(context.Background(), out)
	if err != nil {
		t.Fatalf("rotated SVG could not be rendered: %v\n%s", err, out.Data)
	}
	return img
}

func TestRotateSVG_RenderedPixelPlacement(t *testing.T) {
	tests := []struct {
		name   string
		angle  Angle
		size   Dimensions
		points map[image.Point]color.RGBA
	}{
		{"0 keeps left half", Angle0, Dimensions{20, 10}, map[image.Point]color.RGBA{{5, 5}: red, {15, 5}: white}},
		{"90 moves left half to top", Angle90, Dimensions{10, 20}, map[image.Point]color.RGBA{{5, 5}: red, {5, 15}: white}},
		{"180 moves left half to right", Angle180, Dimensions{20, 10}, map[image.Point]color.RGBA{{15, 5}: red, {5, 5}: white}},
		{"270 moves left half to bottom", Angle270, Dimensions{10, 20}, map[image.Point]color.RGBA{{5, 15}: red, {5, 5}: white}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := rotateAndRender(t, halfRedSVG, tt.angle)
			if got := (Dimensions{img.Bounds().Dx(), img.Bounds().Dy()}); got != tt.size {
				t.Fatalf("expected %s, got %s", tt.size, got)
			}
			for p, want := range tt.points {
				if got := rgbaAt(img, p.X, p.Y); got != want {
					t.Errorf("pixel %v: expected %v, got %v", p, want, got)
				}
			}
		})
	}
}

func TestRotateSVG_RootPresentationAttributes(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="10" fill="#ff0000"><rect width="10" height="10"/></svg>`

	for _, angle := range []Angle{Angle0, Angle90} {
		img := rotateAndRender(t, svg, angle)
		if got := rgbaAt(img, 5, 5); got != red {
			t.Errorf("angle %d: expected inherited red fill, got %v", angle, got)
		}
	}
}

func TestRotateSVG_PreserveAspectRatio(t *testing.T) {
	fullRect := `<rect width="10" height="10" fill="#ff0000"/>`
	tests := []struct {
		name   string
		aspect string
		angle  Angle
		points map[image.Point]color.RGBA
	}{
		{"meet centers the content", "", Angle0, map[image.Point]color.RGBA{{1, 5}: white, {10, 5}: red, {18, 5}: white}},
		{"xMinYMid aligns left", `preserveAspectRatio="xMinYMid meet"`, Angle0, map[image.Point]color.RGBA{{1, 5}: red, {18, 5}: white}},
		{"none stretches", `preserveAspectRatio="none"`, Angle0, map[image.Point]color.RGBA{{1, 5}: red, {18, 5}: red}},
		{"none stretches when turned", `preserveAspectRatio="none"`, Angle90, map[image.Point]color.RGBA{{5, 1}: red, {5, 18}: red}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svg := `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="10" viewBox="0 0 10 10" ` + tt.aspect + `>` + fullRect + `</svg>`
			img := rotateAndRender(t, svg, tt.angle)
			for p, want := range tt.points {
				if got := rgbaAt(img, p.X, p.Y); got != want {
					t.Errorf("pixel %v: expected %v, got %v", p, want, got)
				}
			}
		})
	}
}

func TestRotateSVG_KeepsRootAttributes(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:foo="urn:foo" width="20" height="10" ` +
		`foo:bar="1" xml:space="preserve" fill="#ff0000" style="stroke:none" font-family="serif &amp; sans">` +
		`<foo:meta/><rect width="10" height="10"/></svg>`

	out, err := NewTransform().Rotate(context.Background(), ImageBuffer{Data: []byte(svg), MediaType: MediaTypeSVG}, Angle90)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	doc := string(out.Data)
	for _, want := range []string{
		`xmlns:foo="urn:foo"`,
		`foo:bar="1"`,
		`xml:space="preserve"`,
		`fill="#ff0000"`,
		`style="stroke:none"`,
		`font-family="serif &amp; sans"`,
		`<foo:meta/>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("expected %s in output:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "scale(") {
		t.Errorf("expected a single matrix transform, got:\n%s", doc)
	}

	// the result must stay a well formed document that rotates again
	back, err := NewTransform().Rotate(context.Background(), out, Angle270)
	if err != nil {
		t.Fatalf("second Rotate failed: %v", err)
	}
	dims, err := NewTransform().Inspect(context.Background(), back)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if dims != (Dimensions{20, 10}) {
		t.Fatalf("expected 20x10, got %s", dims)
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		value string
		want  aspectRatio
	}{
		{"", defaultAspectRatio},
		{"xMidYMid", defaultAspectRatio},
		{"none", aspectRatio{none: true}},
		{"defer none slice", aspectRatio{none: true}},
		{"xMinYMax", aspectRatio{alignX: 0, alignY: 1}},
		{"xMaxYMin slice", aspectRatio{alignX: 1, alignY: 0, slice: true}},
		{"defer xMinYMin meet", aspectRatio{}},
		{"xMidYMid stretch", defaultAspectRatio},
		{"xLeftYTop", defaultAspectRatio},
		{"xMinYMin meet extra", defaultAspectRatio},
	}

	for _, tt := range tests {
		if got := parseAspectRatio(tt.value); got != tt.want {
			t.Errorf("parseAspectRatio(%q) = %+v, want %+v", tt.value, got, tt.want)
		}
	}
}

package rotation

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
)

const (
	svgNamespace = "http://www.w3.org/2000/svg"
	xmlNamespace = "http://www.w3.org/XML/1998/namespace"
)

type viewBox struct {
	X, Y, W, H float64
}

// svgBitmap keeps the document as markup and only renders it through oksvg
// when pixels are requested. Rotation wraps the original root
// content in transform groups so the output stays a vector image.
type svgBitmap struct {
	raw        []byte
	dims       Dimensions
	viewBox    viewBox
	aspect     aspectRatio
	namespaces []xml.Attr
	// presentation attributes of the root, inherited by its content
	inherited []xml.Attr
	inner     []byte
}

// aspectRatio is a parsed preserveAspectRatio attribute
type aspectRatio struct {
	none           bool
	alignX, alignY float64 // 0 for min, 0.5 for mid, 1 for max
	slice          bool
}

var defaultAspectRatio = aspectRatio{alignX: 0.5, alignY: 0.5}

// root attributes that describe the viewport rather than the content
var viewportAttributes = map[string]bool{
	"xmlns": true, "width": true, "height": true, "x": true, "y": true,
	"viewBox": true, "preserveAspectRatio": true, "transform": true,
	"version": true, "baseProfile": true, "zoomAndPan": true,
}

func decodeSVG(data []byte, fallback Dimensions) (*svgBitmap, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *xml.StartElement
	var innerStart, innerEnd int64
	depth := 0
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, decodeError(MediaTypeSVG, fmt.Errorf("invalid SVG markup: %w", err))
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if root != nil {
					return nil, decodeError(MediaTypeSVG, errors.New("SVG document has more than one root element"))
				}
				if t.Name.Local != "svg" {
					return nil, decodeError(MediaTypeSVG, fmt.Errorf("root element is <%s>, expected <svg>", t.Name.Local))
				}
				start := t.Copy()
				root = &start
				innerStart = dec.InputOffset()
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				innerEnd = offset
			}
		}
	}
	if root == nil {
		return nil, decodeError(MediaTypeSVG, errors.New("no <svg> root element"))
	}

	bitmap := &svgBitmap{raw: data, aspect: defaultAspectRatio}
	if innerEnd > innerStart {
		bitmap.inner = data[innerStart:innerEnd]
	}

	var width, height float64
	var hasWidth, hasHeight, hasViewBox bool
	for _, attr := range root.Attr {
		switch {
		case attr.Name.Space == "xmlns":
			bitmap.namespaces = append(bitmap.namespaces, attr)
		case attr.Name.Space != "":
			bitmap.inherited = append(bitmap.inherited, attr)
		case attr.Name.Local == "width":
			width, hasWidth = parseSVGLength(attr.Value)
		case attr.Name.Local == "height":
			height, hasHeight = parseSVGLength(attr.Value)
		case attr.Name.Local == "viewBox":
			bitmap.viewBox, hasViewBox = parseViewBox(attr.Value)
		case attr.Name.Local == "preserveAspectRatio":
			bitmap.aspect = parseAspectRatio(attr.Value)
		case !viewportAttributes[attr.Name.Local]:
			bitmap.inherited = append(bitmap.inherited, attr)
		}
	}

	switch {
	case hasWidth && hasHeight:
		bitmap.dims = Dimensions{Width: roundPixels(width), Height: roundPixels(height)}
	case hasViewBox:
		bitmap.dims = Dimensions{Width: roundPixels(bitmap.viewBox.W), Height: roundPixels(bitmap.viewBox.H)}
	case fallback.Width > 0 && fallback.Height > 0:
		bitmap.dims = fallback
	default:
		return nil, decodeError(MediaTypeSVG, errors.New("SVG has no explicit size and no fallback size is configured"))
	}
	if !hasViewBox {
		bitmap.viewBox = viewBox{W: float64(bitmap.dims.Width), H: float64(bitmap.dims.Height)}
	}

	return bitmap, nil
}

func (b *svgBitmap) Dimensions() Dimensions {
	return b.dims
}

// Image renders the original document at its intrinsic size on a white background
func (b *svgBitmap) Image() (image.Image, error) {
	return rasterizeSVG(b.raw, b.dims)
}

func (b *svgBitmap) DrawRotated(ctx context.Context, angle Angle, mediaType string) ([]byte, error) {
	if !angle.Valid() {
		return nil, &Error{Op: "draw", MediaType: mediaType, Kind: ErrUnsupportedAngle, Err: fmt.Errorf("%d degrees", int(angle))}
	}
	if NormalizeMediaType(mediaType) != MediaTypeSVG {
		return nil, encodeError(mediaType, fmt.Errorf("%w: SVG documents can only be written as %s", ErrUnsupportedMediaType, MediaTypeSVG))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := b.dims
	out := in.Rotated(angle)

	var buf bytes.Buffer
	buf.Grow(len(b.inner) + 512)
	fmt.Fprintf(&buf, `<svg xmlns="%s"`, svgNamespace)
	for _, ns := range b.namespaces {
		if err := writeAttr(&buf, "xmlns:"+ns.Name.Local, ns.Value); err != nil {
			return nil, encodeError(MediaTypeSVG, err)
		}
	}
	fmt.Fprintf(&buf, ` width="%d" height="%d" viewBox="0 0 %d %d">`, out.Width, out.Height, out.Width, out.Height)

	m := b.contentMatrix(out, angle)
	fmt.Fprintf(&buf, `<g transform="matrix(%s %s %s %s %s %s)"`,
		formatFloat(m[0]), formatFloat(m[1]), formatFloat(m[2]),
		formatFloat(m[3]), formatFloat(m[4]), formatFloat(m[5]))
	for _, attr := range b.inherited {
		name, ok := b.qualifiedName(attr.Name)
		if !ok {
			continue
		}
		if err := writeAttr(&buf, name, attr.Value); err != nil {
			return nil, encodeError(MediaTypeSVG, err)
		}
	}
	buf.WriteByte('>')
	buf.Write(b.inner)
	buf.WriteString(`</g></svg>`)

	return buf.Bytes(), nil
}

// contentMatrix maps the original user space onto the rotated viewport as an
// SVG matrix(a b c d e f): the viewBox is fitted into the intrinsic size, then
// the intrinsic rectangle is turned about its center and centered on out.
func (b *svgBitmap) contentMatrix(out Dimensions, angle Angle) [6]float64 {
	in := b.dims
	vb := b.viewBox

	sx := float64(in.Width) / vb.W
	sy := float64(in.Height) / vb.H
	if !b.aspect.none {
		s := math.Min(sx, sy)
		if b.aspect.slice {
			s = math.Max(sx, sy)
		}
		sx, sy = s, s
	}
	// user space origin after fitting, relative to the intrinsic center
	ux := (float64(in.Width)-vb.W*sx)*b.aspect.alignX - sx*vb.X - float64(in.Width)/2
	uy := (float64(in.Height)-vb.H*sy)*b.aspect.alignY - sy*vb.Y - float64(in.Height)/2

	sin, cos := angle.sincos()
	return [6]float64{
		cos * sx, sin * sx,
		-sin * sy, cos * sy,
		cos*ux - sin*uy + float64(out.Width)/2,
		sin*ux + cos*uy + float64(out.Height)/2,
	}
}

// qualifiedName restores the prefix of a namespaced root attribute
func (b *svgBitmap) qualifiedName(name xml.Name) (string, bool) {
	switch name.Space {
	case "":
		return name.Local, true
	case xmlNamespace:
		return "xml:" + name.Local, true
	}
	for _, ns := range b.namespaces {
		if ns.Value == name.Space {
			return ns.Name.Local + ":" + name.Local, true
		}
	}
	return "", false
}

func writeAttr(buf *bytes.Buffer, name, value string) error {
	fmt.Fprintf(buf, ` %s="`, name)
	if err := xml.EscapeText(buf, []byte(value)); err != nil {
		return err
	}
	buf.WriteByte('"')
	return nil
}

// rasterizeSVG renders an SVG document into an RGBA image of the given size
func rasterizeSVG(data []byte, size Dimensions) (*image.RGBA, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, decodeError(MediaTypeSVG, fmt.Errorf("invalid render size %s", size))
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(MediaTypeSVG, fmt.Errorf("failed to parse SVG: %w", err))
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.X, icon.ViewBox.Y = 0, 0
		icon.ViewBox.W, icon.ViewBox.H = float64(size.Width), float64(size.Height)
	}
	icon.SetTarget(0, 0, float64(size.Width), float64(size.Height))

	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size.Width, size.Height, dst, dst.Bounds())
	dasher := rasterx.NewDasher(size.Width, size.Height, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}

// parseSVGLength reads absolute lengths such as "120", "120px" or "96.5".
// Relative units are rejected.
func parseSVGLength(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, "px")
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseViewBox(value string) (viewBox, bool) {
	fields := strings.Fields(strings.ReplaceAll(value, ",", " "))
	if len(fields) != 4 {
		return viewBox{}, false
	}
	var nums [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return viewBox{}, false
		}
		nums[i] = v
	}
	if nums[2] <= 0 || nums[3] <= 0 {
		return viewBox{}, false
	}
	return viewBox{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}, true
}

// parseAspectRatio reads "[defer] <align> [meet|slice]". Unknown values
// fall back to xMidYMid meet.
func parseAspectRatio(value string) aspectRatio {
	fields := strings.Fields(value)
	if len(fields) > 0 && fields[0] == "defer" {
		fields = fields[1:]
	}
	if len(fields) == 0 || len(fields) > 2 {
		return defaultAspectRatio
	}

	ratio := defaultAspectRatio
	if len(fields) == 2 {
		switch fields[1] {
		case "meet":
		case "slice":
			ratio.slice = true
		default:
			return defaultAspectRatio
		}
	}

	align := fields[0]
	if align == "none" {
		return aspectRatio{none: true}
	}
	if len(align) != 8 || align[0] != 'x' || align[4] != 'Y' {
		return defaultAspectRatio
	}
	x, okX := alignments[align[1:4]]
	y, okY := alignments[align[5:8]]
	if !okX || !okY {
		return defaultAspectRatio
	}
	ratio.alignX, ratio.alignY = x, y
	return ratio
}

var alignments = map[string]float64{"Min": 0, "Mid": 0.5, "Max": 1}

func roundPixels(v float64) int {
	px := int(math.Round(v))
	if px < 1 {
		return 1
	}
	return px
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

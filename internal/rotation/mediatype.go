package rotation

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeGIF  = "image/gif"
	MediaTypeBMP  = "image/bmp"
	MediaTypeTIFF = "image/tiff"
	MediaTypeWebP = "image/webp"
	MediaTypeSVG  = "image/svg+xml"

	mediaTypeOctetStream = "application/octet-stream"
)

var mediaTypeAliases = map[string]string{
	"image/jpg":      MediaTypeJPEG,
	"image/pjpeg":    MediaTypeJPEG,
	"image/x-png":    MediaTypePNG,
	"image/x-bmp":    MediaTypeBMP,
	"image/x-ms-bmp": MediaTypeBMP,
	"image/tif":      MediaTypeTIFF,
	"image/svg":      MediaTypeSVG,
}

var extensions = map[string]string{
	MediaTypeJPEG: ".jpg",
	MediaTypePNG:  ".png",
	MediaTypeGIF:  ".gif",
	MediaTypeBMP:  ".bmp",
	MediaTypeTIFF: ".tiff",
	MediaTypeWebP: ".webp",
	MediaTypeSVG:  ".svg",
}

// formatMediaTypes maps the format names registered with image.RegisterFormat
var formatMediaTypes = map[string]string{
	"jpeg": MediaTypeJPEG,
	"png":  MediaTypePNG,
	"gif":  MediaTypeGIF,
	"bmp":  MediaTypeBMP,
	"tiff": MediaTypeTIFF,
	"webp": MediaTypeWebP,
}

// NormalizeMediaType lower-cases a media type, strips parameters and resolves common aliases
func NormalizeMediaType(mediaType string) string {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if canonical, ok := mediaTypeAliases[mediaType]; ok {
		return canonical
	}
	return mediaType
}

// DetectMediaType infers the media type from the leading bytes of an encoded image
func DetectMediaType(data []byte) string {
	return NormalizeMediaType(mimetype.Detect(data).String())
}

// IsSupported reports whether images of the media type can be decoded
func IsSupported(mediaType string) bool {
	_, ok := extensions[NormalizeMediaType(mediaType)]
	return ok
}

// Extension returns the file extension conventionally used for the media type,
// including the leading dot. Unknown media types yield ".bin".
func Extension(mediaType string) string {
	if ext, ok := extensions[NormalizeMediaType(mediaType)]; ok {
		return ext
	}
	return ".bin"
}

func mediaTypeForFormat(format string) string {
	return formatMediaTypes[strings.ToLower(format)]
}

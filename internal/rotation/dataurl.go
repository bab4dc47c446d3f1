package rotation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const dataURLPrefix = "data:"

// EncodeDataURL renders the buffer as a base64 data URL
func EncodeDataURL(buf ImageBuffer) string {
	var b strings.Builder
	b.Grow(len(dataURLPrefix) + len(buf.MediaType) + len(";base64,") + base64.StdEncoding.EncodedLen(len(buf.Data)))
	b.WriteString(dataURLPrefix)
	b.WriteString(buf.MediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(buf.Data))
	return b.String()
}

// DecodeDataURL parses a data URL into an ImageBuffer. Both base64 and
// percent-encoded payloads are accepted. A missing media type is inferred from the payload.
func DecodeDataURL(dataURL string) (ImageBuffer, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(dataURL), dataURLPrefix)
	if !ok {
		return ImageBuffer{}, readError("", errors.New("not a data URL"))
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return ImageBuffer{}, readError("", errors.New("data URL has no payload separator"))
	}

	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	mediaType = NormalizeMediaType(mediaType)

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return ImageBuffer{}, readError(mediaType, fmt.Errorf("invalid base64 payload: %w", err))
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return ImageBuffer{}, readError(mediaType, fmt.Errorf("invalid percent-encoded payload: %w", err))
		}
		data = []byte(unescaped)
	}

	if mediaType == "" || mediaType == mediaTypeOctetStream {
		mediaType = DetectMediaType(data)
	}
	return ImageBuffer{Data: data, MediaType: mediaType}, nil
}

package rotation

import (
	"context"
	"fmt"
	"io"
)

// DefaultReadLimit caps how many bytes ReadImage accepts when no limit is given
const DefaultReadLimit int64 = 32 << 20

// ReadImage loads raw image bytes from r. The declared media type is normalized;
// when it is empty or generic, the media type is inferred from the bytes.
// Reading stops with a read failure once limit bytes are exceeded or ctx is done.
func ReadImage(ctx context.Context, r io.Reader, declaredType string, limit int64) (ImageBuffer, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	mediaType := NormalizeMediaType(declaredType)

	data, err := io.ReadAll(io.LimitReader(&contextReader{ctx: ctx, r: r}, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return ImageBuffer{}, ctx.Err()
		}
		return ImageBuffer{}, readError(mediaType, err)
	}
	if int64(len(data)) > limit {
		return ImageBuffer{}, readError(mediaType, fmt.Errorf("image exceeds %d bytes", limit))
	}

	if mediaType == "" || mediaType == mediaTypeOctetStream {
		mediaType = DetectMediaType(data)
	}
	return ImageBuffer{Data: data, MediaType: mediaType}, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

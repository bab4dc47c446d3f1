package rotation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrReadFailure means the raw image bytes could not be loaded
	ErrReadFailure = errors.New("read failure")
	// ErrDecodeFailure means the bytes are not a valid or supported image encoding
	ErrDecodeFailure = errors.New("decode failure")
	// ErrEncodeFailure means the drawing surface could not be serialized to the target media type
	ErrEncodeFailure = errors.New("encode failure")

	ErrUnsupportedAngle     = errors.New("unsupported rotation angle")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrImageTooLarge is wrapped by decode failures of images above the pixel limit
	ErrImageTooLarge = errors.New("image has too many pixels")
)

// Error describes a failed step of a rotation. It matches both its Kind
// (one of the failure sentinels) and the underlying cause with errors.Is.
type Error struct {
	Op        string
	MediaType string
	Kind      error
	Err       error
}

func (e *Error) Error() string {
	mediaType := e.MediaType
	if mediaType == "" {
		mediaType = "unknown media type"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s): %v", e.Op, mediaType, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v: %v", e.Op, mediaType, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func readError(mediaType string, err error) error {
	return &Error{Op: "read", MediaType: mediaType, Kind: ErrReadFailure, Err: err}
}

func decodeError(mediaType string, err error) error {
	return &Error{Op: "decode", MediaType: mediaType, Kind: ErrDecodeFailure, Err: err}
}

func encodeError(mediaType string, err error) error {
	return &Error{Op: "encode", MediaType: mediaType, Kind: ErrEncodeFailure, Err: err}
}

// classify wraps errors returned by injected capabilities that do not carry a
// failure kind yet. Context errors are passed through untouched.
func classify(err error, kind error, mediaType string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrReadFailure) || errors.Is(err, ErrDecodeFailure) ||
		errors.Is(err, ErrEncodeFailure) || errors.Is(err, ErrUnsupportedAngle) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Op: opForKind(kind), MediaType: mediaType, Kind: kind, Err: err}
}

func opForKind(kind error) string {
	switch kind {
	case ErrReadFailure:
		return "read"
	case ErrDecodeFailure:
		return "decode"
	default:
		return "encode"
	}
}

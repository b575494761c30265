package colorize

import (
	"context"
	"errors"
)

// Kind classifies a colorization failure.
type Kind int

const (
	KindColorizationFailed Kind = iota
	KindInvalidImageFormat
	KindCorruptImage
	KindNoImageReturned
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidImageFormat:
		return "invalid_image_format"
	case KindCorruptImage:
		return "corrupt_image"
	case KindNoImageReturned:
		return "no_image_returned"
	case KindTimeout:
		return "timeout"
	default:
		return "colorization_failed"
	}
}

// userMessages are shown to clients and stored in error_message.
var userMessages = map[Kind]string{
	KindColorizationFailed: "Failed to process the image. Please try again with a black and white photo.",
	KindInvalidImageFormat: "Invalid image format. Please upload a valid image file (JPEG, PNG, etc.)",
	KindCorruptImage:       "The image file appears to be corrupted. Please try uploading a different image.",
	KindNoImageReturned:    "The AI model couldn't process this image. Please try with a different black and white photo.",
	KindTimeout:            "The colorization service took too long to respond. Please try again later.",
}

// Error is a typed colorization failure. Error() is the user-facing text;
// the underlying cause stays reachable through Unwrap for logs.
type Error struct {
	Kind Kind
	Err  error
}

var (
	ErrColorizationFailed = &Error{Kind: KindColorizationFailed}
	ErrInvalidImageFormat = &Error{Kind: KindInvalidImageFormat}
	ErrCorruptImage       = &Error{Kind: KindCorruptImage}
	ErrNoImageReturned    = &Error{Kind: KindNoImageReturned}
	ErrTimeout            = &Error{Kind: KindTimeout}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return userMessages[e.Kind]
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package-level sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Detail returns the underlying cause text for server-side logging.
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	return e.Err.Error()
}

// KindOf returns the failure kind of err, defaulting to KindColorizationFailed.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindColorizationFailed
}

// UserMessage returns the client-facing text for any colorization error.
func UserMessage(err error) string {
	return userMessages[KindOf(err)]
}

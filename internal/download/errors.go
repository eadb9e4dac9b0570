package download

import (
	"context"
	"errors"
)

// Kind classifies a download failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalid is a malformed request (missing identifier, unusable custom filename).
	KindInvalid
	// KindTransport is a failure talking to the mail service.
	KindTransport
	// KindData is a missing or undecodable payload.
	KindData
	// KindFilesystem is a directory creation, name resolution or write failure.
	KindFilesystem
	// KindCanceled means the context ended before the item completed.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindTransport:
		return "transport"
	case KindData:
		return "data"
	case KindFilesystem:
		return "filesystem"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var (
	// ErrNoAttachmentData is returned when the service answers without a payload.
	ErrNoAttachmentData = errors.New("no attachment data received")

	// ErrInvalidFilename is returned for custom filenames that are not a
	// single path element.
	ErrInvalidFilename = errors.New("invalid custom filename")
)

// Error is a classified download failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown if it is not a download error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

package arkerrs

import stderrors "errors"

// AsIndexError extracts an *IndexError from err's chain, if any.
func AsIndexError(err error) (*IndexError, bool) {
	var e *IndexError
	return e, stderrors.As(err, &e)
}

// AsSegmentError extracts a *SegmentError from err's chain, if any.
func AsSegmentError(err error) (*SegmentError, bool) {
	var e *SegmentError
	return e, stderrors.As(err, &e)
}

// AsDuplicateError extracts a *DuplicateError from err's chain, if any.
func AsDuplicateError(err error) (*DuplicateError, bool) {
	var e *DuplicateError
	return e, stderrors.As(err, &e)
}

// IsCancelled reports whether err (or something it wraps) is a CancelledError.
func IsCancelled(err error) bool {
	var e *CancelledError
	return stderrors.As(err, &e)
}

// IsFatal reports whether err should abort an entire dispatch batch
// rather than just the one record that triggered it (spec.md §4.9: "per-
// record errors during ingest surface as dispatcher outcomes; they do
// not abort the batch unless Io or IndexCorrupt").
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeIO, CodeIndexCorrupt:
		return true
	default:
		return false
	}
}

// Coder is implemented by every error kind in this package.
type Coder interface {
	Code() Code
}

// CodeOf returns the Code carried by err, or an empty Code if err does not
// implement Coder.
func CodeOf(err error) Code {
	var c Coder
	if stderrors.As(err, &c) {
		return c.Code()
	}
	return ""
}

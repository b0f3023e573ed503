// Package arkerrs provides the domain error kinds used across the dataset
// storage engine (spec.md §7). Each kind carries the context a caller needs
// to decide how to react without parsing message text.
package arkerrs

// Code categorizes an error for programmatic handling and logging.
type Code string

const (
	CodeConfig      Code = "CONFIG"
	CodeIO          Code = "IO"
	CodeCodec       Code = "CODEC"
	CodeValidator   Code = "VALIDATOR"
	CodeIndexBusy   Code = "INDEX_BUSY"
	CodeIndexCorrupt    Code = "INDEX_CORRUPT"
	CodeIndexConstraint Code = "INDEX_CONSTRAINT"
	CodeSegmentCorrupt  Code = "SEGMENT_CORRUPT"
	CodeMatcher     Code = "MATCHER"
	CodeDuplicate   Code = "DUPLICATE"
	CodeCancelled   Code = "CANCELLED"
	CodeUnsupported Code = "UNSUPPORTED"
)

// baseError is embedded by every specialized error type below. It follows
// the fluent With* builder pattern so call sites can attach context at the
// point of failure without allocating a details map unless needed.
type baseError struct {
	cause   error
	message string
	code    Code
	details map[string]any
}

func newBase(cause error, code Code, msg string) *baseError {
	return &baseError{cause: cause, code: code, message: msg}
}

func (b *baseError) Error() string {
	if b.cause != nil {
		return b.message + ": " + b.cause.Error()
	}
	return b.message
}

func (b *baseError) Unwrap() error { return b.cause }

func (b *baseError) Code() Code { return b.code }

func (b *baseError) Details() map[string]any { return b.details }

func (b *baseError) withDetail(key string, value any) {
	if b.details == nil {
		b.details = make(map[string]any)
	}
	b.details[key] = value
}

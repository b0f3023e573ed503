package arkerrs

// ConfigError reports missing or invalid dataset/global configuration.
type ConfigError struct {
	*baseError
	key string
}

func NewConfigError(cause error, msg string) *ConfigError {
	return &ConfigError{baseError: newBase(cause, CodeConfig, msg)}
}

func (e *ConfigError) WithKey(key string) *ConfigError { e.key = key; return e }
func (e *ConfigError) Key() string                     { return e.key }

// IoError reports a filesystem failure against a specific path.
type IoError struct {
	*baseError
	path string
}

func NewIoError(cause error, msg string) *IoError {
	return &IoError{baseError: newBase(cause, CodeIO, msg)}
}

func (e *IoError) WithPath(path string) *IoError { e.path = path; return e }
func (e *IoError) Path() string                  { return e.path }

// CodecError reports a binary bundle/element decode failure.
type CodecError struct {
	*baseError
	stage  string
	offset int64
}

func NewCodecError(cause error, msg string) *CodecError {
	return &CodecError{baseError: newBase(cause, CodeCodec, msg)}
}

func (e *CodecError) WithStage(stage string) *CodecError { e.stage = stage; return e }
func (e *CodecError) WithOffset(off int64) *CodecError   { e.offset = off; return e }
func (e *CodecError) Stage() string                      { return e.stage }
func (e *CodecError) Offset() int64                      { return e.offset }

// ValidatorError reports that message bytes failed format validation.
type ValidatorError struct {
	*baseError
	format string
	offset int64
}

func NewValidatorError(cause error, msg string) *ValidatorError {
	return &ValidatorError{baseError: newBase(cause, CodeValidator, msg)}
}

func (e *ValidatorError) WithFormat(f string) *ValidatorError { e.format = f; return e }
func (e *ValidatorError) WithOffset(off int64) *ValidatorError {
	e.offset = off
	return e
}
func (e *ValidatorError) Format() string { return e.format }
func (e *ValidatorError) Offset() int64  { return e.offset }

// IndexError covers the three index failure modes from spec.md §7:
// busy (lock contention), corrupt (on-disk structure violated), and
// constraint (uniqueness tuple collision outside of the replace policy).
type IndexError struct {
	*baseError
	fingerprint string
}

func NewIndexBusyError(cause error, msg string) *IndexError {
	return &IndexError{baseError: newBase(cause, CodeIndexBusy, msg)}
}

func NewIndexCorruptError(cause error, msg string) *IndexError {
	return &IndexError{baseError: newBase(cause, CodeIndexCorrupt, msg)}
}

func NewIndexConstraintError(fingerprint string) *IndexError {
	e := &IndexError{baseError: newBase(nil, CodeIndexConstraint, "fingerprint already indexed")}
	e.fingerprint = fingerprint
	return e
}

func (e *IndexError) WithFingerprint(fp string) *IndexError { e.fingerprint = fp; return e }
func (e *IndexError) Fingerprint() string                   { return e.fingerprint }

// SegmentError reports segment-level corruption detected by a Checker.
type SegmentError struct {
	*baseError
	relpath string
	detail  string
}

func NewSegmentError(cause error, msg string) *SegmentError {
	return &SegmentError{baseError: newBase(cause, CodeSegmentCorrupt, msg)}
}

func (e *SegmentError) WithRelpath(p string) *SegmentError { e.relpath = p; return e }
func (e *SegmentError) WithDetail(d string) *SegmentError  { e.detail = d; return e }
func (e *SegmentError) Relpath() string                    { return e.relpath }
func (e *SegmentError) Detail() string                     { return e.detail }

// MatcherError reports a matcher expression parse/evaluation failure.
type MatcherError struct {
	*baseError
	text     string
	position int
}

func NewMatcherError(cause error, msg string) *MatcherError {
	return &MatcherError{baseError: newBase(cause, CodeMatcher, msg)}
}

func (e *MatcherError) WithText(t string) *MatcherError  { e.text = t; return e }
func (e *MatcherError) WithPosition(p int) *MatcherError { e.position = p; return e }
func (e *MatcherError) Text() string                     { return e.text }
func (e *MatcherError) Position() int                     { return e.position }

// DuplicateError reports that a fingerprint already has a live index entry.
type DuplicateError struct {
	*baseError
	fingerprint string
}

func NewDuplicateError(fingerprint string) *DuplicateError {
	e := &DuplicateError{baseError: newBase(nil, CodeDuplicate, "duplicate record")}
	e.fingerprint = fingerprint
	return e
}

func (e *DuplicateError) Fingerprint() string { return e.fingerprint }

// CancelledError reports that a query's dest callback returned false, or
// that the output stream was closed by the caller.
type CancelledError struct {
	*baseError
}

func NewCancelledError() *CancelledError {
	return &CancelledError{baseError: newBase(nil, CodeCancelled, "operation cancelled")}
}

// UnsupportedError reports an operation that a format/container kind does
// not support, e.g. appending to a compressed segment.
type UnsupportedError struct {
	*baseError
	operation string
	format    string
}

func NewUnsupportedError(operation, format string) *UnsupportedError {
	e := &UnsupportedError{baseError: newBase(nil, CodeUnsupported, "unsupported operation")}
	e.operation = operation
	e.format = format
	return e
}

func (e *UnsupportedError) Operation() string { return e.operation }
func (e *UnsupportedError) Format() string    { return e.format }

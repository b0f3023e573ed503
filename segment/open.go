package segment

import "github.com/arkimet/dsengine/arkerrs"

// OpenWriter opens (creating if needed) the writer for a segment of the
// given kind, dispatching to the kind-specific constructor (spec.md §4.4).
// Sealed (tar/zip) and compressed (gz) segments never support direct
// append and have no Writer; they are produced whole by a Checker's
// Tar/Zip/Compress (sealToTar/sealToZip/compressConcat).
func OpenWriter(kind Kind, relpath, abspath, format string, fsync bool) (Writer, error) {
	switch kind {
	case KindConcat:
		return OpenConcatWriter(relpath, abspath, fsync)
	case KindLines:
		return OpenLinesWriter(relpath, abspath, fsync)
	case KindDir:
		return OpenDirWriter(relpath, abspath, format, fsync)
	case KindGzConcat, KindGzLines:
		return OpenGzWriter(format)
	default:
		return nil, arkerrs.NewUnsupportedError("append", kind.String())
	}
}

// OpenReader opens the reader for a segment of the given kind. known is
// only consulted by concat segments, which are not self-describing.
func OpenReader(kind Kind, relpath, abspath, format string, known []ExpectedRecord) (Reader, error) {
	switch kind {
	case KindConcat:
		return OpenConcatReader(relpath, abspath, known)
	case KindLines:
		return OpenLinesReader(relpath, abspath)
	case KindDir:
		return OpenDirReader(relpath, abspath, format)
	case KindTar:
		return OpenTarReader(relpath, abspath)
	case KindZip:
		return OpenZipReader(relpath, abspath)
	case KindGzConcat, KindGzLines:
		return nil, arkerrs.NewUnsupportedError("scan-data", kind.String())
	default:
		return nil, arkerrs.NewUnsupportedError("read", kind.String())
	}
}

// OpenChecker opens the checker for a segment of the given kind.
func OpenChecker(kind Kind, relpath, abspath, format string, v Validator) (Checker, error) {
	switch kind {
	case KindConcat:
		return NewConcatChecker(relpath, abspath, v), nil
	case KindLines:
		return NewLinesChecker(relpath, abspath, v), nil
	case KindDir:
		return NewDirChecker(relpath, abspath, format, v), nil
	default:
		return nil, arkerrs.NewUnsupportedError("check", kind.String())
	}
}

package segment

import (
	"os"
	"strings"
)

// Kind identifies a segment's physical container, detected at open time
// by stat'ing the abspath and looking at its extension (spec.md §4.4).
type Kind int

const (
	KindConcat Kind = iota
	KindDir
	KindLines
	KindTar
	KindZip
	KindGzConcat
	KindGzLines
)

func (k Kind) String() string {
	switch k {
	case KindConcat:
		return "concat"
	case KindDir:
		return "dir"
	case KindLines:
		return "lines"
	case KindTar:
		return "tar"
	case KindZip:
		return "zip"
	case KindGzConcat:
		return "gzconcat"
	case KindGzLines:
		return "gzlines"
	}
	return "unknown"
}

// Detect inspects abspath (which may not exist yet, for a segment about
// to be created) and picks the segment kind: `.tar`/`.zip` extensions
// win outright; a directory is `dir`; `.gz` dispatches to the gz variant
// of the base format; otherwise VM2 uses `lines`, everything else
// `concat` (spec.md §4.4's "Format dispatch").
func Detect(abspath, format string) Kind {
	switch {
	case strings.HasSuffix(abspath, ".tar"):
		return KindTar
	case strings.HasSuffix(abspath, ".zip"):
		return KindZip
	case strings.HasSuffix(abspath, ".gz"):
		if format == "vm2" {
			return KindGzLines
		}
		return KindGzConcat
	}

	if info, err := os.Stat(abspath); err == nil && info.IsDir() {
		return KindDir
	}

	if format == "vm2" {
		return KindLines
	}
	return KindConcat
}

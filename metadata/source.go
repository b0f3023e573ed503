package metadata

import "fmt"

// SourceKind discriminates the three Source variants of spec.md §3.
type SourceKind uint8

const (
	SourceBlob SourceKind = iota
	SourceInline
	SourceURL
)

// Source describes where a record's bytes live. Exactly one Source is
// carried per record.
type Source struct {
	Kind   SourceKind
	Format DataFormat

	// Blob fields: bytes live at Root/Relpath[Offset..Offset+Size).
	Root    string
	Relpath string
	Offset  int64
	Size    int64

	// Checksum is the xxh3 hash of the blob's raw bytes as appended,
	// carried alongside offset/size so a later Checker.Check can detect a
	// segment that still has the right size and shape but wrong content
	// (bit rot, a bad restore) without needing a format-specific
	// validator. Zero for Inline/URL sources.
	Checksum uint64

	// URL field.
	URL string
}

// NewBlobSource builds a Blob source.
func NewBlobSource(format DataFormat, root, relpath string, offset, size int64) Source {
	return Source{Kind: SourceBlob, Format: format, Root: root, Relpath: relpath, Offset: offset, Size: size}
}

// NewInlineSource builds an Inline source; the bytes themselves are
// expected to immediately follow the record in its carrier stream.
func NewInlineSource(format DataFormat, size int64) Source {
	return Source{Kind: SourceInline, Format: format, Size: size}
}

// NewURLSource builds a URL source.
func NewURLSource(format DataFormat, url string) Source {
	return Source{Kind: SourceURL, Format: format, URL: url}
}

// WithOffsetSize returns a copy of a Blob source relocated to a new
// (offset, size), used by the dataset writer to fix up a record's
// provisional offset as soon as the segment append has written its bytes,
// before the segment commits.
func (s Source) WithOffsetSize(offset, size int64) Source {
	s.Offset = offset
	s.Size = size
	return s
}

func (s Source) String() string {
	switch s.Kind {
	case SourceBlob:
		return fmt.Sprintf("BLOB(%s,%s,%s,%d,%d)", s.Format, s.Root, s.Relpath, s.Offset, s.Size)
	case SourceInline:
		return fmt.Sprintf("INLINE(%s,%d)", s.Format, s.Size)
	case SourceURL:
		return fmt.Sprintf("URL(%s,%s)", s.Format, s.URL)
	default:
		return "SOURCE(?)"
	}
}

// Note is a provenance string with a timestamp (spec.md §3).
type Note struct {
	Time string // RFC3339; kept as a string to round-trip exactly through the codec
	Text string
}

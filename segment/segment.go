// Package segment implements the pluggable on-disk message containers of
// spec.md §4.4: concat, dir, lines, tar, zip, gzconcat and gzlines, each
// exposing the same Reader/Writer/Checker roles. Framing and checksum
// conventions are grounded on the teacher's segment record format
// (Epokhe-bitdb/core/segment.go): a synchronous, offset-tracking append
// path and an xxh3 checksum of everything the writer controls.
package segment

// Blob locates one message's bytes within a segment, relative to the
// segment's root (spec.md §3).
type Blob struct {
	Relpath string
	Offset  int64
	Size    int64
}

// State is the bitfield a Checker.Check returns (spec.md §4.4).
type State uint16

const (
	StateOK State = 1 << iota
	StateDirty
	StateUnaligned
	StateMissing
	StateDeleted
	StateCorrupted
	StateArchiveAge
	StateDeleteAge
	StatePack
)

func (s State) Has(flag State) bool { return s&flag != 0 }

func (s State) String() string {
	names := []struct {
		flag State
		name string
	}{
		{StateOK, "OK"}, {StateDirty, "DIRTY"}, {StateUnaligned, "UNALIGNED"},
		{StateMissing, "MISSING"}, {StateDeleted, "DELETED"}, {StateCorrupted, "CORRUPTED"},
		{StateArchiveAge, "ARCHIVE_AGE"}, {StateDeleteAge, "DELETE_AGE"}, {StatePack, "TO_PACK"},
	}
	out := ""
	for _, n := range names {
		if s.Has(n.flag) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "NONE"
	}
	return out
}

// Validator is the external, format-specific collaborator that checks
// whether bytes at a Blob are well-formed (spec.md §1: scanning/validation
// is out of scope; the engine only calls through this interface).
type Validator interface {
	Validate(data []byte) error
}

// Reader reads messages and bytes out of one segment. Reconstructing a
// full metadata.Record from a segment's own bytes is the scanner's job
// (out of scope, spec.md §1); ScanData here replays the message
// boundaries the segment kind can determine on its own (self-describing
// kinds like dir and lines) or that the caller already knows (concat,
// which needs the `.metadata` cache for boundaries).
type Reader interface {
	ScanData(dest func(blob Blob) bool) error
	// Read returns the raw bytes at blob.
	Read(blob Blob) ([]byte, error)
	Close() error
}

// Writer appends new messages to one segment under the two-phase append
// protocol of spec.md §4.4: data is written first, then the caller updates
// its own index/pending-metadata structures, then Commit is called once
// every touched writer has fsynced.
type Writer interface {
	NextOffset() int64
	// Append writes the message bytes synchronously and returns the Blob
	// locating them; callers are expected to copy the Blob into the
	// record's Source.
	Append(data []byte) (Blob, error)
	Commit() error
	Rollback() error
	// RollbackNothrow is used from defer/finalizer paths: it never
	// returns an error, logging failures instead (spec.md §4.4).
	RollbackNothrow()
}

// Checker performs maintenance operations against one segment.
type Checker interface {
	Check(reporter Reporter, expected []ExpectedRecord, quick bool) (State, error)
	Remove() error
	Tar() error
	Zip() error
	Compress(groupSize int) error
	// Test-seeding hooks (spec.md §4.4), used by the test suite to
	// reproduce corruption scenarios deterministically.
	TestTruncate(size int64) error
	MakeHole(offset, size int64) error
	MakeOverlap(offset, size int64) error
	Corrupt(offset int64) error
}

// ExpectedRecord is what a Checker compares on-disk reality against: an
// index/manifest row's view of one message's placement. Checksum is the
// xxh3 hash recorded at append time (metadata.Source.Checksum); zero means
// no checksum is on file for this record (e.g. segment kinds that never
// carried one), so a Checker skips that part of the comparison.
type ExpectedRecord struct {
	Offset   int64
	Size     int64
	Checksum uint64
}

// Reporter receives one human-readable line per maintenance action
// (spec.md §4.10).
type Reporter interface {
	Report(relpath, action string)
}

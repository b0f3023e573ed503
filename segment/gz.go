package segment

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"

	"github.com/arkimet/dsengine/arkerrs"
)

// GzReader reads a gzconcat/gzlines segment produced by compressConcat.
// Writers for this kind don't exist: appending to an already-compressed
// segment fails fast with CannotAppendCompressed (spec.md §4.4), surfaced
// by OpenGzWriter below rather than a GzWriter type.
type GzReader struct {
	relpath string
	groups  []gzGroup
}

type gzGroup struct {
	compressedOffset, uncompressedOffset int64
}

func OpenGzReader(relpath, abspath string) (*GzReader, error) {
	idx, err := os.ReadFile(abspath + ".idx")
	if err != nil {
		return nil, arkerrs.NewIoError(err, "read gz index").WithPath(abspath + ".idx")
	}
	if len(idx)%16 != 0 {
		return nil, arkerrs.NewSegmentError(nil, "malformed gz index length").WithRelpath(relpath)
	}
	var groups []gzGroup
	for i := 0; i+16 <= len(idx); i += 16 {
		groups = append(groups, gzGroup{
			compressedOffset:   int64(binary.BigEndian.Uint64(idx[i : i+8])),
			uncompressedOffset: int64(binary.BigEndian.Uint64(idx[i+8 : i+16])),
		})
	}
	return &GzReader{relpath: relpath, groups: groups}, nil
}

// ScanData is unsupported directly: gz wraps an underlying concat/lines
// layout whose message boundaries are tracked by the `.metadata` cache,
// same as plain concat. Callers decompress via Read using known blobs.
func (r *GzReader) ScanData(dest func(blob Blob) bool) error { return nil }

func (r *GzReader) Read(gzPath string, blob Blob) ([]byte, error) {
	group := r.groupFor(blob.Offset)
	if group == nil {
		return nil, arkerrs.NewSegmentError(nil, "offset not covered by any gz group").WithRelpath(r.relpath)
	}

	f, err := os.Open(gzPath)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open gz segment").WithPath(gzPath)
	}
	defer f.Close()

	if _, err := f.Seek(group.compressedOffset, io.SeekStart); err != nil {
		return nil, arkerrs.NewIoError(err, "seek gz segment").WithPath(gzPath)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, arkerrs.NewSegmentError(err, "open gz group reader").WithRelpath(r.relpath)
	}
	defer zr.Close()

	uncompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, arkerrs.NewSegmentError(err, "decompress gz group").WithRelpath(r.relpath)
	}

	localOff := blob.Offset - group.uncompressedOffset
	if localOff < 0 || localOff+blob.Size > int64(len(uncompressed)) {
		return nil, arkerrs.NewSegmentError(nil, "blob crosses gz group boundary").WithRelpath(r.relpath)
	}
	return uncompressed[localOff : localOff+blob.Size], nil
}

func (r *GzReader) groupFor(offset int64) *gzGroup {
	var best *gzGroup
	for i := range r.groups {
		g := &r.groups[i]
		if g.uncompressedOffset <= offset {
			best = g
		}
	}
	return best
}

func (r *GzReader) Close() error { return nil }

// OpenGzWriter always fails: gz segments cannot be appended to, per
// spec.md §4.4's "Gz writer does not support append: attempts fail fast
// at detect_writer time with CannotAppendCompressed".
func OpenGzWriter(format string) (Writer, error) {
	return nil, arkerrs.NewUnsupportedError("append", format+"+gz")
}

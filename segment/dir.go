package segment

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
)

// DirWriter appends each message as its own `NNNNNN.format` file inside a
// directory, allocating the next sequence number from a `.sequence` file
// (spec.md §4.4). Each append writes to a temp path first and renames to
// the final name only on Commit, so a crash mid-append leaves an orphaned
// temp file instead of a half-written component.
type DirWriter struct {
	relpath string // directory relpath
	absdir  string
	format  string
	fsync   bool

	nextSeq      int
	initialSeq   int
	pendingTemps []string // temp paths written this transaction, renamed on Commit
	pendingFinal []string // their corresponding final paths
}

func OpenDirWriter(relpath, absdir, format string, fsync bool) (*DirWriter, error) {
	if err := os.MkdirAll(absdir, 0o755); err != nil {
		return nil, arkerrs.NewIoError(err, "create dir segment directory").WithPath(absdir)
	}
	seq, err := readSequence(absdir)
	if err != nil {
		return nil, err
	}
	return &DirWriter{relpath: relpath, absdir: absdir, format: format, fsync: fsync, nextSeq: seq, initialSeq: seq}, nil
}

func readSequence(absdir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(absdir, ".sequence"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, arkerrs.NewIoError(err, "read .sequence").WithPath(absdir)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, arkerrs.NewSegmentError(err, "malformed .sequence").WithRelpath(absdir)
	}
	return n, nil
}

func writeSequence(absdir string, n int) error {
	path := filepath.Join(absdir, ".sequence")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(n)), 0o644); err != nil {
		return arkerrs.NewIoError(err, "write .sequence tmp").WithPath(tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return arkerrs.NewIoError(err, "rename .sequence").WithPath(path)
	}
	return nil
}

func (w *DirWriter) NextOffset() int64 { return int64(w.nextSeq) }

// Append writes data to a NNNNNN.format.tmp temp file; the rename to the
// final NNNNNN.format happens at Commit, so partial writes never appear as
// a final component name.
func (w *DirWriter) Append(data []byte) (Blob, error) {
	seq := w.nextSeq
	name := fmt.Sprintf("%06d.%s", seq, w.format)
	finalPath := filepath.Join(w.absdir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return Blob{}, arkerrs.NewIoError(err, "write dir component temp file").WithPath(tmpPath)
	}

	w.pendingTemps = append(w.pendingTemps, tmpPath)
	w.pendingFinal = append(w.pendingFinal, finalPath)
	w.nextSeq++

	return Blob{Relpath: filepath.Join(w.relpath, name), Offset: int64(seq), Size: int64(len(data))}, nil
}

func (w *DirWriter) Commit() error {
	for i, tmp := range w.pendingTemps {
		if w.fsync {
			if f, err := os.Open(tmp); err == nil {
				_ = f.Sync()
				_ = f.Close()
			}
		}
		if err := os.Rename(tmp, w.pendingFinal[i]); err != nil {
			return arkerrs.NewIoError(err, "rename dir component into place").WithPath(w.pendingFinal[i])
		}
	}
	if err := writeSequence(w.absdir, w.nextSeq); err != nil {
		return err
	}
	w.pendingTemps = nil
	w.pendingFinal = nil
	return nil
}

// Rollback unlinks every temp file written this transaction and restores
// the sequence counter, per spec.md §4.4's "newly created component files
// are unlinked for dir segments".
func (w *DirWriter) Rollback() error {
	var firstErr error
	for _, tmp := range w.pendingTemps {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = arkerrs.NewIoError(err, "remove dir component temp file").WithPath(tmp)
		}
	}
	w.pendingTemps = nil
	w.pendingFinal = nil
	w.nextSeq = w.initialSeq
	return firstErr
}

func (w *DirWriter) RollbackNothrow() {
	if err := w.Rollback(); err != nil {
		log.Printf("dir segment %s: rollback failed: %v", w.relpath, err)
	}
}

// DirReader reads back messages from a dir segment: directory listing
// sorted by sequence number is itself the self-description.
type DirReader struct {
	relpath, absdir, format string
}

func OpenDirReader(relpath, absdir, format string) (*DirReader, error) {
	return &DirReader{relpath: relpath, absdir: absdir, format: format}, nil
}

func (r *DirReader) ScanData(dest func(blob Blob) bool) error {
	entries, err := os.ReadDir(r.absdir)
	if err != nil {
		return arkerrs.NewIoError(err, "read dir segment directory").WithPath(r.absdir)
	}
	suffix := "." + r.format
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, suffix) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		seqStr := strings.TrimSuffix(name, suffix)
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		blob := Blob{Relpath: filepath.Join(r.relpath, name), Offset: int64(seq), Size: info.Size()}
		if !dest(blob) {
			return nil
		}
	}
	return nil
}

func (r *DirReader) Read(blob Blob) ([]byte, error) {
	path := filepath.Join(filepath.Dir(r.absdir), blob.Relpath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, arkerrs.NewSegmentError(err, "read dir component").WithRelpath(blob.Relpath)
	}
	return data, nil
}

func (r *DirReader) Close() error { return nil }

// DirChecker validates a dir segment: every expected component file must
// exist with the expected size; files present but not expected are
// UNALIGNED (TO_INDEX).
type DirChecker struct {
	relpath, absdir, format string
	validator               Validator
}

func NewDirChecker(relpath, absdir, format string, validator Validator) *DirChecker {
	return &DirChecker{relpath: relpath, absdir: absdir, format: format, validator: validator}
}

func (c *DirChecker) Check(reporter Reporter, expected []ExpectedRecord, quick bool) (State, error) {
	info, err := os.Stat(c.absdir)
	if os.IsNotExist(err) {
		return StateMissing, nil
	}
	if err != nil {
		return 0, arkerrs.NewIoError(err, "stat dir segment").WithPath(c.absdir)
	}
	if !info.IsDir() {
		return StateCorrupted, nil
	}

	seen := map[int64]bool{}
	for _, e := range expected {
		name := fmt.Sprintf("%06d.%s", e.Offset, c.format)
		fi, err := os.Stat(filepath.Join(c.absdir, name))
		if os.IsNotExist(err) {
			return StateDeleted, nil
		}
		if err != nil {
			return 0, arkerrs.NewIoError(err, "stat dir component").WithPath(name)
		}
		if fi.Size() != e.Size {
			return StateCorrupted, nil
		}
		seen[e.Offset] = true
	}

	entries, err := os.ReadDir(c.absdir)
	if err != nil {
		return 0, arkerrs.NewIoError(err, "read dir segment directory").WithPath(c.absdir)
	}
	suffix := "." + c.format
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(name, suffix))
		if err != nil {
			continue
		}
		if !seen[int64(seq)] {
			return StateUnaligned, nil
		}
	}

	if quick || c.validator == nil {
		return StateOK, nil
	}
	for _, e := range expected {
		name := fmt.Sprintf("%06d.%s", e.Offset, c.format)
		data, err := os.ReadFile(filepath.Join(c.absdir, name))
		if err != nil {
			return StateCorrupted, nil
		}
		if err := c.validator.Validate(data); err != nil {
			return StateCorrupted, nil
		}
	}
	return StateOK, nil
}

func (c *DirChecker) Remove() error {
	if err := os.RemoveAll(c.absdir); err != nil {
		return arkerrs.NewIoError(err, "remove dir segment").WithPath(c.absdir)
	}
	return nil
}

func (c *DirChecker) Tar() error {
	entries, err := os.ReadDir(c.absdir)
	if err != nil {
		return arkerrs.NewIoError(err, "read dir segment directory").WithPath(c.absdir)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(c.absdir, e.Name()))
		}
	}
	return sealToTar(c.absdir+".tar", paths)
}

func (c *DirChecker) Zip() error {
	entries, err := os.ReadDir(c.absdir)
	if err != nil {
		return arkerrs.NewIoError(err, "read dir segment directory").WithPath(c.absdir)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(c.absdir, e.Name()))
		}
	}
	return sealToZip(c.absdir+".zip", paths)
}

func (c *DirChecker) Compress(groupSize int) error {
	return arkerrs.NewUnsupportedError("compress", "dir")
}

func (c *DirChecker) TestTruncate(size int64) error {
	return arkerrs.NewUnsupportedError("test_truncate", "dir")
}

func (c *DirChecker) MakeHole(offset, size int64) error {
	name := fmt.Sprintf("%06d.%s", offset, c.format)
	return os.Remove(filepath.Join(c.absdir, name))
}

func (c *DirChecker) MakeOverlap(offset, size int64) error {
	return arkerrs.NewUnsupportedError("make_overlap", "dir")
}

func (c *DirChecker) Corrupt(offset int64) error {
	name := fmt.Sprintf("%06d.%s", offset, c.format)
	f, err := os.OpenFile(filepath.Join(c.absdir, name), os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt([]byte{0xff}, 0)
	return err
}

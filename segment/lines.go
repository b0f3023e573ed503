package segment

import (
	"bufio"
	"log"
	"os"

	"github.com/arkimet/dsengine/arkerrs"
)

// LinesWriter appends newline-terminated records (spec.md §4.4's "lines"
// kind, used by VM2): one message per line, the Blob's size excluding the
// trailing newline.
type LinesWriter struct {
	relpath     string
	file        *os.File
	initialSize int64
	size        int64
	fsync       bool
}

func OpenLinesWriter(relpath, abspath string, fsync bool) (*LinesWriter, error) {
	f, err := os.OpenFile(abspath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open lines segment for append").WithPath(abspath)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, arkerrs.NewIoError(err, "stat lines segment").WithPath(abspath)
	}
	return &LinesWriter{relpath: relpath, file: f, initialSize: info.Size(), size: info.Size(), fsync: fsync}, nil
}

func (w *LinesWriter) NextOffset() int64 { return w.size }

func (w *LinesWriter) Append(data []byte) (Blob, error) {
	off := w.size
	line := append(append([]byte{}, data...), '\n')
	if _, err := w.file.WriteAt(line, off); err != nil {
		return Blob{}, arkerrs.NewIoError(err, "append to lines segment").WithPath(w.relpath)
	}
	w.size += int64(len(line))
	return Blob{Relpath: w.relpath, Offset: off, Size: int64(len(data))}, nil
}

func (w *LinesWriter) Commit() error {
	if w.fsync {
		if err := w.file.Sync(); err != nil {
			return arkerrs.NewIoError(err, "fsync lines segment").WithPath(w.relpath)
		}
	}
	return w.file.Close()
}

func (w *LinesWriter) Rollback() error {
	if err := w.file.Truncate(w.initialSize); err != nil {
		return arkerrs.NewIoError(err, "truncate lines segment on rollback").WithPath(w.relpath)
	}
	w.size = w.initialSize
	return w.file.Close()
}

func (w *LinesWriter) RollbackNothrow() {
	if err := w.Rollback(); err != nil {
		log.Printf("lines segment %s: rollback failed: %v", w.relpath, err)
	}
}

// LinesReader reads back a lines segment. Unlike concat, a lines segment
// is self-describing: ScanData can recover every message's boundaries by
// splitting on '\n' without external help.
type LinesReader struct {
	relpath string
	file    *os.File
}

func OpenLinesReader(relpath, abspath string) (*LinesReader, error) {
	f, err := os.Open(abspath)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open lines segment for read").WithPath(abspath)
	}
	return &LinesReader{relpath: relpath, file: f}, nil
}

func (r *LinesReader) ScanData(dest func(blob Blob) bool) error {
	if _, err := r.file.Seek(0, 0); err != nil {
		return arkerrs.NewIoError(err, "seek lines segment").WithPath(r.relpath)
	}
	scanner := bufio.NewScanner(r.file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var offset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		blob := Blob{Relpath: r.relpath, Offset: offset, Size: int64(len(line))}
		offset += int64(len(line)) + 1
		if !dest(blob) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return arkerrs.NewSegmentError(err, "scan lines segment").WithRelpath(r.relpath)
	}
	return nil
}

func (r *LinesReader) Read(blob Blob) ([]byte, error) {
	buf := make([]byte, blob.Size)
	if _, err := r.file.ReadAt(buf, blob.Offset); err != nil {
		return nil, arkerrs.NewSegmentError(err, "read blob").WithRelpath(r.relpath)
	}
	return buf, nil
}

func (r *LinesReader) Close() error { return r.file.Close() }

// LinesChecker validates a lines segment. Size/overlap checks are the
// same shape as ConcatChecker's; lines additionally requires every line
// to be newline-terminated.
type LinesChecker struct {
	relpath, abspath string
	validator        Validator
}

func NewLinesChecker(relpath, abspath string, validator Validator) *LinesChecker {
	return &LinesChecker{relpath: relpath, abspath: abspath, validator: validator}
}

func (c *LinesChecker) Check(reporter Reporter, expected []ExpectedRecord, quick bool) (State, error) {
	info, err := os.Stat(c.abspath)
	if os.IsNotExist(err) {
		return StateMissing, nil
	}
	if err != nil {
		return 0, arkerrs.NewIoError(err, "stat lines segment").WithPath(c.abspath)
	}

	var expectedSize int64
	for _, e := range expected {
		expectedSize += e.Size + 1 // +1 per newline
	}
	if expectedSize != info.Size() {
		if expectedSize > info.Size() {
			return StateCorrupted, nil
		}
		return StateDirty, nil
	}
	if overlaps(expected) {
		return StateCorrupted, nil
	}

	if quick {
		return StateOK, nil
	}
	f, err := os.Open(c.abspath)
	if err != nil {
		return 0, arkerrs.NewIoError(err, "open lines segment for deep check").WithPath(c.abspath)
	}
	defer f.Close()
	for _, e := range expected {
		buf := make([]byte, e.Size+1)
		if _, err := f.ReadAt(buf, e.Offset); err != nil || buf[e.Size] != '\n' {
			return StateCorrupted, nil
		}
		if c.validator != nil {
			if err := c.validator.Validate(buf[:e.Size]); err != nil {
				return StateCorrupted, nil
			}
		}
	}
	return StateOK, nil
}

func (c *LinesChecker) Remove() error {
	if err := os.Remove(c.abspath); err != nil && !os.IsNotExist(err) {
		return arkerrs.NewIoError(err, "remove lines segment").WithPath(c.abspath)
	}
	return nil
}

func (c *LinesChecker) Tar() error                 { return sealToTar(c.abspath, []string{c.abspath}) }
func (c *LinesChecker) Zip() error                 { return sealToZip(c.abspath, []string{c.abspath}) }
func (c *LinesChecker) Compress(groupSize int) error { return compressConcat(c.abspath, groupSize) }

func (c *LinesChecker) TestTruncate(size int64) error {
	f, err := os.OpenFile(c.abspath, os.O_RDWR, 0o644)
	if err != nil {
		return arkerrs.NewIoError(err, "open for test truncate").WithPath(c.abspath)
	}
	defer f.Close()
	return f.Truncate(size)
}

func (c *LinesChecker) MakeHole(offset, size int64) error {
	f, err := os.OpenFile(c.abspath, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(make([]byte, size), offset)
	return err
}

func (c *LinesChecker) MakeOverlap(offset, size int64) error {
	f, err := os.OpenFile(c.abspath, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return err
	}
	_, err = f.WriteAt(buf, offset-size/2)
	return err
}

func (c *LinesChecker) Corrupt(offset int64) error {
	f, err := os.OpenFile(c.abspath, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt([]byte{0xff}, offset)
	return err
}

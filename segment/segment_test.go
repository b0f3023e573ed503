package segment

import (
	"path/filepath"
	"testing"
)

func TestConcatWriterAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	abspath := filepath.Join(dir, "2007.grib1")

	w, err := OpenConcatWriter("2007.grib1", abspath, false)
	if err != nil {
		t.Fatalf("OpenConcatWriter: %v", err)
	}
	b1, err := w.Append([]byte("first message"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	b2, err := w.Append([]byte("second message, longer"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r, err := OpenConcatReader("2007.grib1", abspath, nil)
	if err != nil {
		t.Fatalf("OpenConcatReader: %v", err)
	}
	defer r.Close()

	got1, err := r.Read(b1)
	if err != nil {
		t.Fatalf("Read b1: %v", err)
	}
	if string(got1) != "first message" {
		t.Fatalf("Read b1 = %q", got1)
	}
	got2, err := r.Read(b2)
	if err != nil {
		t.Fatalf("Read b2: %v", err)
	}
	if string(got2) != "second message, longer" {
		t.Fatalf("Read b2 = %q", got2)
	}
}

func TestConcatWriterRollbackTruncates(t *testing.T) {
	dir := t.TempDir()
	abspath := filepath.Join(dir, "2007.grib1")

	w, err := OpenConcatWriter("2007.grib1", abspath, false)
	if err != nil {
		t.Fatalf("OpenConcatWriter: %v", err)
	}
	if _, err := w.Append([]byte("will be rolled back")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	w2, err := OpenConcatWriter("2007.grib1", abspath, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if w2.NextOffset() != 0 {
		t.Fatalf("NextOffset after rollback = %d, want 0", w2.NextOffset())
	}
}

func TestConcatCheckerDetectsTruncation(t *testing.T) {
	dir := t.TempDir()
	abspath := filepath.Join(dir, "2007.grib1")

	w, err := OpenConcatWriter("2007.grib1", abspath, false)
	if err != nil {
		t.Fatalf("OpenConcatWriter: %v", err)
	}
	b1, _ := w.Append([]byte("aaaa"))
	b2, _ := w.Append([]byte("bbbbbbbb"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	expected := []ExpectedRecord{{Offset: b1.Offset, Size: b1.Size}, {Offset: b2.Offset, Size: b2.Size}}
	checker := NewConcatChecker("2007.grib1", abspath, nil)

	state, err := checker.Check(nil, expected, true)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if state != StateOK {
		t.Fatalf("state before truncate = %v, want OK", state)
	}

	if err := checker.TestTruncate(b2.Offset + 1); err != nil {
		t.Fatalf("TestTruncate: %v", err)
	}
	state, err = checker.Check(nil, expected, true)
	if err != nil {
		t.Fatalf("Check after truncate: %v", err)
	}
	if state != StateCorrupted {
		t.Fatalf("state after truncate = %v, want CORRUPTED", state)
	}
}

func TestDirWriterRenamesOnCommit(t *testing.T) {
	dir := t.TempDir()
	absdir := filepath.Join(dir, "2007")

	w, err := OpenDirWriter("2007", absdir, "grib1", false)
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}
	b1, err := w.Append([]byte("message one"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r, err := OpenDirReader("2007", absdir, "grib1")
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	var seen []Blob
	if err := r.ScanData(func(b Blob) bool { seen = append(seen, b); return true }); err != nil {
		t.Fatalf("ScanData: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("scanned %d blobs, want 1", len(seen))
	}
	if seen[0].Size != b1.Size {
		t.Fatalf("scanned size = %d, want %d", seen[0].Size, b1.Size)
	}
}

func TestDirWriterRollbackRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	absdir := filepath.Join(dir, "2007")

	w, err := OpenDirWriter("2007", absdir, "grib1", false)
	if err != nil {
		t.Fatalf("OpenDirWriter: %v", err)
	}
	if _, err := w.Append([]byte("will be rolled back")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	r, err := OpenDirReader("2007", absdir, "grib1")
	if err != nil {
		t.Fatalf("OpenDirReader: %v", err)
	}
	var seen []Blob
	if err := r.ScanData(func(b Blob) bool { seen = append(seen, b); return true }); err != nil {
		t.Fatalf("ScanData: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("scanned %d blobs after rollback, want 0", len(seen))
	}
}

func TestLinesWriterAppendAndScan(t *testing.T) {
	dir := t.TempDir()
	abspath := filepath.Join(dir, "station.vm2")

	w, err := OpenLinesWriter("station.vm2", abspath, false)
	if err != nil {
		t.Fatalf("OpenLinesWriter: %v", err)
	}
	if _, err := w.Append([]byte("20070101;1234;1;1;0")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.Append([]byte("20070102;1234;1;1;0")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r, err := OpenLinesReader("station.vm2", abspath)
	if err != nil {
		t.Fatalf("OpenLinesReader: %v", err)
	}
	var seen []Blob
	if err := r.ScanData(func(b Blob) bool { seen = append(seen, b); return true }); err != nil {
		t.Fatalf("ScanData: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("scanned %d lines, want 2", len(seen))
	}
	got, err := r.Read(seen[1])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "20070102;1234;1;1;0" {
		t.Fatalf("Read second line = %q", got)
	}
}

func TestDetectDispatchesByExtensionAndFormat(t *testing.T) {
	if k := Detect("/x/2007.tar", "grib"); k != KindTar {
		t.Fatalf("got %v, want tar", k)
	}
	if k := Detect("/x/2007.zip", "grib"); k != KindZip {
		t.Fatalf("got %v, want zip", k)
	}
	if k := Detect("/x/2007.grib1.gz", "grib"); k != KindGzConcat {
		t.Fatalf("got %v, want gzconcat", k)
	}
	if k := Detect("/x/station.vm2", "vm2"); k != KindLines {
		t.Fatalf("got %v, want lines", k)
	}
	if k := Detect("/x/2007.grib1", "grib"); k != KindConcat {
		t.Fatalf("got %v, want concat", k)
	}
}

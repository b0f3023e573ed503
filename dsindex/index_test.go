package dsindex

import (
	"path/filepath"
	"testing"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexRecordInsertsNewFingerprint(t *testing.T) {
	idx := openTestIndex(t)

	res, err := idx.IndexRecord("2007.grib1", 0, 100, "fp1", "2007-07-08", "2007-07-09", 0, nil, ReplaceNo)
	if err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}
	if res != AcquireOK {
		t.Fatalf("result = %v, want ACQ_OK", res)
	}

	files, err := idx.DistinctFiles()
	if err != nil {
		t.Fatalf("DistinctFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "2007.grib1" {
		t.Fatalf("files = %v", files)
	}
}

func TestIndexRecordDuplicateRejectedByDefault(t *testing.T) {
	idx := openTestIndex(t)

	if _, err := idx.IndexRecord("2007.grib1", 0, 100, "fp1", "2007-07-08", "2007-07-09", 0, nil, ReplaceNo); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	res, err := idx.IndexRecord("2007.grib1", 100, 50, "fp1", "2007-07-08", "2007-07-09", 0, nil, ReplaceNo)
	if err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}
	if res != AcquireErrorDuplicate {
		t.Fatalf("result = %v, want ACQ_ERROR_DUPLICATE", res)
	}
}

func TestIndexRecordReplaceUSN(t *testing.T) {
	idx := openTestIndex(t)

	if _, err := idx.IndexRecord("synop.bufr", 0, 100, "fp1", "", "", 1, nil, ReplaceUSN); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Lower USN: rejected.
	res, err := idx.IndexRecord("synop.bufr", 200, 50, "fp1", "", "", 0, nil, ReplaceUSN)
	if err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}
	if res != AcquireErrorDuplicate {
		t.Fatalf("lower USN result = %v, want ACQ_ERROR_DUPLICATE", res)
	}

	// Higher USN: replaces.
	res, err = idx.IndexRecord("synop.bufr", 300, 60, "fp1", "", "", 2, nil, ReplaceUSN)
	if err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}
	if res != AcquireOK {
		t.Fatalf("higher USN result = %v, want ACQ_OK", res)
	}

	rows, err := idx.QueryByReftime("", "")
	if err != nil {
		t.Fatalf("QueryByReftime: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("live rows = %d, want 1", len(rows))
	}
	if rows[0].USN != 2 {
		t.Fatalf("USN = %d, want 2", rows[0].USN)
	}
}

func TestQueryByReftimeIntersection(t *testing.T) {
	idx := openTestIndex(t)

	if _, err := idx.IndexRecord("a.grib1", 0, 10, "fp-a", "2007-01-01", "2007-02-01", 0, nil, ReplaceNo); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := idx.IndexRecord("b.grib1", 0, 10, "fp-b", "2008-01-01", "2008-02-01", 0, nil, ReplaceNo); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	rows, err := idx.QueryByReftime("2007-01-15", "2007-01-20")
	if err != nil {
		t.Fatalf("QueryByReftime: %v", err)
	}
	if len(rows) != 1 || rows[0].File != "a.grib1" {
		t.Fatalf("rows = %+v", rows)
	}
}

package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MANIFEST")

	m := &Manifest{}
	m.Upsert(Row{File: "2007/01.grib1", Mtime: 100, StartTime: "2007-01-01", EndTime: "2007-02-01"})
	m.Upsert(Row{File: "2007/02.grib1", Mtime: 200, StartTime: "2007-02-01", EndTime: "2007-03-01"})

	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	// Descending by filename: 02 before 01.
	if got.Rows[0].File != "2007/02.grib1" {
		t.Fatalf("first row = %s, want descending order", got.Rows[0].File)
	}
}

func TestManifestUpsertReplacesExisting(t *testing.T) {
	m := &Manifest{}
	m.Upsert(Row{File: "a.grib1", Mtime: 1})
	m.Upsert(Row{File: "a.grib1", Mtime: 2})
	if len(m.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(m.Rows))
	}
	if m.Rows[0].Mtime != 2 {
		t.Fatalf("mtime = %d, want 2", m.Rows[0].Mtime)
	}
}

func TestManifestIntersecting(t *testing.T) {
	m := &Manifest{}
	m.Upsert(Row{File: "a.grib1", StartTime: "2007-01-01", EndTime: "2007-02-01"})
	m.Upsert(Row{File: "b.grib1", StartTime: "2008-01-01", EndTime: "2008-02-01"})

	rows := m.Intersecting("2007-01-15", "2007-01-20")
	if len(rows) != 1 || rows[0].File != "a.grib1" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestSummaryCacheFreshness(t *testing.T) {
	dir := t.TempDir()
	datasetSummary := filepath.Join(dir, "summary")
	segSummary := filepath.Join(dir, "2007.grib1.summary")

	if err := os.WriteFile(segSummary, []byte("x"), 0o644); err != nil {
		t.Fatalf("write seg summary: %v", err)
	}
	if err := os.WriteFile(datasetSummary, []byte("y"), 0o644); err != nil {
		t.Fatalf("write dataset summary: %v", err)
	}

	fresh, err := SummaryCacheFresh(datasetSummary, []string{segSummary})
	if err != nil {
		t.Fatalf("SummaryCacheFresh: %v", err)
	}
	if !fresh {
		t.Fatal("expected fresh cache")
	}

	// Touch the segment summary later.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(segSummary, later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	fresh, err = SummaryCacheFresh(datasetSummary, []string{segSummary})
	if err != nil {
		t.Fatalf("SummaryCacheFresh: %v", err)
	}
	if fresh {
		t.Fatal("expected stale cache after segment summary updated")
	}
}

func TestSummaryCacheInvalidateIsStale(t *testing.T) {
	dir := t.TempDir()
	datasetSummary := filepath.Join(dir, "summary")

	if err := Invalidate(datasetSummary); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	fresh, err := SummaryCacheFresh(datasetSummary, nil)
	if err != nil {
		t.Fatalf("SummaryCacheFresh: %v", err)
	}
	if fresh {
		t.Fatal("zero-byte summary should be treated as stale")
	}
}

package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

func simpleConfig(name string) *config.Dataset {
	return &config.Dataset{
		Name:     name,
		Type:     config.TypeSimple,
		Format:   "grib",
		Step:     config.StepDaily,
		Unique:   []string{"reftime", "origin"},
		Segments: config.SegmentsDefault,
		Replace:  config.ReplaceNo,
	}
}

func buildRecord(origin string, day int) (*metadata.Record, []byte) {
	rec := metadata.NewRecord()
	rec.Set(metadata.NewItem(metadata.TypeOrigin, "GRIB1", origin, "0", "1"))
	begin := timeutil.Time{Year: 2007, Month: 7, Day: day}
	end := timeutil.Time{Year: 2007, Month: 7, Day: day}
	rec.Reftime = timeutil.Interval{Begin: &begin, End: &end}
	data := []byte("GRIB-message-" + origin)
	rec.Source = metadata.NewInlineSource(metadata.FormatGRIB, int64(len(data)))
	return rec, data
}

func TestSimpleDatasetWriteAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := simpleConfig("synop")

	w, err := OpenWriter(cfg, dir, nil)
	if err != nil {
		t.Fatalf("Open writer: %v", err)
	}

	rec1, data1 := buildRecord("200", 8)
	rec2, data2 := buildRecord("201", 8)

	if res, err := w.Append(rec1, data1, 0); err != nil {
		t.Fatalf("Append rec1: %v", err)
	} else if res.String() != "ACQ_OK" {
		t.Fatalf("rec1 result = %v", res)
	}
	if res, err := w.Append(rec2, data2, 0); err != nil {
		t.Fatalf("Append rec2: %v", err)
	} else if res.String() != "ACQ_OK" {
		t.Fatalf("rec2 result = %v", res)
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simple datasets have no rescan scanner of their own in this engine;
	// seed the `.metadata` cache the reader depends on directly, mirroring
	// what a successful Check/rescan would have written.
	abspath := filepath.Join(dir, "2007", "07-08.grib.metadata")
	cache := WriteMetadataCache([]*metadata.Record{rec1, rec2})
	if err := os.WriteFile(abspath, cache, 0o644); err != nil {
		t.Fatalf("seed metadata cache: %v", err)
	}

	r, err := OpenReader(cfg, dir, nil)
	if err != nil {
		t.Fatalf("Open reader: %v", err)
	}
	defer r.Close()

	m := matcher.New().WithPredicate(metadata.TypeOrigin, matcher.NewAtom("GRIB1", "200", "0", "1"))

	var got []*metadata.Record
	err = r.QueryData(m, false, nil, func(res Result) bool {
		got = append(got, res.Record)
		return true
	})
	if err != nil {
		t.Fatalf("QueryData: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
}

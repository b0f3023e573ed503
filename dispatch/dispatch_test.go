package dispatch

import (
	"testing"

	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/dataset"
	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

func openTestWriter(t *testing.T, name string) *dataset.Writer {
	t.Helper()
	cfg := &config.Dataset{
		Name:     name,
		Type:     config.TypeSimple,
		Format:   "grib",
		Step:     config.StepDaily,
		Unique:   []string{"reftime", "origin"},
		Segments: config.SegmentsDefault,
		Replace:  config.ReplaceNo,
	}
	w, err := dataset.OpenWriter(cfg, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenWriter %s: %v", name, err)
	}
	return w
}

// openIndexedWriter opens an ondisk2 dataset, whose SQL index is the only
// layer that enforces the fingerprint replace policy (spec.md §4.6: simple
// datasets' MANIFEST carries no per-record fingerprint column, so they
// never reject a duplicate append).
func openIndexedWriter(t *testing.T, name string) *dataset.Writer {
	t.Helper()
	cfg := &config.Dataset{
		Name:     name,
		Type:     config.TypeOndisk2,
		Format:   "grib",
		Step:     config.StepDaily,
		Unique:   []string{"reftime", "origin"},
		Segments: config.SegmentsDefault,
		Replace:  config.ReplaceNo,
	}
	w, err := dataset.OpenWriter(cfg, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenWriter %s: %v", name, err)
	}
	return w
}

func testRecord(origin string) (*metadata.Record, []byte) {
	rec := metadata.NewRecord()
	rec.Set(metadata.NewItem(metadata.TypeOrigin, "GRIB1", origin, "0", "1"))
	begin := timeutil.Time{Year: 2007, Month: 7, Day: 8}
	rec.Reftime = timeutil.Interval{Begin: &begin, End: &begin}
	data := []byte("msg-" + origin)
	rec.Source = metadata.NewInlineSource(metadata.FormatGRIB, int64(len(data)))
	return rec, data
}

func TestDispatchRoutesToMatchingDataset(t *testing.T) {
	synop := openTestWriter(t, "synop")
	temp := openTestWriter(t, "temp")

	d := New([]Route{
		{Name: "synop", Matcher: matcher.New().WithPredicate(metadata.TypeOrigin, matcher.NewAtom("GRIB1", "200", "0", "1")), Writer: synop},
		{Name: "temp", Matcher: matcher.New().WithPredicate(metadata.TypeOrigin, matcher.NewAtom("GRIB1", "201", "0", "1")), Writer: temp},
	}, nil, nil, nil)

	rec, data := testRecord("200")
	outcome, err := d.Dispatch(rec, data, 0)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome != DispOK {
		t.Fatalf("outcome = %v, want DISP_OK", outcome)
	}
}

func TestDispatchNoMatchGoesToError(t *testing.T) {
	synop := openTestWriter(t, "synop")
	errds := openTestWriter(t, "error")

	d := New([]Route{
		{Name: "synop", Matcher: matcher.New().WithPredicate(metadata.TypeOrigin, matcher.NewAtom("GRIB1", "999", "0", "1")), Writer: synop},
	}, []*dataset.Writer{errds}, nil, nil)

	rec, data := testRecord("200")
	outcome, err := d.Dispatch(rec, data, 0)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome != DispError {
		t.Fatalf("outcome = %v, want DISP_ERROR", outcome)
	}
}

func TestDispatchNoMatchNoErrorDatasetIsNotWritten(t *testing.T) {
	synop := openTestWriter(t, "synop")

	d := New([]Route{
		{Name: "synop", Matcher: matcher.New().WithPredicate(metadata.TypeOrigin, matcher.NewAtom("GRIB1", "999", "0", "1")), Writer: synop},
	}, nil, nil, nil)

	rec, data := testRecord("200")
	outcome, err := d.Dispatch(rec, data, 0)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome != DispNotWritten {
		t.Fatalf("outcome = %v, want DISP_NOTWRITTEN", outcome)
	}
	if len(rec.Notes) == 0 {
		t.Fatalf("expected a note explaining the unwritten record")
	}
}

func TestDispatchDuplicateRoutesToDuplicatesDataset(t *testing.T) {
	synop := openIndexedWriter(t, "synop")
	dupes := openTestWriter(t, "duplicates")

	d := New([]Route{
		{Name: "synop", Matcher: nil, Writer: synop},
	}, nil, dupes, nil)

	// The fingerprint check in Append only sees committed index rows, so
	// the first record's batch must commit before the second is dispatched
	// (spec.md §4.9: "batches commit per source file").
	rec1, data1 := testRecord("200")
	b1 := d.NewBatch()
	if outcome, err := b1.Add(rec1, data1, 0); err != nil || outcome != DispOK {
		t.Fatalf("first dispatch = %v, %v", outcome, err)
	}
	if err := b1.Commit(); err != nil {
		t.Fatalf("first batch Commit: %v", err)
	}

	rec2, data2 := testRecord("200")
	b2 := d.NewBatch()
	outcome, err := b2.Add(rec2, data2, 0)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if outcome != DispDuplicateError {
		t.Fatalf("outcome = %v, want DISP_DUPLICATE_ERROR", outcome)
	}
	if err := b2.Commit(); err != nil {
		t.Fatalf("second batch Commit: %v", err)
	}
}

func TestBatchCommitsAllTouchedWriters(t *testing.T) {
	synop := openTestWriter(t, "synop")
	d := New([]Route{{Name: "synop", Matcher: nil, Writer: synop}}, nil, nil, nil)

	b := d.NewBatch()
	rec, data := testRecord("200")
	if _, err := b.Add(rec, data, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(b.Results()) != 1 || b.Results()[0] != DispOK {
		t.Fatalf("results = %v", b.Results())
	}
}

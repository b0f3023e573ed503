package summary

import (
	"bytes"
	"testing"

	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

func sampleRecord(origin string, begin, end timeutil.Time) *metadata.Record {
	r := metadata.NewRecord()
	r.Set(metadata.NewItem(metadata.TypeOrigin, "GRIB1", origin, "0", "1"))
	r.Reftime = timeutil.Interval{Begin: &begin, End: &end}
	return r
}

func TestSummaryAddGroupsByItems(t *testing.T) {
	s := New()
	b1, e1 := timeutil.Time{Year: 2007, Month: 7, Day: 8}, timeutil.Time{Year: 2007, Month: 7, Day: 9}
	b2, e2 := timeutil.Time{Year: 2007, Month: 7, Day: 10}, timeutil.Time{Year: 2007, Month: 7, Day: 11}

	s.Add(sampleRecord("200", b1, e1), 100)
	s.Add(sampleRecord("200", b2, e2), 50)
	s.Add(sampleRecord("201", b1, e1), 30)

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if s.Count() != 3 {
		t.Fatalf("count = %d, want 3", s.Count())
	}
	if s.Size() != 180 {
		t.Fatalf("size = %d, want 180", s.Size())
	}

	iv, ok := s.DateExtremes()
	if !ok {
		t.Fatal("expected date extremes")
	}
	if !iv.Begin.Equal(b1) || !iv.End.Equal(e2) {
		t.Fatalf("extremes = %v..%v", iv.Begin, iv.End)
	}
}

func TestSummaryMergeCombinesEntries(t *testing.T) {
	b, e := timeutil.Time{Year: 2007, Month: 7, Day: 8}, timeutil.Time{Year: 2007, Month: 7, Day: 9}

	s1 := New()
	s1.Add(sampleRecord("200", b, e), 10)
	s2 := New()
	s2.Add(sampleRecord("200", b, e), 20)

	s1.Merge(s2)
	if s1.Count() != 2 {
		t.Fatalf("count = %d, want 2", s1.Count())
	}
	if s1.Size() != 30 {
		t.Fatalf("size = %d, want 30", s1.Size())
	}
}

func TestSummaryEncodeDecodeRoundTrip(t *testing.T) {
	b, e := timeutil.Time{Year: 2007, Month: 7, Day: 8}, timeutil.Time{Year: 2007, Month: 7, Day: 9}

	s := New()
	s.Add(sampleRecord("200", b, e), 10)
	s.Add(sampleRecord("201", b, e), 20)

	bundle := Encode(s)
	sig, payload, err := metadata.ReadBundleHeader(bytes.NewReader(bundle))
	if err != nil {
		t.Fatalf("ReadBundleHeader: %v", err)
	}
	if sig != metadata.SigSummary {
		t.Fatalf("signature = %v, want SU", sig)
	}

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Count() != s.Count() || got.Size() != s.Size() {
		t.Fatalf("round trip mismatch: got count=%d size=%d, want count=%d size=%d",
			got.Count(), got.Size(), s.Count(), s.Size())
	}
}

func TestSummaryFilterByMatcher(t *testing.T) {
	b, e := timeutil.Time{Year: 2007, Month: 7, Day: 8}, timeutil.Time{Year: 2007, Month: 7, Day: 9}

	s := New()
	s.Add(sampleRecord("200", b, e), 10)
	s.Add(sampleRecord("201", b, e), 20)

	m := matcher.New().WithPredicate(metadata.TypeOrigin, matcher.NewAtom("GRIB1", "200", "0", "1"))
	filtered := s.Filter(m)
	if filtered.Count() != 1 {
		t.Fatalf("filtered count = %d, want 1", filtered.Count())
	}
}

package metadata

import (
	"bytes"
	"testing"

	"github.com/arkimet/dsengine/timeutil"
)

func sampleRecord() *Record {
	r := NewRecord()
	r.Set(NewItem(TypeOrigin, "GRIB1", "200", "0", "101"))
	r.Set(NewItem(TypeProduct, "GRIB1", "200", "2", "33"))
	begin := timeutil.Time{Year: 2026, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0}
	end := timeutil.Time{Year: 2026, Month: 1, Day: 2, Hour: 0, Minute: 0, Second: 0}
	r.Reftime = timeutil.Interval{Begin: &begin, End: &end}
	r.AddNote(Note{Time: "2026-01-01T00:00:00Z", Text: "scanned by test harness"})
	r.Source = NewBlobSource(FormatGRIB, "/data/test", "2026/01.grib", 128, 64)
	return r
}

func TestBinaryRoundTrip(t *testing.T) {
	r := sampleRecord()
	payload := EncodeRecord(r)
	bundle := EncodeBundle(SigRecord, payload)

	sig, gotPayload, err := ReadBundleHeader(bytes.NewReader(bundle))
	if err != nil {
		t.Fatalf("ReadBundleHeader: %v", err)
	}
	if sig != SigRecord {
		t.Fatalf("signature = %v, want %v", sig, SigRecord)
	}

	got, err := DecodeRecord(gotPayload)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if !got.Equal(r) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestBinaryBundleBadSignature(t *testing.T) {
	bad := []byte{'X', 'X', 0, 0, 0, 0, 0, 0}
	_, _, err := ReadBundleHeader(bytes.NewReader(bad))
	if err == nil {
		t.Fatal("expected error on bad signature")
	}
}

func TestBinaryBundleShortRead(t *testing.T) {
	_, _, err := ReadBundleHeader(bytes.NewReader([]byte{'M', 'D'}))
	if err == nil {
		t.Fatal("expected error on short header")
	}
}

func TestGroupBundleRoundTrip(t *testing.T) {
	r1, r2 := sampleRecord(), sampleRecord()
	r2.Set(NewItem(TypeOrigin, "GRIB1", "201", "0", "101"))

	var inner bytes.Buffer
	inner.Write(EncodeBundle(SigRecord, EncodeRecord(r1)))
	inner.Write(EncodeBundle(SigRecord, EncodeRecord(r2)))

	groupBundle := EncodeGroup(inner.Bytes())
	sig, payload, err := ReadBundleHeader(bytes.NewReader(groupBundle))
	if err != nil {
		t.Fatalf("ReadBundleHeader: %v", err)
	}
	if sig != SigGroup {
		t.Fatalf("signature = %v, want %v", sig, SigGroup)
	}

	decompressed, err := DecodeGroup(payload)
	if err != nil {
		t.Fatalf("DecodeGroup: %v", err)
	}
	if !bytes.Equal(decompressed, inner.Bytes()) {
		t.Fatalf("group payload mismatch after round trip")
	}

	r := bytes.NewReader(decompressed)
	for i := 0; i < 2; i++ {
		_, payload, err := ReadBundleHeader(r)
		if err != nil {
			t.Fatalf("ReadBundleHeader inner %d: %v", i, err)
		}
		if _, err := DecodeRecord(payload); err != nil {
			t.Fatalf("DecodeRecord inner %d: %v", i, err)
		}
	}
}

func TestTextRoundTrip(t *testing.T) {
	r := sampleRecord()
	text := EncodeText(r)

	got, err := DecodeText(bytes.NewReader([]byte(text)))
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}

	if len(got.Items) != len(r.Items) {
		t.Fatalf("item count = %d, want %d", len(got.Items), len(r.Items))
	}
	for i := range r.Items {
		if got.Items[i] != r.Items[i] {
			t.Fatalf("item %d = %+v, want %+v", i, got.Items[i], r.Items[i])
		}
	}
	if got.Reftime.Begin == nil || !got.Reftime.Begin.Equal(*r.Reftime.Begin) {
		t.Fatalf("reftime begin mismatch: %+v", got.Reftime)
	}
	if got.Reftime.End == nil || !got.Reftime.End.Equal(*r.Reftime.End) {
		t.Fatalf("reftime end mismatch: %+v", got.Reftime)
	}
}

func TestStructuredRoundTrip(t *testing.T) {
	r := sampleRecord()
	data, err := EncodeStructured(r)
	if err != nil {
		t.Fatalf("EncodeStructured: %v", err)
	}

	got, err := DecodeStructured(data)
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}

	if len(got.Items) != len(r.Items) {
		t.Fatalf("item count = %d, want %d", len(got.Items), len(r.Items))
	}
	for i := range r.Items {
		if got.Items[i] != r.Items[i] {
			t.Fatalf("item %d = %+v, want %+v", i, got.Items[i], r.Items[i])
		}
	}
	if len(got.Notes) != len(r.Notes) {
		t.Fatalf("note count = %d, want %d", len(got.Notes), len(r.Notes))
	}
}

func TestItemCompareGivesTotalOrder(t *testing.T) {
	a := NewItem(TypeOrigin, "GRIB1", "200")
	b := NewItem(TypeOrigin, "GRIB1", "201")
	c := NewItem(TypeProduct, "GRIB1", "200")

	if a.Compare(b) >= 0 {
		t.Fatalf("expected a < b")
	}
	if b.Compare(c) >= 0 {
		t.Fatalf("expected b < c (type code orders first)")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected a == a")
	}
}

func TestInternerSharesPointerForEqualItems(t *testing.T) {
	in := NewInterner()
	a := in.Intern(NewItem(TypeOrigin, "GRIB1", "200"))
	b := in.Intern(NewItem(TypeOrigin, "GRIB1", "200"))
	if a != b {
		t.Fatal("expected value-identical items to share one pointer")
	}
	if in.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", in.Len())
	}
}

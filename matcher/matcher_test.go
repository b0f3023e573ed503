package matcher

import (
	"testing"

	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

func sampleRecord() *metadata.Record {
	r := metadata.NewRecord()
	r.Set(metadata.NewItem(metadata.TypeOrigin, "GRIB1", "200", "0", "101"))
	r.Set(metadata.NewItem(metadata.TypeProduct, "GRIB1", "200", "2", "33"))
	begin := timeutil.Time{Year: 2007, Month: 7, Day: 8, Hour: 13}
	r.Reftime = timeutil.Interval{Begin: &begin}
	return r
}

func TestMatcherOriginAtom(t *testing.T) {
	m, err := Parse("origin:GRIB1,200,0,101", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.Matches(sampleRecord()) {
		t.Fatal("expected record to match origin predicate")
	}
}

func TestMatcherOriginAtomNoMatch(t *testing.T) {
	m, err := Parse("origin:GRIB1,201", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Matches(sampleRecord()) {
		t.Fatal("expected record not to match origin=201")
	}
}

func TestMatcherReftimeEquality(t *testing.T) {
	m, err := Parse("reftime:=2007-07-08", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.Matches(sampleRecord()) {
		t.Fatal("expected record within 2007-07-08 to match")
	}

	iv, ok := m.DateExtremes()
	if !ok {
		t.Fatal("expected DateExtremes to be present")
	}
	if iv.Begin == nil || iv.Begin.Day != 8 {
		t.Fatalf("unexpected extremes: %+v", iv)
	}
}

func TestMatcherAliasExpansion(t *testing.T) {
	aliases := NewAliasTable()
	aliases.Define("origin", "ecmwf", "GRIB1,98,0,129")

	m, err := Parse("origin:@ecmwf", aliases)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	r := metadata.NewRecord()
	r.Set(metadata.NewItem(metadata.TypeOrigin, "GRIB1", "98", "0", "129"))
	if !m.Matches(r) {
		t.Fatal("expected alias-expanded predicate to match")
	}
}

func TestMatcherUndefinedAlias(t *testing.T) {
	_, err := Parse("origin:@doesnotexist", NewAliasTable())
	if err == nil {
		t.Fatal("expected error on undefined alias")
	}
}

func TestMatcherMissingItemDoesNotMatch(t *testing.T) {
	m, err := Parse("level:GRIB1,100", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Matches(sampleRecord()) {
		t.Fatal("expected record without a level item to not match")
	}
}

func TestMatcherConjunctionAcrossTypes(t *testing.T) {
	m, err := Parse("origin:GRIB1,200,0,101;product:GRIB1,200,2,33", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.Matches(sampleRecord()) {
		t.Fatal("expected conjunction of matching predicates to match")
	}
}

package timeutil

import "testing"

func mkTime(y, mo, d, h, mi, s int) Time {
	return Time{Year: y, Month: mo, Day: d, Hour: h, Minute: mi, Second: s}
}

func TestIntervalIntersection(t *testing.T) {
	a := NewInterval(ptr(mkTime(2000, 1, 1, 0, 0, 0)), ptr(mkTime(2010, 1, 1, 0, 0, 0)))
	b := NewInterval(ptr(mkTime(2005, 1, 1, 0, 0, 0)), ptr(mkTime(2015, 1, 1, 0, 0, 0)))

	got, ok := a.Intersect(b)
	if !ok {
		t.Fatal("expected intersection to succeed")
	}
	want := NewInterval(ptr(mkTime(2005, 1, 1, 0, 0, 0)), ptr(mkTime(2010, 1, 1, 0, 0, 0)))
	if !got.Begin.Equal(*want.Begin) || !got.End.Equal(*want.End) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestIntervalDisjointOpenSides(t *testing.T) {
	a := NewInterval(nil, ptr(mkTime(2000, 1, 1, 0, 0, 0)))
	b := NewInterval(ptr(mkTime(2000, 1, 1, 0, 0, 0)), nil)

	_, ok := a.Intersect(b)
	if ok {
		t.Fatal("expected disjoint intervals to not intersect")
	}
}

func TestIntervalExtendSelf(t *testing.T) {
	a := NewInterval(ptr(mkTime(2000, 1, 1, 0, 0, 0)), ptr(mkTime(2001, 1, 1, 0, 0, 0)))
	got := a.Extend(a)
	if !got.Begin.Equal(*a.Begin) || !got.End.Equal(*a.End) {
		t.Fatalf("extend with self changed interval: %+v", got)
	}
}

func TestFuzzyTimeValidateLeapDay(t *testing.T) {
	if err := NewFuzzyTime(2024, 2, 29).Validate(); err != nil {
		t.Fatalf("2024-02-29 should validate: %v", err)
	}
}

func TestFuzzyTimeValidateNonLeapDayRejected(t *testing.T) {
	err := NewFuzzyTime(2023, 2, 29).Validate()
	if err == nil {
		t.Fatal("2023-02-29 should fail validation")
	}
	if got := err.Error(); got != "day must be between 1 and 28" {
		t.Fatalf("message = %q", got)
	}
}

func TestFuzzyTimeValidateHour24(t *testing.T) {
	err := NewFuzzyTime(2024, 2, 1, 24, 1, 0).Validate()
	if err == nil {
		t.Fatal("hour=24, minute=1 should fail validation")
	}
	if got := err.Error(); got != "on hour 24, minute must be zero" {
		t.Fatalf("message = %q", got)
	}
}

func TestFuzzyTimeLowersToInterval(t *testing.T) {
	ft := NewFuzzyTime(2024, 7)
	iv := ft.Interval()
	wantBegin := mkTime(2024, 7, 1, 0, 0, 0)
	wantEnd := mkTime(2024, 8, 1, 0, 0, 0)
	if !iv.Begin.Equal(wantBegin) {
		t.Fatalf("begin = %+v, want %+v", iv.Begin, wantBegin)
	}
	if !iv.End.Equal(wantEnd) {
		t.Fatalf("end = %+v, want %+v", iv.End, wantEnd)
	}
}

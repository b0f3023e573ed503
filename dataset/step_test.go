package dataset

import (
	"testing"

	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/timeutil"
)

func TestRelpathDaily(t *testing.T) {
	rp, err := Relpath(config.StepDaily, timeutil.Time{Year: 2007, Month: 7, Day: 8})
	if err != nil {
		t.Fatalf("Relpath: %v", err)
	}
	if rp != "2007/07-08" {
		t.Fatalf("relpath = %q", rp)
	}
}

func TestRelpathYearly(t *testing.T) {
	rp, err := Relpath(config.StepYearly, timeutil.Time{Year: 2007, Month: 7, Day: 8})
	if err != nil {
		t.Fatalf("Relpath: %v", err)
	}
	if rp != "2007" {
		t.Fatalf("relpath = %q", rp)
	}
}

func TestRelpathMonthly(t *testing.T) {
	rp, err := Relpath(config.StepMonthly, timeutil.Time{Year: 2007, Month: 7, Day: 8})
	if err != nil {
		t.Fatalf("Relpath: %v", err)
	}
	if rp != "2007/07" {
		t.Fatalf("relpath = %q", rp)
	}
}

func TestSegmentPathSinglefile(t *testing.T) {
	p := SegmentPath(config.StepSinglefile, "", "archive", "grib1")
	if p != "archive.grib1" {
		t.Fatalf("path = %q", p)
	}
}

func TestSegmentPathDaily(t *testing.T) {
	p := SegmentPath(config.StepDaily, "2007/07-08", "synop", "grib1")
	if p != "2007/07-08.grib1" {
		t.Fatalf("path = %q", p)
	}
}

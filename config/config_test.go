package config

import (
	"strings"
	"testing"
)

func TestParseOndisk2Dataset(t *testing.T) {
	text := `name = synop
path = /data/synop
type = ondisk2
format = bufr
step = daily
unique = reftime, origin, product
index = reftime, product
replace = USN
archive age = 365
delete age = 3650
`
	d, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Name != "synop" || d.Type != TypeOndisk2 || d.Step != StepDaily {
		t.Fatalf("parsed = %+v", d)
	}
	if len(d.Unique) != 3 || d.Unique[2] != "product" {
		t.Fatalf("unique = %v", d.Unique)
	}
	if d.Replace != ReplaceUSN {
		t.Fatalf("replace = %v", d.Replace)
	}
	if d.ArchiveAge != 365 || d.DeleteAge != 3650 {
		t.Fatalf("ages = %d/%d", d.ArchiveAge, d.DeleteAge)
	}
}

func TestParseMissingNameRejected(t *testing.T) {
	text := "type = ondisk2\nstep = daily\nunique = reftime\n"
	if _, err := Parse(strings.NewReader(text)); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParseUnknownStepRejected(t *testing.T) {
	text := "name = x\ntype = ondisk2\nstep = fortnightly\nunique = reftime\n"
	if _, err := Parse(strings.NewReader(text)); err == nil {
		t.Fatal("expected error for unknown step")
	}
}

func TestParseErrorDatasetSkipsStepRequirement(t *testing.T) {
	text := "name = error\ntype = error\npath = /data/error\n"
	d, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Type != TypeError {
		t.Fatalf("type = %v", d.Type)
	}
}

func TestParsePreservesUnknownKeysInExtra(t *testing.T) {
	text := "name = x\ntype = discard\nsomething-custom = 1\n"
	d, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Extra["something-custom"] != "1" {
		t.Fatalf("extra = %v", d.Extra)
	}
}

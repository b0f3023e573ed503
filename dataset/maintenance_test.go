package dataset

import (
	"testing"

	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/segment"
)

func indexedConfig(name string) *config.Dataset {
	return &config.Dataset{
		Name:     name,
		Type:     config.TypeOndisk2,
		Format:   "grib",
		Step:     config.StepDaily,
		Unique:   []string{"reftime", "origin"},
		Segments: config.SegmentsDefault,
		Replace:  config.ReplaceYes,
	}
}

func TestCheckClassifiesPackAfterReplace(t *testing.T) {
	dir := t.TempDir()
	cfg := indexedConfig("synop")

	w, err := OpenWriter(cfg, dir, nil)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	rec1, data1 := buildRecord("200", 8)
	if _, err := w.Append(rec1, data1, 0); err != nil {
		t.Fatalf("Append rec1: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit 1: %v", err)
	}

	// Same fingerprint (reftime+origin) with ReplaceYes tombstones rec1's
	// row and indexes rec2 in its place, leaving a hole in the segment.
	rec2, data2 := buildRecord("200", 8)
	if _, err := w.Append(rec2, data2, 0); err != nil {
		t.Fatalf("Append rec2: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}

	m, err := OpenMaintenance(cfg, dir, nil)
	if err != nil {
		t.Fatalf("OpenMaintenance: %v", err)
	}
	defer m.Close()

	statuses, err := m.Check(true)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	var found *SegmentStatus
	for i := range statuses {
		if statuses[i].Relpath != "" {
			found = &statuses[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no segment found in status list: %v", statuses)
	}
	if !found.State.Has(segment.StatePack) {
		t.Fatalf("state = %v, want StatePack set", found.State)
	}

	rp, err := m.Repack(statuses, true)
	if err != nil {
		t.Fatalf("Repack: %v", err)
	}
	if rp.Packed != 1 {
		t.Fatalf("Packed = %d, want 1", rp.Packed)
	}

	statuses2, err := m.Check(true)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	for _, st := range statuses2 {
		if st.State.Has(segment.StatePack) {
			t.Fatalf("segment %s still needs pack after repack", st.Relpath)
		}
	}
}

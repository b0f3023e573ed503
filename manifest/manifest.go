// Package manifest implements the simple dataset's MANIFEST file: an
// ordered log of (relpath, mtime, start_time, end_time) rows, one per
// segment, rewritten atomically in full on every change (spec.md §4.6).
// The rewrite-whole-file-then-rename durability pattern is grounded on the
// teacher's writeFileAtomic (Epokhe-bitdb/core/file.go), generalized from
// a binary MANIFEST-of-segment-ids to this dataset's text rows.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
)

// Row is one segment entry.
type Row struct {
	File      string
	Mtime     int64
	StartTime string
	EndTime   string
}

// Manifest is the full in-memory content of a dataset's MANIFEST file.
type Manifest struct {
	Rows []Row
}

// Load parses path. A missing file yields an empty Manifest, not an error
// (a brand new dataset has no MANIFEST yet).
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open MANIFEST").WithPath(path)
	}
	defer f.Close()

	m := &Manifest{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseRow(line)
		if err != nil {
			return nil, err
		}
		m.Rows = append(m.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, arkerrs.NewIoError(err, "read MANIFEST").WithPath(path)
	}
	return m, nil
}

func parseRow(line string) (Row, error) {
	parts := strings.Split(line, ";")
	if len(parts) != 4 {
		return Row{}, arkerrs.NewCodecError(nil, "malformed MANIFEST row: "+line).WithStage("manifest-row")
	}
	mtime, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Row{}, arkerrs.NewCodecError(err, "malformed MANIFEST mtime").WithStage("manifest-row")
	}
	return Row{File: parts[0], Mtime: mtime, StartTime: parts[2], EndTime: parts[3]}, nil
}

func (r Row) String() string {
	return fmt.Sprintf("%s;%d;%s;%s", r.File, r.Mtime, r.StartTime, r.EndTime)
}

// Save rewrites the MANIFEST atomically (temp file + rename), rows sorted
// descending by filename. The descending order is an observed convention
// of the original rather than a documented requirement; it is preserved
// rather than "fixed" (spec.md §9 open question).
func (m *Manifest) Save(path string) error {
	sorted := append([]Row(nil), m.Rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].File > sorted[j].File })

	var b strings.Builder
	for _, r := range sorted {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return arkerrs.NewIoError(err, "create MANIFEST directory").WithPath(path)
	}
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return arkerrs.NewIoError(err, "write MANIFEST tmp").WithPath(tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return arkerrs.NewIoError(err, "rename MANIFEST into place").WithPath(path)
	}
	return nil
}

// Upsert replaces the row for the same file, or appends a new one.
func (m *Manifest) Upsert(row Row) {
	for i := range m.Rows {
		if m.Rows[i].File == row.File {
			m.Rows[i] = row
			return
		}
	}
	m.Rows = append(m.Rows, row)
}

// Remove drops the row for file, if present.
func (m *Manifest) Remove(file string) {
	out := m.Rows[:0]
	for _, r := range m.Rows {
		if r.File != file {
			out = append(out, r)
		}
	}
	m.Rows = out
}

// Intersecting returns every row whose [start_time, end_time] window
// intersects [begin, end) (string-compared, since reftime strings here are
// the canonical sortable form produced by timeutil.Time.String).
func (m *Manifest) Intersecting(begin, end string) []Row {
	var out []Row
	for _, r := range m.Rows {
		if begin != "" && r.EndTime != "" && r.EndTime < begin {
			continue
		}
		if end != "" && r.StartTime != "" && r.StartTime >= end {
			continue
		}
		out = append(out, r)
	}
	return out
}

package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/dsindex"
	"github.com/arkimet/dsengine/manifest"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/segment"
	"github.com/arkimet/dsengine/summary"
)

// SegmentStatus is one segment's classification from Check (spec.md
// §4.10's state table).
type SegmentStatus struct {
	Relpath string
	State   segment.State
	Begin   string
	End     string
}

// Report accumulates human-readable maintenance actions plus running
// totals, mirroring spec.md §4.10's "one line per action ... summed by
// total files archived/deleted/packed/rescanned/bytes reclaimed".
type Report struct {
	Lines            []string
	Rescanned        int
	Packed           int
	Archived         int
	Deleted          int
	BytesReclaimed   int64
}

func (rp *Report) Report(relpath, action string) {
	rp.Lines = append(rp.Lines, relpath+": "+action)
}

// Maintenance owns check/repack for one dataset (spec.md §4.10). It does
// not acquire the advisory dataset-wide lock (see Lock).
type Maintenance struct {
	cfg  *config.Dataset
	root string
	idx  *dsindex.Index
	mf   *manifest.Manifest
	mfPath string
	log  *zap.SugaredLogger
}

// OpenMaintenance opens a read-write Maintenance handle for the dataset
// at root.
func OpenMaintenance(cfg *config.Dataset, root string, log *zap.SugaredLogger) (*Maintenance, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Maintenance{cfg: cfg, root: root, log: log}

	switch cfg.Type {
	case config.TypeOndisk2:
		idx, err := dsindex.Open(filepath.Join(root, "index.sqlite"), false)
		if err != nil {
			return nil, err
		}
		m.idx = idx
	case config.TypeSimple:
		m.mfPath = filepath.Join(root, "MANIFEST")
		mf, err := manifest.Load(m.mfPath)
		if err != nil {
			return nil, err
		}
		m.mf = mf
	default:
		return nil, arkerrs.NewConfigError(nil, "maintenance unsupported for dataset type "+string(cfg.Type)).WithKey("type")
	}
	return m, nil
}

func (m *Maintenance) Close() error {
	if m.idx != nil {
		return m.idx.Close()
	}
	return nil
}

// expectedSegments lists every segment relpath the index/manifest knows
// about.
func (m *Maintenance) expectedSegments() ([]string, error) {
	if m.idx != nil {
		return m.idx.DistinctFiles()
	}
	files := make([]string, 0, len(m.mf.Rows))
	for _, row := range m.mf.Rows {
		files = append(files, row.File)
	}
	return files, nil
}

// actualSegments walks root for files that look like segments: anything
// whose name does not end in a reserved sidecar suffix and is not one of
// the dataset's own control files.
func (m *Maintenance) actualSegments() ([]string, error) {
	var files []string
	err := filepath.Walk(m.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".archive" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return err
		}
		if isControlFile(rel) || isSidecar(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, arkerrs.NewIoError(err, "walk dataset directory").WithPath(m.root)
	}
	return files, nil
}

func isControlFile(rel string) bool {
	switch rel {
	case "config", "index.sqlite", "lock", "needs-check-do-not-pack", "summary", "MANIFEST":
		return true
	}
	return strings.HasSuffix(rel, ".sequence")
}

func isSidecar(rel string) bool {
	return strings.HasSuffix(rel, ".metadata") || strings.HasSuffix(rel, ".summary") ||
		strings.HasSuffix(rel, ".gz.idx")
}

// reftimeWindowFor returns the [begin, end] reftime window recorded for
// relpath.
func (m *Maintenance) reftimeWindowFor(relpath string) (begin, end string, err error) {
	if m.mf != nil {
		for _, row := range m.mf.Rows {
			if row.File == relpath {
				return row.StartTime, row.EndTime, nil
			}
		}
		return "", "", nil
	}

	rows, err := m.idx.QueryByReftime("", "")
	if err != nil {
		return "", "", err
	}
	for _, row := range rows {
		if row.File != relpath {
			continue
		}
		if begin == "" || row.ReftimeBegin < begin {
			begin = row.ReftimeBegin
		}
		if end == "" || row.ReftimeEnd > end {
			end = row.ReftimeEnd
		}
	}
	return begin, end, nil
}

// permissiveValidator accepts any bytes: message-format validation is an
// external scanner's responsibility (spec.md §1's Non-goals); Checkers
// still enforce size/overlap invariants without it.
type permissiveValidator struct{}

func (permissiveValidator) Validate([]byte) error { return nil }

// Check classifies every expected and actual segment per spec.md §4.10's
// table. quick skips the Checker's deep per-record validation pass.
func (m *Maintenance) Check(quick bool) ([]SegmentStatus, error) {
	expected, err := m.expectedSegments()
	if err != nil {
		return nil, err
	}
	actual, err := m.actualSegments()
	if err != nil {
		return nil, err
	}

	expectedSet := mapset.NewSet(expected...)
	actualSet := mapset.NewSet(actual...)

	var out []SegmentStatus
	now := time.Now().UTC()

	for _, relpath := range expected {
		begin, end, err := m.reftimeWindowFor(relpath)
		if err != nil {
			return nil, err
		}

		if !actualSet.Contains(relpath) {
			out = append(out, SegmentStatus{Relpath: relpath, State: segment.StateDeleted, Begin: begin, End: end})
			continue
		}

		state, err := m.checkOne(relpath, quick)
		if err != nil {
			return nil, err
		}
		state |= m.ageState(end, now)

		if m.idx != nil {
			n, err := m.idx.TombstoneCount(relpath)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				state |= segment.StatePack
			}
		}

		out = append(out, SegmentStatus{Relpath: relpath, State: state, Begin: begin, End: end})
	}

	for relpath := range actualSet.Difference(expectedSet).Iter() {
		out = append(out, SegmentStatus{Relpath: relpath, State: segment.StateUnaligned})
	}

	return out, nil
}

func (m *Maintenance) ageState(reftimeEnd string, now time.Time) segment.State {
	if reftimeEnd == "" {
		return 0
	}
	end, err := time.Parse(time.RFC3339, reftimeEnd)
	if err != nil {
		return 0
	}
	ageDays := int(now.Sub(end).Hours() / 24)

	var s segment.State
	if m.cfg.DeleteAge > 0 && ageDays >= m.cfg.DeleteAge {
		s |= segment.StateDeleteAge
	} else if m.cfg.ArchiveAge > 0 && ageDays >= m.cfg.ArchiveAge {
		s |= segment.StateArchiveAge
	}
	return s
}

func (m *Maintenance) checkOne(relpath string, quick bool) (segment.State, error) {
	abspath := filepath.Join(m.root, relpath)
	kind := segment.Detect(abspath, m.cfg.Format)

	var validator segment.Validator = permissiveValidator{}
	checker, err := segment.OpenChecker(kind, relpath, abspath, m.cfg.Format, validator)
	if err != nil {
		// Kinds without a dedicated Checker (tar/zip/gz) are treated as OK:
		// they are sealed/compressed read-only containers, never rewritten
		// in place by repack.
		return segment.StateOK, nil
	}

	expectedRows, err := m.expectedRecordsFor(relpath)
	if err != nil {
		return 0, err
	}

	state, err := checker.Check(noopReporter{}, expectedRows, quick)
	if err != nil {
		return 0, err
	}

	if m.mtimeOutOfOrder(abspath) {
		state |= segment.StateDirty
	}

	return state, nil
}

type noopReporter struct{}

func (noopReporter) Report(relpath, action string) {}

// expectedRecordsFor returns the (offset, size, checksum) of every live
// record a Checker should find in relpath. The checksum travels with the
// record (metadata.Source.Checksum, set at append time) so Checker.Check
// can catch a segment whose bytes are the right size and shape but wrong
// content, not just truncated or torn (spec.md §4.10).
func (m *Maintenance) expectedRecordsFor(relpath string) ([]segment.ExpectedRecord, error) {
	if m.idx != nil {
		rows, err := m.idx.QueryByReftime("", "")
		if err != nil {
			return nil, err
		}
		var out []segment.ExpectedRecord
		for _, row := range rows {
			if row.File != relpath {
				continue
			}
			er := segment.ExpectedRecord{Offset: row.Offset, Size: row.Size}
			if rec, err := metadata.DecodeRecord(row.SerializedMD); err == nil {
				er.Checksum = rec.Source.Checksum
			}
			out = append(out, er)
		}
		return out, nil
	}

	cachePath := filepath.Join(m.root, relpath+".metadata")
	data, err := os.ReadFile(cachePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, arkerrs.NewIoError(err, "read metadata cache").WithPath(cachePath)
	}
	records, err := ReadMetadataCache(data)
	if err != nil {
		return nil, err
	}
	out := make([]segment.ExpectedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, segment.ExpectedRecord{Offset: rec.Source.Offset, Size: rec.Source.Size, Checksum: rec.Source.Checksum})
	}
	return out, nil
}

// mtimeOutOfOrder reports whether abspath's mtime is newer than its
// `.metadata`/`.summary` sidecars, spec.md §3 invariant 3's TO_RESCAN
// trigger. Missing sidecars (never rescanned yet) count as out of order.
func (m *Maintenance) mtimeOutOfOrder(abspath string) bool {
	segInfo, err := os.Stat(abspath)
	if err != nil {
		return false
	}
	for _, suffix := range []string{".metadata", ".summary"} {
		info, err := os.Stat(abspath + suffix)
		if err != nil {
			return true
		}
		if segInfo.ModTime().After(info.ModTime()) {
			return true
		}
	}
	return false
}

// Repack performs the remediation spec.md §4.10 describes, in order:
// rescan, pack, archive, delete, deindex orphans, rebuild summary cache.
// write=false only logs what would happen.
func (m *Maintenance) Repack(statuses []SegmentStatus, write bool) (*Report, error) {
	rp := &Report{}
	summaryChanged := false

	for _, st := range statuses {
		if st.State.Has(segment.StateDirty) || st.State.Has(segment.StateCorrupted) {
			if err := m.rescan(st.Relpath, write, rp); err != nil {
				return rp, err
			}
			summaryChanged = true
		}
	}

	for _, st := range statuses {
		if st.State.Has(segment.StatePack) {
			if err := m.pack(st.Relpath, write, rp); err != nil {
				return rp, err
			}
			summaryChanged = true
		}
	}

	for _, st := range statuses {
		if st.State.Has(segment.StateUnaligned) {
			rp.Report(st.Relpath, "TO_INDEX (unaligned segment, needs external rescan)")
			continue
		}
		if st.State.Has(segment.StateArchiveAge) {
			if err := m.archive(st.Relpath, write, rp); err != nil {
				return rp, err
			}
			summaryChanged = true
			continue
		}
		if st.State.Has(segment.StateDeleteAge) {
			if err := m.delete(st.Relpath, write, rp); err != nil {
				return rp, err
			}
			summaryChanged = true
			continue
		}
		if st.State.Has(segment.StateDeleted) {
			if err := m.deindexOrphan(st.Relpath, write, rp); err != nil {
				return rp, err
			}
		}
	}

	if summaryChanged && write {
		if err := m.rebuildSummaryCache(); err != nil {
			return rp, err
		}
	}

	return rp, nil
}

// rescan regenerates `.metadata`/`.summary` sidecars for relpath from the
// index's own rows (the engine has no format scanner of its own; rescan
// here reconciles sidecars against what is already indexed rather than
// re-deriving records from raw bytes).
func (m *Maintenance) rescan(relpath string, write bool, rp *Report) error {
	rp.Rescanned++
	rp.Report(relpath, "rescan")
	if !write {
		return nil
	}

	records, err := m.recordsFor(relpath)
	if err != nil {
		return err
	}

	s := summary.New()
	for _, rec := range records {
		s.Add(rec, rec.Source.Size)
	}

	abspath := filepath.Join(m.root, relpath)
	if err := os.WriteFile(abspath+".metadata", WriteMetadataCache(records), 0o644); err != nil {
		return arkerrs.NewIoError(err, "write metadata cache").WithPath(abspath + ".metadata")
	}
	if err := os.WriteFile(abspath+".summary", summary.Encode(s), 0o644); err != nil {
		return arkerrs.NewIoError(err, "write summary cache").WithPath(abspath + ".summary")
	}
	return nil
}

func (m *Maintenance) recordsFor(relpath string) ([]*metadata.Record, error) {
	if m.idx != nil {
		rows, err := m.idx.QueryByReftime("", "")
		if err != nil {
			return nil, err
		}
		var out []*metadata.Record
		for _, row := range rows {
			if row.File == relpath {
				rec, err := metadata.DecodeRecord(row.SerializedMD)
				if err != nil {
					return nil, err
				}
				out = append(out, rec)
			}
		}
		return out, nil
	}

	cachePath := filepath.Join(m.root, relpath+".metadata")
	data, err := os.ReadFile(cachePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ReadMetadataCache(data)
}

// pack rewrites relpath to omit tombstoned byte ranges, updating every
// live row's offset and purging the tombstones (spec.md §4.10 step 2:
// "rewrite segment omitting tombstoned offsets, adjust index offsets
// atomically (rename new segment over old after successful index
// swap)"). Only concat segments support in-place packing this way: dir
// segments drop a member file outright instead of needing a byte-range
// rewrite, and sealed/compressed kinds are never rewritten in place.
func (m *Maintenance) pack(relpath string, write bool, rp *Report) error {
	rp.Packed++
	rp.Report(relpath, "pack")
	if !write || m.idx == nil {
		return nil
	}

	abspath := filepath.Join(m.root, relpath)
	kind := segment.Detect(abspath, m.cfg.Format)
	if kind != segment.KindConcat {
		m.log.Warnw("pack skipped: tombstoned rows only reclaimed on concat segments", "relpath", relpath, "kind", kind.String())
		return nil
	}

	rows, err := m.idx.RowsForFile(relpath)
	if err != nil {
		return err
	}

	known := make([]segment.ExpectedRecord, 0, len(rows))
	for _, row := range rows {
		known = append(known, segment.ExpectedRecord{Offset: row.Offset, Size: row.Size})
	}

	reader, err := segment.OpenConcatReader(relpath, abspath, known)
	if err != nil {
		return err
	}
	defer reader.Close()

	tmpPath := abspath + ".repack-tmp"
	writer, err := segment.OpenConcatWriter(relpath, tmpPath, true)
	if err != nil {
		return err
	}

	offsets := make(map[int64]int64, len(rows))
	var reclaimed int64
	for _, row := range rows {
		if row.Deleted {
			reclaimed += row.Size
			continue
		}
		data, err := reader.Read(segment.Blob{Relpath: relpath, Offset: row.Offset, Size: row.Size})
		if err != nil {
			writer.RollbackNothrow()
			return err
		}
		blob, err := writer.Append(data)
		if err != nil {
			writer.RollbackNothrow()
			return err
		}
		offsets[row.ID] = blob.Offset
	}

	if err := writer.Commit(); err != nil {
		return err
	}

	if err := m.idx.RewriteOffsets(relpath, offsets); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, abspath); err != nil {
		return arkerrs.NewIoError(err, "swap packed segment into place").WithPath(abspath)
	}

	rp.BytesReclaimed += reclaimed
	return nil
}

// archive moves relpath and its sidecars under .archive/last/ and
// deindexes it from the live dataset.
func (m *Maintenance) archive(relpath string, write bool, rp *Report) error {
	rp.Archived++
	rp.Report(relpath, "archive")
	if !write {
		return nil
	}

	archiveDir := filepath.Join(m.root, ".archive", "last")
	if err := os.MkdirAll(filepath.Dir(filepath.Join(archiveDir, relpath)), 0o755); err != nil {
		return arkerrs.NewIoError(err, "create archive directory").WithPath(archiveDir)
	}

	src := filepath.Join(m.root, relpath)
	dst := filepath.Join(archiveDir, relpath)
	for _, suffix := range []string{"", ".metadata", ".summary"} {
		if _, err := os.Stat(src + suffix); err != nil {
			continue
		}
		if err := os.Rename(src+suffix, dst+suffix); err != nil {
			return arkerrs.NewIoError(err, "move segment to archive").WithPath(src + suffix)
		}
	}

	begin, end, err := m.reftimeWindowFor(relpath)
	if err != nil {
		return err
	}
	archiveManifest, err := manifest.Load(filepath.Join(archiveDir, "MANIFEST"))
	if err != nil {
		return err
	}
	info, _ := os.Stat(dst)
	var mtime int64
	if info != nil {
		mtime = info.ModTime().Unix()
	}
	archiveManifest.Upsert(manifest.Row{File: relpath, Mtime: mtime, StartTime: begin, EndTime: end})
	if err := archiveManifest.Save(filepath.Join(archiveDir, "MANIFEST")); err != nil {
		return err
	}

	return m.deindex(relpath)
}

// delete removes relpath and its sidecars and deindexes it.
func (m *Maintenance) delete(relpath string, write bool, rp *Report) error {
	rp.Deleted++
	rp.Report(relpath, "delete")
	if !write {
		return nil
	}

	abspath := filepath.Join(m.root, relpath)
	if info, err := os.Stat(abspath); err == nil {
		rp.BytesReclaimed += info.Size()
	}
	for _, suffix := range []string{"", ".metadata", ".summary"} {
		if err := os.RemoveAll(abspath + suffix); err != nil {
			return arkerrs.NewIoError(err, "delete segment").WithPath(abspath + suffix)
		}
	}

	return m.deindex(relpath)
}

// deindexOrphan removes index/manifest rows for a segment that no longer
// exists on disk (State DELETED).
func (m *Maintenance) deindexOrphan(relpath string, write bool, rp *Report) error {
	rp.Report(relpath, "deindex (segment missing)")
	if !write {
		return nil
	}
	return m.deindex(relpath)
}

func (m *Maintenance) deindex(relpath string) error {
	if m.idx != nil {
		return m.idx.DeindexFile(relpath)
	}
	m.mf.Remove(relpath)
	return m.mf.Save(m.mfPath)
}

// rebuildSummaryCache merges every segment's `.summary` into the
// dataset-level `summary` file (spec.md §4.10 step 6, §9's caching note).
func (m *Maintenance) rebuildSummaryCache() error {
	expected, err := m.expectedSegments()
	if err != nil {
		return err
	}

	out := summary.New()
	for _, relpath := range expected {
		path := filepath.Join(m.root, relpath+".summary")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return arkerrs.NewIoError(err, "read segment summary").WithPath(path)
		}
		sig, payload, err := metadata.ReadBundleHeader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if sig != metadata.SigSummary {
			continue
		}
		segSummary, err := summary.Decode(payload)
		if err != nil {
			return err
		}
		out.Merge(segSummary)
	}

	path := filepath.Join(m.root, "summary")
	if err := os.WriteFile(path, summary.Encode(out), 0o644); err != nil {
		return arkerrs.NewIoError(err, "write dataset summary cache").WithPath(path)
	}
	return nil
}

package dataset

import (
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/dsindex"
	"github.com/arkimet/dsengine/manifest"
	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/segment"
	"github.com/arkimet/dsengine/summary"
)

// Result is one emitted record from a query: Data is populated only when
// the query asked to inline bytes (spec.md §4.8 step 2c), since Source
// itself only ever carries a byte range, never the bytes.
type Result struct {
	Record *metadata.Record
	Data   []byte
}

// Reader is one dataset's query path: candidate segment enumeration,
// residual matcher evaluation, optional byte inlining, sorting, and
// summary aggregation (spec.md §4.8).
type Reader struct {
	cfg *config.Dataset
	root string
	idx  *dsindex.Index     // read-only, ondisk2
	mf   *manifest.Manifest // simple
	log  *zap.SugaredLogger
}

// OpenReader opens a read-only Reader for the dataset at root.
func OpenReader(cfg *config.Dataset, root string, log *zap.SugaredLogger) (*Reader, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Reader{cfg: cfg, root: root, log: log}

	switch cfg.Type {
	case config.TypeOndisk2:
		idx, err := dsindex.Open(filepath.Join(root, "index.sqlite"), true)
		if err != nil {
			return nil, err
		}
		r.idx = idx
	case config.TypeSimple:
		mf, err := manifest.Load(filepath.Join(root, "MANIFEST"))
		if err != nil {
			return nil, err
		}
		r.mf = mf
	default:
		return nil, arkerrs.NewConfigError(nil, "reader unsupported for dataset type "+string(cfg.Type)).WithKey("type")
	}
	return r, nil
}

// Close releases the reader's index connection, if any.
func (r *Reader) Close() error {
	if r.idx != nil {
		return r.idx.Close()
	}
	return nil
}

// reftimeBounds renders a matcher's date_extremes as the string bounds
// dsindex.QueryByReftime and manifest.Intersecting expect.
func reftimeBounds(m *matcher.Matcher) (begin, end string) {
	iv, ok := m.DateExtremes()
	if !ok {
		return "", ""
	}
	if iv.Begin != nil {
		begin = iv.Begin.String()
	}
	if iv.End != nil {
		end = iv.End.String()
	}
	return begin, end
}

// recordsForFile returns every record stored in relpath, read back from
// the `.metadata` side-car (simple datasets only; ondisk2 candidates are
// decoded once up front by candidateRecords, since their rows all come
// from a single SQL query).
func (r *Reader) recordsForFile(relpath string) ([]*metadata.Record, error) {
	cachePath := filepath.Join(r.root, relpath+".metadata")
	data, err := os.ReadFile(cachePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, arkerrs.NewIoError(err, "read metadata cache").WithPath(cachePath)
	}
	return ReadMetadataCache(data)
}

// candidateFiles enumerates segment relpaths whose window could contain a
// match for m, in ascending order (spec.md §4.8 step 2).
func (r *Reader) candidateFiles(m *matcher.Matcher) ([]string, error) {
	begin, end := reftimeBounds(m)

	if r.idx != nil {
		rows, err := r.idx.QueryByReftime(begin, end)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var files []string
		for _, row := range rows {
			if !seen[row.File] {
				seen[row.File] = true
				files = append(files, row.File)
			}
		}
		sort.Strings(files)
		return files, nil
	}

	rows := r.mf.Intersecting(begin, end)
	files := make([]string, 0, len(rows))
	for _, row := range rows {
		files = append(files, row.File)
	}
	sort.Strings(files)
	return files, nil
}

// candidateRecords groups every row matching m's date extremes by file,
// decoding each stored blob exactly once (ondisk2 only: a single SQL
// query feeds every candidate file instead of re-querying per file).
func (r *Reader) candidateRecords(m *matcher.Matcher) (map[string][]*metadata.Record, error) {
	begin, end := reftimeBounds(m)
	rows, err := r.idx.QueryByReftime(begin, end)
	if err != nil {
		return nil, err
	}
	byFile := make(map[string][]*metadata.Record)
	for _, row := range rows {
		rec, err := metadata.DecodeRecord(row.SerializedMD)
		if err != nil {
			return nil, err
		}
		byFile[row.File] = append(byFile[row.File], rec)
	}
	return byFile, nil
}

// inlineData reads the raw bytes for rec's Source out of its segment.
func (r *Reader) inlineData(rec *metadata.Record) ([]byte, error) {
	src := rec.Source
	abspath := filepath.Join(r.root, src.Relpath)
	kind := segment.Detect(abspath, r.cfg.Format)
	reader, err := segment.OpenReader(kind, src.Relpath, abspath, r.cfg.Format, []segment.ExpectedRecord{{Offset: src.Offset, Size: src.Size}})
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.Read(segment.Blob{Relpath: src.Relpath, Offset: src.Offset, Size: src.Size})
}

// QueryData implements spec.md §4.8's query_data: expands nothing itself
// (alias expansion happens at parse time, matcher/parse.go), enumerates
// candidate segments in reftime order, evaluates the residual matcher
// against each full record, optionally inlines bytes, feeds through
// sorter, and emits to dest. dest returning false cancels the query.
func (r *Reader) QueryData(m *matcher.Matcher, withData bool, sorter *Sorter, dest func(Result) bool) error {
	if sorter == nil {
		sorter, _ = ParseSorter("")
	}

	files, err := r.candidateFiles(m)
	if err != nil {
		return err
	}

	var byFile map[string][]*metadata.Record
	if r.idx != nil {
		byFile, err = r.candidateRecords(m)
		if err != nil {
			return err
		}
	}

	emit := func(rec *metadata.Record) bool {
		var data []byte
		if withData {
			var err error
			data, err = r.inlineData(rec)
			if err != nil {
				r.log.Warnw("inline data failed", "relpath", rec.Source.Relpath, "error", err)
				return true
			}
		}
		return dest(Result{Record: rec, Data: data})
	}

	for _, relpath := range files {
		var records []*metadata.Record
		if r.idx != nil {
			records = byFile[relpath]
		} else {
			records, err = r.recordsForFile(relpath)
			if err != nil {
				return err
			}
		}
		for _, rec := range records {
			if !m.Matches(rec) {
				continue
			}
			if !sorter.Feed(rec, emit) {
				return arkerrs.NewCancelledError()
			}
		}
		if sorter.period == PeriodNone {
			if !sorter.Flush(emit) {
				return arkerrs.NewCancelledError()
			}
		}
	}
	if !sorter.Flush(emit) {
		return arkerrs.NewCancelledError()
	}
	return nil
}

// QuerySummary implements spec.md §4.8's query_summary: per candidate
// segment, aggregate matching records into a Summary. It always
// aggregates from the records; it does not read the dataset-level
// `summary` cache, fresh or not.
func (r *Reader) QuerySummary(m *matcher.Matcher) (*summary.Summary, error) {
	files, err := r.candidateFiles(m)
	if err != nil {
		return nil, err
	}

	var byFile map[string][]*metadata.Record
	if r.idx != nil {
		byFile, err = r.candidateRecords(m)
		if err != nil {
			return nil, err
		}
	}

	out := summary.New()
	for _, relpath := range files {
		var records []*metadata.Record
		if r.idx != nil {
			records = byFile[relpath]
		} else {
			records, err = r.recordsForFile(relpath)
			if err != nil {
				return nil, err
			}
		}
		for _, rec := range records {
			if !m.Matches(rec) {
				continue
			}
			out.Add(rec, rec.Source.Size)
		}
	}
	return out, nil
}

package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/dsindex"
	"github.com/arkimet/dsengine/manifest"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/segment"
)

// pendingEntry is one record waiting to be folded into the index/manifest
// on Commit (spec.md §4.7's "pending metadata buffer stores (md,
// new_source) pairs"). indexWrite is nil for simple datasets; for ondisk2
// datasets it is the staged mutation Commit applies inside its single
// index transaction.
type pendingEntry struct {
	record      *metadata.Record
	relpath     string
	blob        segment.Blob
	fingerprint string
	reftimeRow  manifest.Row
	indexWrite  *dsindex.PendingWrite
}

// Writer is one dataset's append path: it maps each incoming record to a
// segment via the step function, applies the replace policy, and buffers
// the committed Blob placement until Commit drains it into the index (or
// manifest, for simple datasets) and the touched segment writers.
type Writer struct {
	cfg    *config.Dataset
	root   string
	idx    *dsindex.Index   // nil for simple datasets
	mf     *manifest.Manifest // nil for ondisk2 datasets
	mfPath string

	segWriters map[string]segment.Writer
	segKinds   map[string]segment.Kind

	pending []pendingEntry
	log     *zap.SugaredLogger
}

// OpenWriter opens a Writer for the dataset rooted at root, per cfg. For
// ondisk2 datasets it opens (creating) the SQL index; for simple datasets
// it loads the MANIFEST.
func OpenWriter(cfg *config.Dataset, root string, log *zap.SugaredLogger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if HasNeedsCheck(root) {
		return nil, arkerrs.NewIndexBusyError(nil, "dataset has a needs-check-do-not-pack sentinel")
	}
	w := &Writer{
		cfg:        cfg,
		root:       root,
		segWriters: make(map[string]segment.Writer),
		segKinds:   make(map[string]segment.Kind),
		log:        log,
	}

	switch cfg.Type {
	case config.TypeOndisk2:
		idx, err := dsindex.Open(filepath.Join(root, "index.sqlite"), false)
		if err != nil {
			return nil, err
		}
		w.idx = idx
	case config.TypeSimple:
		w.mfPath = filepath.Join(root, "MANIFEST")
		mf, err := manifest.Load(w.mfPath)
		if err != nil {
			return nil, err
		}
		w.mf = mf
	default:
		return nil, arkerrs.NewConfigError(nil, fmt.Sprintf("writer unsupported for dataset type %q", cfg.Type)).WithKey("type")
	}

	w.log.Infow("dataset writer opened", "dataset", cfg.Name, "type", cfg.Type, "root", root)
	return w, nil
}

// segmentWriter returns the cached writer for relpath, opening it if this
// is the first append into that step window this session (spec.md §4.7
// step 2: "opens or reuses a segment writer ... one cached per active step
// window").
func (w *Writer) segmentWriter(relpath string) (segment.Writer, error) {
	if sw, ok := w.segWriters[relpath]; ok {
		return sw, nil
	}

	abspath := filepath.Join(w.root, relpath)
	kind := segment.Detect(abspath, w.cfg.Format)
	segmentsLayout := w.cfg.Segments
	if segmentsLayout == config.SegmentsDir {
		kind = segment.KindDir
	}

	if err := os.MkdirAll(filepath.Dir(abspath), 0o755); err != nil {
		return nil, arkerrs.NewIoError(err, "create segment directory").WithPath(abspath)
	}

	sw, err := segment.OpenWriter(kind, relpath, abspath, w.cfg.Format, true)
	if err != nil {
		return nil, err
	}
	w.segWriters[relpath] = sw
	w.segKinds[relpath] = kind
	return sw, nil
}

// Append writes data (the record's raw encoded message bytes) into the
// segment its reftime maps to, applies the replace policy against any
// existing record with the same fingerprint, and buffers the result for
// Commit. Append sets rec.Source's offset, size and checksum to the new
// placement as soon as the bytes are written, before Commit; a later
// failure in the same Append, or a Rollback, does not restore the
// previous source.
func (w *Writer) Append(rec *metadata.Record, data []byte, usn int64) (dsindex.AcquireResult, error) {
	if rec.Reftime.Begin == nil {
		return dsindex.AcquireError, arkerrs.NewValidatorError(nil, "record has no reftime").WithFormat(w.cfg.Format)
	}

	relpathBase, err := Relpath(w.cfg.Step, *rec.Reftime.Begin)
	if err != nil {
		return dsindex.AcquireError, err
	}
	relpath := SegmentPath(w.cfg.Step, relpathBase, w.cfg.Name, w.cfg.Format)

	fingerprint := rec.Fingerprint(w.cfg.Unique)

	policy := replacePolicy(w.cfg.Replace)
	if w.idx != nil {
		// Dry-run the policy before writing bytes, so a rejected duplicate
		// never touches the segment (spec.md §4.7's ACQ_ERROR_DUPLICATE path
		// "skip write").
		if policy == dsindex.ReplaceNo {
			exists, err := w.idx.HasFingerprint(fingerprint)
			if err != nil {
				return dsindex.AcquireError, err
			}
			if exists {
				return dsindex.AcquireErrorDuplicate, nil
			}
		}
	}

	sw, err := w.segmentWriter(relpath)
	if err != nil {
		return dsindex.AcquireError, err
	}

	blob, err := sw.Append(data)
	if err != nil {
		return dsindex.AcquireError, err
	}

	reftimeBegin := rec.Reftime.Begin.String()
	reftimeEnd := ""
	if rec.Reftime.End != nil {
		reftimeEnd = rec.Reftime.End.String()
	}

	entry := pendingEntry{
		record:      rec,
		relpath:     relpath,
		blob:        blob,
		fingerprint: fingerprint,
		reftimeRow: manifest.Row{
			File:      relpath,
			StartTime: reftimeBegin,
			EndTime:   reftimeEnd,
		},
	}

	rec.Source = rec.Source.WithOffsetSize(blob.Offset, blob.Size)
	rec.Source.Checksum = xxh3.Hash(data)

	if w.idx != nil {
		// Stage the index mutation only; it is applied, along with every
		// other record staged this session, inside the single transaction
		// Commit runs after every touched segment has fsynced (spec.md §4.5,
		// §5's "committing the SQL transaction after all segment writes
		// fsync").
		encoded := metadata.EncodeRecord(rec)
		res, pw, err := w.idx.StageRecord(relpath, blob.Offset, blob.Size, fingerprint, reftimeBegin, reftimeEnd, usn, encoded, policy)
		if err != nil {
			return dsindex.AcquireError, err
		}
		if res != dsindex.AcquireOK {
			return res, nil
		}
		entry.indexWrite = pw
	}

	w.pending = append(w.pending, entry)
	return dsindex.AcquireOK, nil
}

func replacePolicy(r config.Replace) dsindex.ReplacePolicy {
	switch r {
	case config.ReplaceYes:
		return dsindex.ReplaceYes
	case config.ReplaceUSN:
		return dsindex.ReplaceUSN
	default:
		return dsindex.ReplaceNo
	}
}

// Commit finalizes every touched segment writer, then — for ondisk2
// datasets — applies every record staged this session inside one SQL
// transaction, and for simple datasets rewrites the MANIFEST. The segment
// fsync happens first, so a crash between the two leaves an index with no
// row for the new bytes (nothing to observe them by) rather than a row
// pointing at data that isn't durable yet; a crash after the segment fsync
// but before the index commits leaves the segment larger than the index
// records, which the next check marks DIRTY (spec.md §4.7, §5's
// "committing the SQL transaction after all segment writes fsync"). Repack
// then rescans the segment, which regenerates its sidecars from the index;
// it does not truncate the trailing bytes.
func (w *Writer) Commit() error {
	for relpath, sw := range w.segWriters {
		if err := sw.Commit(); err != nil {
			return arkerrs.NewSegmentError(err, "commit segment").WithRelpath(relpath)
		}
	}

	if w.idx != nil {
		writes := make([]*dsindex.PendingWrite, 0, len(w.pending))
		for _, p := range w.pending {
			if p.indexWrite != nil {
				writes = append(writes, p.indexWrite)
			}
		}
		if err := w.idx.ApplyPending(writes); err != nil {
			return err
		}
	}

	if w.mf != nil {
		for _, p := range w.pending {
			w.mf.Upsert(p.reftimeRow)
		}
		if err := w.mf.Save(w.mfPath); err != nil {
			return err
		}
	}

	w.pending = nil
	w.segWriters = make(map[string]segment.Writer)
	w.segKinds = make(map[string]segment.Kind)
	return nil
}

// Rollback discards every pending record and rolls back every segment
// writer touched this session (spec.md §4.7: "all pending metadata are
// dropped and all segment writers rollback"). Index mutations need no
// separate undo here: Append only ever stages them in memory, so
// discarding w.pending without calling ApplyPending is itself the rollback.
func (w *Writer) Rollback() error {
	var firstErr error
	for relpath, sw := range w.segWriters {
		if err := sw.Rollback(); err != nil && firstErr == nil {
			firstErr = arkerrs.NewSegmentError(err, "rollback segment").WithRelpath(relpath)
		}
	}
	w.pending = nil
	w.segWriters = make(map[string]segment.Writer)
	w.segKinds = make(map[string]segment.Kind)
	return firstErr
}

// RollbackNothrow best-efforts Rollback and logs failures instead of
// returning them, for use from defer/cleanup paths (spec.md §4.4).
func (w *Writer) RollbackNothrow() {
	if err := w.Rollback(); err != nil {
		w.log.Warnw("rollback failed", "dataset", w.cfg.Name, "error", err)
	}
}

// Close releases the writer's index connection, if any.
func (w *Writer) Close() error {
	if w.idx != nil {
		return w.idx.Close()
	}
	return nil
}

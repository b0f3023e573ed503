// Package dispatch routes incoming records to the dataset whose matcher
// claims them (spec.md §4.9), grounded on the teacher's request-routing
// shape in core/db.go's single-writer dispatch loop.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/dataset"
	"github.com/arkimet/dsengine/dsindex"
	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
)

// Outcome is one of the dispatcher outcome codes exposed to callers
// (spec.md §4.9, §4.7).
type Outcome int

const (
	DispOK Outcome = iota
	DispDuplicateError
	DispError
	DispNotWritten
)

func (o Outcome) String() string {
	switch o {
	case DispOK:
		return "DISP_OK"
	case DispDuplicateError:
		return "DISP_DUPLICATE_ERROR"
	case DispError:
		return "DISP_ERROR"
	case DispNotWritten:
		return "DISP_NOTWRITTEN"
	default:
		return "DISP_UNKNOWN"
	}
}

// Route pairs one target dataset's writer with the matcher that selects
// records for it. Routes are evaluated in the order given; the first
// match wins (spec.md §4.9 step 2-3).
type Route struct {
	Name    string
	Matcher *matcher.Matcher
	Writer  *dataset.Writer
}

// Dispatcher holds the configured routes plus the error and duplicates
// sink datasets (spec.md §4.9's "configured with a list of (dataset,
// matcher) pairs plus one or more error datasets and a duplicates
// dataset").
type Dispatcher struct {
	routes     []Route
	errorDs    []*dataset.Writer
	duplicates *dataset.Writer
	log        *zap.SugaredLogger
}

// New builds a Dispatcher. errorDatasets may be empty (records with no
// matching route are then DISP_NOTWRITTEN instead of DISP_ERROR).
// duplicatesDataset may be nil (duplicate outcomes are then reported
// without a copy being archived anywhere).
func New(routes []Route, errorDatasets []*dataset.Writer, duplicatesDataset *dataset.Writer, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{routes: routes, errorDs: errorDatasets, duplicates: duplicatesDataset, log: log}
}

// matchingRoutes returns every route whose matcher accepts rec, in
// configured order.
func (d *Dispatcher) matchingRoutes(rec *metadata.Record) []Route {
	var matches []Route
	for _, r := range d.routes {
		if r.Matcher == nil || r.Matcher.Matches(rec) {
			matches = append(matches, r)
		}
	}
	return matches
}

// Dispatch routes rec (whose raw bytes are data) to the matching
// dataset's writer, applying the outcome mapping of spec.md §4.9 steps
// 2-7. It never returns an error for a per-record routing/duplicate/write
// failure; those all surface as an Outcome. It returns a non-nil error
// only for conditions that should abort the whole batch (Io or
// IndexCorrupt, per spec.md's "per-record errors ... do not abort the
// batch unless Io or IndexCorrupt").
func (d *Dispatcher) Dispatch(rec *metadata.Record, data []byte, usn int64) (Outcome, error) {
	matches := d.matchingRoutes(rec)

	if len(matches) == 0 {
		return d.routeToError(rec, data, usn)
	}

	chosen := matches[0]

	if len(matches) > 1 {
		// Several datasets claim the record; the first wins and the record
		// gets one note per other matching dataset. Nothing is written to
		// the error datasets for the ambiguity.
		for _, extra := range matches[1:] {
			rec.AddNote(metadata.Note{Text: "dispatch: also matched dataset " + extra.Name})
		}
	}

	res, err := chosen.Writer.Append(rec, data, usn)
	if err != nil {
		if arkerrs.IsFatal(err) {
			return DispError, err
		}
		d.log.Warnw("dispatch append failed", "dataset", chosen.Name, "error", err)
		return d.routeToError(rec, data, usn)
	}

	switch res {
	case dsindex.AcquireOK:
		return DispOK, nil
	case dsindex.AcquireErrorDuplicate:
		return d.routeToDuplicates(rec, data, usn)
	default:
		return d.routeToError(rec, data, usn)
	}
}

func (d *Dispatcher) routeToError(rec *metadata.Record, data []byte, usn int64) (Outcome, error) {
	for _, ew := range d.errorDs {
		res, err := ew.Append(rec, data, usn)
		if err != nil {
			if arkerrs.IsFatal(err) {
				return DispError, err
			}
			continue
		}
		if res == dsindex.AcquireOK {
			return DispError, nil
		}
	}
	rec.AddNote(metadata.Note{Text: "dispatch: no dataset accepted this record"})
	return DispNotWritten, nil
}

func (d *Dispatcher) routeToDuplicates(rec *metadata.Record, data []byte, usn int64) (Outcome, error) {
	if d.duplicates == nil {
		return DispDuplicateError, nil
	}
	if _, err := d.duplicates.Append(rec, data, usn); err != nil && arkerrs.IsFatal(err) {
		return DispError, err
	}
	return DispDuplicateError, nil
}

// Batch dispatches every record in one source file's scan as a single
// import transaction: every touched writer is committed only once all
// records have been dispatched (spec.md §4.9's "batches commit per source
// file"). Writers are committed one after another; see Commit for what a
// failure part-way leaves behind.
type Batch struct {
	d       *Dispatcher
	results []Outcome
}

// NewBatch starts a batch against d.
func (d *Dispatcher) NewBatch() *Batch {
	return &Batch{d: d}
}

// Add dispatches one record into the batch.
func (b *Batch) Add(rec *metadata.Record, data []byte, usn int64) (Outcome, error) {
	res, err := b.d.Dispatch(rec, data, usn)
	if err != nil {
		return res, err
	}
	b.results = append(b.results, res)
	return res, nil
}

// touchedWriters collects every writer a batch could plausibly have
// touched, deduplicated but in a fixed, config-derived order: routes
// first, then error datasets, then the duplicates dataset.
func (b *Batch) touchedWriters() []*dataset.Writer {
	seen := make(map[*dataset.Writer]bool)
	var out []*dataset.Writer
	add := func(w *dataset.Writer) {
		if w == nil || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, w)
	}
	for _, r := range b.d.routes {
		add(r.Writer)
	}
	for _, ew := range b.d.errorDs {
		add(ew)
	}
	add(b.d.duplicates)
	return out
}

// Commit commits every writer touched during the batch, in
// touchedWriters order. When one writer's commit fails, every writer is
// rolled back: this discards the pending records of the failing writer
// and of the writers not yet committed, while writers that committed
// before the failure keep their committed records.
func (b *Batch) Commit() error {
	writers := b.touchedWriters()
	for _, w := range writers {
		if err := w.Commit(); err != nil {
			for _, rw := range writers {
				rw.RollbackNothrow()
			}
			return err
		}
	}
	return nil
}

// Rollback discards every writer touched during the batch.
func (b *Batch) Rollback() {
	for _, w := range b.touchedWriters() {
		w.RollbackNothrow()
	}
}

// Results returns the outcome recorded for each record added to the
// batch, in dispatch order.
func (b *Batch) Results() []Outcome {
	return b.results
}

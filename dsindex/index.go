// Package dsindex implements the ondisk2 SQL-backed index of spec.md §4.5:
// a persistent mapping from a record's unique fingerprint to its
// (segment, offset, size), with reftime range columns for query
// acceleration. Grounded on the pack's SQLite-backed storage engines
// (other_examples/.../kk-code-lab-seglake's engine.go) using
// modernc.org/sqlite, a pure-Go driver, in place of the more common cgo
// sqlite3 binding.
package dsindex

import (
	"database/sql"
	"fmt"

	"github.com/arkimet/dsengine/arkerrs"
	_ "modernc.org/sqlite"
)

// AcquireResult mirrors the original's WriterAcquireResult (arki/defs.h)
// and spec.md §4.7's replace-policy outcomes.
type AcquireResult int

const (
	AcquireOK AcquireResult = iota
	AcquireErrorDuplicate
	AcquireError
)

func (r AcquireResult) String() string {
	switch r {
	case AcquireOK:
		return "ACQ_OK"
	case AcquireErrorDuplicate:
		return "ACQ_ERROR_DUPLICATE"
	default:
		return "ACQ_ERROR"
	}
}

// ReplacePolicy is the dataset's configured `replace` setting (spec.md §6).
type ReplacePolicy int

const (
	ReplaceNo ReplacePolicy = iota
	ReplaceYes
	ReplaceUSN
)

// Row is one live or tombstoned index entry.
type Row struct {
	ID            int64
	File          string
	Offset        int64
	Size          int64
	Fingerprint   string
	ReftimeBegin  string
	ReftimeEnd    string
	USN           int64
	Deleted       bool
	SerializedMD  []byte
}

// Index is the per-dataset SQLite index. One Index owns its *sql.DB; the
// writer holds the only read-write connection (spec.md §5's "The index
// connection is owned by the writer; readers get their own read-only
// connection").
type Index struct {
	db       *sql.DB
	readOnly bool
}

// Open opens (creating if needed) the index database at path and applies
// the pragmas recommended by spec.md §4.5: read_uncommitted and WAL
// journaling.
func Open(path string, readOnly bool) (*Index, error) {
	dsn := path
	if readOnly {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open index database").WithPath(path)
	}

	idx := &Index{db: db, readOnly: readOnly}
	if !readOnly {
		if err := idx.ensureSchema(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`PRAGMA read_uncommitted = 1`); err != nil {
		db.Close()
		return nil, arkerrs.NewIndexCorruptError(err, "set read_uncommitted pragma")
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, arkerrs.NewIndexCorruptError(err, "set journal_mode pragma")
	}

	return idx, nil
}

func (idx *Index) ensureSchema() error {
	_, err := idx.db.Exec(`
CREATE TABLE IF NOT EXISTS md (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL,
	offset INTEGER NOT NULL,
	size INTEGER NOT NULL,
	fingerprint TEXT NOT NULL,
	reftime_begin TEXT,
	reftime_end TEXT,
	usn INTEGER,
	deleted INTEGER NOT NULL DEFAULT 0,
	blob BLOB
);
CREATE UNIQUE INDEX IF NOT EXISTS md_fingerprint_live ON md(fingerprint) WHERE deleted = 0;
CREATE INDEX IF NOT EXISTS md_reftime ON md(reftime_begin, reftime_end);
CREATE TABLE IF NOT EXISTS files (
	file TEXT PRIMARY KEY,
	mtime INTEGER NOT NULL
);
`)
	if err != nil {
		return arkerrs.NewIndexCorruptError(err, "create index schema")
	}
	return nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// PendingWrite is one record's index mutation, resolved against the
// policy (spec.md §4.7) but not yet applied. StageRecord produces it by
// reading the index's last-committed state; ApplyPending writes a whole
// batch of them inside one transaction. tombstoneID is 0 for a fresh
// insert, otherwise the id of the live row this write replaces.
type PendingWrite struct {
	file, fingerprint, reftimeBegin, reftimeEnd string
	offset, size, usn                           int64
	blob                                        []byte
	tombstoneID                                 int64
}

// StageRecord evaluates the replace policy of spec.md §4.7 for one record
// against the index's currently committed rows, without writing anything.
// The caller buffers the returned PendingWrite (nil on ACQ_ERROR_DUPLICATE)
// and applies it later, together with the rest of its batch, via
// ApplyPending — so every record a dataset.Writer stages between two
// Commit calls lands in the same transaction (spec.md §4.5: "writes are
// wrapped in a single transaction per commit() of a dataset writer").
func (idx *Index) StageRecord(file string, offset, size int64, fingerprint, reftimeBegin, reftimeEnd string, usn int64, blob []byte, policy ReplacePolicy) (AcquireResult, *PendingWrite, error) {
	var existingID, existingUSN int64
	err := idx.db.QueryRow(`SELECT id, usn FROM md WHERE fingerprint = ? AND deleted = 0`, fingerprint).Scan(&existingID, &existingUSN)

	switch {
	case err == sql.ErrNoRows:
		return AcquireOK, &PendingWrite{
			file: file, offset: offset, size: size, fingerprint: fingerprint,
			reftimeBegin: reftimeBegin, reftimeEnd: reftimeEnd, usn: usn, blob: blob,
		}, nil

	case err != nil:
		return AcquireError, nil, arkerrs.NewIndexCorruptError(err, "query existing fingerprint")
	}

	switch policy {
	case ReplaceNo:
		return AcquireErrorDuplicate, nil, nil

	case ReplaceYes:
		return AcquireOK, &PendingWrite{
			file: file, offset: offset, size: size, fingerprint: fingerprint,
			reftimeBegin: reftimeBegin, reftimeEnd: reftimeEnd, usn: usn, blob: blob,
			tombstoneID: existingID,
		}, nil

	case ReplaceUSN:
		if usn < existingUSN {
			return AcquireErrorDuplicate, nil, nil
		}
		return AcquireOK, &PendingWrite{
			file: file, offset: offset, size: size, fingerprint: fingerprint,
			reftimeBegin: reftimeBegin, reftimeEnd: reftimeEnd, usn: usn, blob: blob,
			tombstoneID: existingID,
		}, nil
	}

	return AcquireError, nil, fmt.Errorf("unknown replace policy %d", policy)
}

// ApplyPending commits every staged write in a single transaction: the
// writer-commit boundary of spec.md §4.5 and §5's "all appends ... plus
// the index update appear atomic to concurrent readers". Called after
// every touched segment writer has fsynced, so a reader never observes an
// index row for bytes that aren't durable yet.
func (idx *Index) ApplyPending(writes []*PendingWrite) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := idx.db.Begin()
	if err != nil {
		return arkerrs.NewIndexCorruptError(err, "begin commit transaction")
	}
	for _, w := range writes {
		if w.tombstoneID != 0 {
			if _, err := tx.Exec(`UPDATE md SET deleted = 1 WHERE id = ?`, w.tombstoneID); err != nil {
				_ = tx.Rollback()
				return arkerrs.NewIndexCorruptError(err, "tombstone old index row")
			}
		}
		if _, err := tx.Exec(`INSERT INTO md (file, offset, size, fingerprint, reftime_begin, reftime_end, usn, blob) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.file, w.offset, w.size, w.fingerprint, w.reftimeBegin, w.reftimeEnd, w.usn, w.blob); err != nil {
			_ = tx.Rollback()
			return arkerrs.NewIndexCorruptError(err, "insert index row")
		}
	}
	if err := tx.Commit(); err != nil {
		return arkerrs.NewIndexCorruptError(err, "commit index transaction")
	}
	return nil
}

// IndexRecord stages and immediately applies one record's index mutation
// in its own transaction. It exists for callers that own their own commit
// boundary outside of a dataset.Writer session (direct index manipulation,
// tests); dataset.Writer itself uses StageRecord/ApplyPending so a whole
// Append/Commit session shares one transaction.
func (idx *Index) IndexRecord(file string, offset, size int64, fingerprint, reftimeBegin, reftimeEnd string, usn int64, blob []byte, policy ReplacePolicy) (AcquireResult, error) {
	res, pw, err := idx.StageRecord(file, offset, size, fingerprint, reftimeBegin, reftimeEnd, usn, blob, policy)
	if err != nil || pw == nil {
		return res, err
	}
	if err := idx.ApplyPending([]*PendingWrite{pw}); err != nil {
		return AcquireError, err
	}
	return res, nil
}

// QueryByReftime returns live rows whose reftime range intersects
// [begin, end) (either bound may be empty for open). Predicates that
// cannot be translated to SQL are left to the caller to evaluate against
// each row's stored blob (spec.md §4.5).
func (idx *Index) QueryByReftime(begin, end string) ([]Row, error) {
	query := `SELECT id, file, offset, size, fingerprint, reftime_begin, reftime_end, usn, deleted, blob FROM md WHERE deleted = 0`
	var args []any
	if begin != "" {
		query += ` AND (reftime_end IS NULL OR reftime_end > ?)`
		args = append(args, begin)
	}
	if end != "" {
		query += ` AND (reftime_begin IS NULL OR reftime_begin < ?)`
		args = append(args, end)
	}
	query += ` ORDER BY reftime_begin ASC`

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, arkerrs.NewIndexCorruptError(err, "query by reftime")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var deletedInt int
		if err := rows.Scan(&r.ID, &r.File, &r.Offset, &r.Size, &r.Fingerprint, &r.ReftimeBegin, &r.ReftimeEnd, &r.USN, &deletedInt, &r.SerializedMD); err != nil {
			return nil, arkerrs.NewIndexCorruptError(err, "scan index row")
		}
		r.Deleted = deletedInt != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasFingerprint reports whether a live row already carries fingerprint,
// used by the writer to short-circuit a ReplaceNo duplicate before
// spending a segment append on it.
func (idx *Index) HasFingerprint(fingerprint string) (bool, error) {
	var id int64
	err := idx.db.QueryRow(`SELECT id FROM md WHERE fingerprint = ? AND deleted = 0`, fingerprint).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, arkerrs.NewIndexCorruptError(err, "query fingerprint existence")
	}
	return true, nil
}

// DistinctFiles returns every segment relpath with at least one live row,
// used by maintenance to enumerate the segments the index expects.
func (idx *Index) DistinctFiles() ([]string, error) {
	rows, err := idx.db.Query(`SELECT DISTINCT file FROM md WHERE deleted = 0`)
	if err != nil {
		return nil, arkerrs.NewIndexCorruptError(err, "query distinct files")
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, arkerrs.NewIndexCorruptError(err, "scan file")
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeindexFile removes every row (live or tombstoned) for file, used by
// maintenance when the file no longer exists (spec.md §4.10's DELETED
// handling).
func (idx *Index) DeindexFile(file string) error {
	if _, err := idx.db.Exec(`DELETE FROM md WHERE file = ?`, file); err != nil {
		return arkerrs.NewIndexCorruptError(err, "deindex file")
	}
	return nil
}

// PurgeTombstones physically removes rows already marked deleted for
// file. Repack's pack step does not call it: RewriteOffsets purges the
// tombstones inside its own transaction.
func (idx *Index) PurgeTombstones(file string) error {
	if _, err := idx.db.Exec(`DELETE FROM md WHERE file = ? AND deleted = 1`, file); err != nil {
		return arkerrs.NewIndexCorruptError(err, "purge tombstones")
	}
	return nil
}

// TombstoneCount reports how many deleted rows file still carries,
// used by maintenance to classify a segment as TO_PACK (spec.md §4.10:
// "index rows present, file contains holes from deletes").
func (idx *Index) TombstoneCount(file string) (int, error) {
	var n int
	err := idx.db.QueryRow(`SELECT COUNT(*) FROM md WHERE file = ? AND deleted = 1`, file).Scan(&n)
	if err != nil {
		return 0, arkerrs.NewIndexCorruptError(err, "count tombstones")
	}
	return n, nil
}

// RowsForFile returns every row for file, live and tombstoned, ordered by
// offset, used by repack's pack step to decide what survives a rewrite.
func (idx *Index) RowsForFile(file string) ([]Row, error) {
	rows, err := idx.db.Query(`SELECT id, file, offset, size, fingerprint, reftime_begin, reftime_end, usn, deleted, blob FROM md WHERE file = ? ORDER BY offset ASC`, file)
	if err != nil {
		return nil, arkerrs.NewIndexCorruptError(err, "query rows for file")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var deletedInt int
		if err := rows.Scan(&r.ID, &r.File, &r.Offset, &r.Size, &r.Fingerprint, &r.ReftimeBegin, &r.ReftimeEnd, &r.USN, &deletedInt, &r.SerializedMD); err != nil {
			return nil, arkerrs.NewIndexCorruptError(err, "scan index row")
		}
		r.Deleted = deletedInt != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RewriteOffsets updates each live row's offset (keyed by its id) in a
// single transaction and purges every tombstoned row for file, used by
// repack's pack step after it has rewritten the segment to a new byte
// layout with the tombstoned ranges omitted.
func (idx *Index) RewriteOffsets(file string, offsets map[int64]int64) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return arkerrs.NewIndexCorruptError(err, "begin rewrite-offsets transaction")
	}

	for id, off := range offsets {
		if _, err := tx.Exec(`UPDATE md SET offset = ? WHERE id = ?`, off, id); err != nil {
			_ = tx.Rollback()
			return arkerrs.NewIndexCorruptError(err, "update row offset")
		}
	}
	if _, err := tx.Exec(`DELETE FROM md WHERE file = ? AND deleted = 1`, file); err != nil {
		_ = tx.Rollback()
		return arkerrs.NewIndexCorruptError(err, "purge tombstones")
	}

	if err := tx.Commit(); err != nil {
		return arkerrs.NewIndexCorruptError(err, "commit rewrite-offsets transaction")
	}
	return nil
}

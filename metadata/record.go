package metadata

import (
	"sort"
	"strings"

	"github.com/arkimet/dsengine/timeutil"
)

// Record is the ordered set of typed items describing one message, plus its
// notes and exactly one Source (spec.md §3).
type Record struct {
	Items   []Item
	Reftime timeutil.Interval
	Notes   []Note
	Source  Source
}

// NewRecord returns an empty record with an undefined reftime.
func NewRecord() *Record {
	return &Record{}
}

// Set replaces any existing item of the same TypeCode with it (metadata
// items are a set keyed by type code: a record carries at most one ORIGIN,
// one PRODUCT, and so on).
func (r *Record) Set(it Item) {
	for i := range r.Items {
		if r.Items[i].Code == it.Code {
			r.Items[i] = it
			return
		}
	}
	r.Items = append(r.Items, it)
	sort.Slice(r.Items, func(i, j int) bool { return r.Items[i].Compare(r.Items[j]) < 0 })
}

// Get returns the item of the given type code, if present.
func (r *Record) Get(code TypeCode) (Item, bool) {
	for _, it := range r.Items {
		if it.Code == code {
			return it, true
		}
	}
	return Item{}, false
}

// AddNote appends a provenance note.
func (r *Record) AddNote(n Note) {
	r.Notes = append(r.Notes, n)
}

// Fingerprint computes the ordered tuple of unique-field values identifying
// this record, per the dataset's configured `unique` fields (spec.md §3,
// "Invariants" #1). "reftime" is handled specially since it is not an Item.
func (r *Record) Fingerprint(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		if strings.EqualFold(f, "reftime") {
			if r.Reftime.Begin != nil {
				b.WriteString(r.Reftime.Begin.String())
			}
			continue
		}
		code, ok := typeCodeByName(f)
		if !ok {
			continue
		}
		if it, found := r.Get(code); found {
			b.WriteString(it.String())
		}
	}
	return b.String()
}

func typeCodeByName(name string) (TypeCode, bool) {
	for code, n := range typeCodeNames {
		if strings.EqualFold(n, name) {
			return code, true
		}
	}
	return TypeInvalid, false
}

// TypeCodeByName is the exported form of typeCodeByName, used by the
// matcher package to resolve type names in predicate clauses.
func TypeCodeByName(name string) (TypeCode, bool) {
	return typeCodeByName(name)
}

// Equal reports deep value equality between two records (used by
// round-trip tests, spec.md §8).
func (r *Record) Equal(o *Record) bool {
	if len(r.Items) != len(o.Items) {
		return false
	}
	for i := range r.Items {
		if r.Items[i] != o.Items[i] {
			return false
		}
	}
	if len(r.Notes) != len(o.Notes) {
		return false
	}
	for i := range r.Notes {
		if r.Notes[i] != o.Notes[i] {
			return false
		}
	}
	if r.Source != o.Source {
		return false
	}
	rb, ro := r.Reftime.Begin, o.Reftime.Begin
	if (rb == nil) != (ro == nil) {
		return false
	}
	if rb != nil && !rb.Equal(*ro) {
		return false
	}
	re, oe := r.Reftime.End, o.Reftime.End
	if (re == nil) != (oe == nil) {
		return false
	}
	if re != nil && !re.Equal(*oe) {
		return false
	}
	return true
}

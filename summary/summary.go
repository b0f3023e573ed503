// Package summary implements the dataset-level and per-segment summary
// aggregation of spec.md §4.10/§2: grouping records by every item except
// reftime into distinct "summary items", each carrying a count, total byte
// size, and reftime extremes. Grounded on the metadata package's Item value
// type (interning.go, item.go) for the grouping key and on
// metadata/codec_binary.go's bundle framing for serialization under the SU
// signature.
package summary

import (
	"sort"
	"strings"

	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

// Stats is the aggregate recorded against one distinct combination of
// non-reftime items: how many records share it, their total encoded size,
// and the reftime interval spanning all of them.
type Stats struct {
	Count   int64
	Size    int64
	Reftime timeutil.Interval
}

// merge folds o into s, extending the reftime span and summing count/size.
func (s *Stats) merge(o Stats) {
	if s.Count == 0 {
		s.Reftime = o.Reftime
	} else {
		s.Reftime = s.Reftime.Extend(o.Reftime)
	}
	s.Count += o.Count
	s.Size += o.Size
}

// itemKey is the canonical string form of a record's non-reftime items,
// used to group distinct summary entries (spec.md glossary SUMMARYITEM).
func itemKey(items []metadata.Item) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(it.Code.String())
		b.WriteByte(':')
		b.WriteString(it.String())
	}
	return b.String()
}

// entry is one distinct summary row: the items that define the group, and
// its accumulated Stats.
type entry struct {
	items []metadata.Item
	stats Stats
}

// Summary is a set of distinct summary entries, keyed internally by
// itemKey. Iteration order (Entries) is the items' natural sort order so
// two value-identical summaries serialize identically.
type Summary struct {
	byKey map[string]*entry
}

// New returns an empty Summary.
func New() *Summary {
	return &Summary{byKey: make(map[string]*entry)}
}

// Add folds one record's contribution into the summary: size is the
// record's encoded byte length (used to accumulate Stats.Size).
func (s *Summary) Add(r *metadata.Record, size int64) {
	key := itemKey(r.Items)
	e, ok := s.byKey[key]
	if !ok {
		e = &entry{items: append([]metadata.Item(nil), r.Items...)}
		s.byKey[key] = e
	}
	e.stats.merge(Stats{Count: 1, Size: size, Reftime: r.Reftime})
}

// AddStats merges an already-aggregated entry (items, stats) into s,
// combining with any existing entry under the same key. Used when merging
// two summaries (e.g. per-segment summaries into a dataset-level one).
func (s *Summary) AddStats(items []metadata.Item, stats Stats) {
	key := itemKey(items)
	e, ok := s.byKey[key]
	if !ok {
		e = &entry{items: append([]metadata.Item(nil), items...)}
		s.byKey[key] = e
	}
	e.stats.merge(stats)
}

// Merge folds every entry of o into s.
func (s *Summary) Merge(o *Summary) {
	for _, e := range o.byKey {
		s.AddStats(e.items, e.stats)
	}
}

// Entries returns every (items, stats) pair, sorted by item key for
// deterministic iteration.
func (s *Summary) Entries() []struct {
	Items []metadata.Item
	Stats Stats
} {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]struct {
		Items []metadata.Item
		Stats Stats
	}, 0, len(keys))
	for _, k := range keys {
		e := s.byKey[k]
		out = append(out, struct {
			Items []metadata.Item
			Stats Stats
		}{Items: e.items, Stats: e.stats})
	}
	return out
}

// Count returns the total record count across every entry.
func (s *Summary) Count() int64 {
	var n int64
	for _, e := range s.byKey {
		n += e.stats.Count
	}
	return n
}

// Size returns the total byte size across every entry.
func (s *Summary) Size() int64 {
	var n int64
	for _, e := range s.byKey {
		n += e.stats.Size
	}
	return n
}

// DateExtremes returns the interval spanning every entry's reftime, and
// false if the summary is empty.
func (s *Summary) DateExtremes() (timeutil.Interval, bool) {
	var iv timeutil.Interval
	first := true
	for _, e := range s.byKey {
		if first {
			iv = e.stats.Reftime
			first = false
			continue
		}
		iv = iv.Extend(e.stats.Reftime)
	}
	return iv, !first
}

// matchesItems reports whether a synthetic record built from items (and
// carrying the entry's reftime extremes) satisfies m. Used by Filter to
// evaluate a matcher against an aggregated entry rather than a raw record.
func matchesItems(m *matcher.Matcher, items []metadata.Item, reftime timeutil.Interval) bool {
	rec := metadata.NewRecord()
	for _, it := range items {
		rec.Set(it)
	}
	rec.Reftime = reftime
	return m.Matches(rec)
}

// Filter returns a new Summary containing only the entries matching m.
// Reftime-constrained matchers are evaluated against each entry's own
// stats.Reftime span rather than a single instant, since a summary entry
// represents every record sharing those items.
func (s *Summary) Filter(m *matcher.Matcher) *Summary {
	out := New()
	for _, e := range s.byKey {
		if matchesItems(m, e.items, e.stats.Reftime) {
			out.AddStats(e.items, e.stats)
		}
	}
	return out
}

package matcher

import (
	"strings"

	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

// TypePredicate is the disjunction of atoms that must hold for one type
// code (spec.md §4.3): "a conjunction of per-type predicates; each
// per-type predicate is a disjunction of style-specific atoms".
type TypePredicate struct {
	Code  metadata.TypeCode
	Atoms []Atom
}

func (p TypePredicate) matches(it metadata.Item) bool {
	for _, a := range p.Atoms {
		if a.Matches(it) {
			return true
		}
	}
	return false
}

// Matcher is a conjunction of TypePredicates plus an optional disjunction of
// reftime interval clauses.
type Matcher struct {
	Predicates []TypePredicate
	Reftime    []*reftimeAtom
}

// New builds an empty matcher (matches everything).
func New() *Matcher {
	return &Matcher{}
}

// WithPredicate adds a per-type predicate, replacing any existing one for
// the same type code (a matcher carries at most one predicate per type,
// mirroring how records carry at most one item per type).
func (m *Matcher) WithPredicate(code metadata.TypeCode, atoms ...Atom) *Matcher {
	for i := range m.Predicates {
		if m.Predicates[i].Code == code {
			m.Predicates[i].Atoms = atoms
			return m
		}
	}
	m.Predicates = append(m.Predicates, TypePredicate{Code: code, Atoms: atoms})
	return m
}

// WithReftime adds a reftime interval disjunct.
func (m *Matcher) WithReftime(iv timeutil.Interval, raw string) *Matcher {
	m.Reftime = append(m.Reftime, &reftimeAtom{interval: iv, raw: raw})
	return m
}

// Matches reports whether rec satisfies every per-type predicate and, if
// present, at least one reftime clause (spec.md §4.3's matches(record)).
func (m *Matcher) Matches(rec *metadata.Record) bool {
	for _, p := range m.Predicates {
		it, ok := rec.Get(p.Code)
		if !ok {
			return false
		}
		if !p.matches(it) {
			return false
		}
	}

	if len(m.Reftime) == 0 {
		return true
	}
	for _, r := range m.Reftime {
		if r.matchesInterval(rec.Reftime) {
			return true
		}
	}
	return false
}

// DateExtremes returns the smallest interval containing every reftime
// clause (earliest begin, latest end), or ok=false if the matcher carries
// no reftime constraint at all. Used to prune segments by their
// [start_time, end_time] window before opening them (spec.md §4.3, §4.8).
func (m *Matcher) DateExtremes() (timeutil.Interval, bool) {
	if len(m.Reftime) == 0 {
		return timeutil.Interval{}, false
	}
	extremes := m.Reftime[0].interval
	for _, r := range m.Reftime[1:] {
		extremes = extremes.Extend(r.interval)
	}
	return extremes, true
}

// ToStringExpanded renders a canonical form with all aliases already
// expanded, for equivalence checks across peers (spec.md §4.3).
func (m *Matcher) ToStringExpanded() string {
	var parts []string
	for _, p := range m.Predicates {
		var atoms []string
		for _, a := range p.Atoms {
			atoms = append(atoms, a.String())
		}
		parts = append(parts, p.Code.String()+":"+strings.Join(atoms, " or "))
	}
	if len(m.Reftime) > 0 {
		var atoms []string
		for _, r := range m.Reftime {
			atoms = append(atoms, r.String())
		}
		parts = append(parts, "reftime:"+strings.Join(atoms, " or "))
	}
	return strings.Join(parts, ";")
}

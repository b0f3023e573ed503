// Package matcher implements arkimet's per-type predicate matcher: a
// conjunction across type codes of a disjunction of style-specific atoms
// (spec.md §4.3). The matcher only needs what the engine needs from the
// alias/matcher grammar — full grammar parsing is an external concern — so
// Parse implements the small subset used by tests and the CLI wrappers,
// not the complete original syntax.
package matcher

import (
	"strings"

	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

// Atom is one style-specific disjunct within a type's predicate.
type Atom interface {
	Matches(it metadata.Item) bool
	String() string
}

// genericAtom matches an Item by style plus a prefix of its scalar fields:
// unset fields (zero-length Components) are wildcards. This generalizes the
// origin/product/level/timerange/area/proddef/quantity/task atoms of
// spec.md §4.3, which all share the same "style,component..." shape.
type genericAtom struct {
	style      string
	components []string
}

// NewAtom builds a style-qualified atom, e.g. NewAtom("GRIB1", "200", "0", "101").
func NewAtom(style string, components ...string) Atom {
	return &genericAtom{style: style, components: components}
}

func (a *genericAtom) Matches(it metadata.Item) bool {
	if !strings.EqualFold(it.Style, a.style) {
		return false
	}
	for i, c := range a.components {
		if c == "" {
			continue
		}
		if it.Field(i) != c {
			return false
		}
	}
	return true
}

func (a *genericAtom) String() string {
	var b strings.Builder
	b.WriteString(a.style)
	for _, c := range a.components {
		b.WriteByte(',')
		b.WriteString(c)
	}
	return b.String()
}

// reftimeAtom is one interval disjunct of a reftime predicate.
type reftimeAtom struct {
	interval timeutil.Interval
	raw      string // canonical text, kept for to_string_expanded
}

func (a *reftimeAtom) matchesInterval(rec timeutil.Interval) bool {
	return a.interval.Intersects(rec)
}

func (a *reftimeAtom) String() string {
	return a.raw
}

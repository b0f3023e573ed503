package metadata

import "strings"

// maxItemFields bounds the scalar fields carried by any one style. Origin's
// widest style (GRIB2) needs 4 (centre, subcentre, process, template); VM2's
// Product needs only 1 (variable id). Using a fixed array (rather than a
// slice) keeps Item comparable with ==, which is what lets the interning
// table (interning.go) use Item as a map key and what gives records a total
// order "for free" via field-by-field comparison.
const maxItemFields = 4

// Item is a single typed, style-discriminated metadata element (spec.md
// §3): "Each typed item has a style ... and style-specific scalar fields.
// Items are value-typed, immutable, comparable". Rather than a deep
// inheritance tree per (type, style) pair, Item is one data-oriented value
// type with a type code, a style discriminator, and a small fixed set of
// scalar fields whose meaning depends on (Code, Style) — the tagged-variant
// shape recommended by spec.md §9's design notes, generalized across types
// instead of duplicated per type.
type Item struct {
	Code   TypeCode
	Style  string
	Fields [maxItemFields]string
}

// NewItem builds an Item, filling fields from the left and leaving unset
// trailing fields as "". Fields beyond maxItemFields are dropped.
func NewItem(code TypeCode, style string, fields ...string) Item {
	it := Item{Code: code, Style: style}
	for i := 0; i < len(fields) && i < maxItemFields; i++ {
		it.Fields[i] = fields[i]
	}
	return it
}

// Compare gives Item a total order: by type code, then style, then fields
// in order. Used to keep a Record's item list canonically sorted so two
// value-identical records compare equal regardless of insertion order.
func (it Item) Compare(o Item) int {
	if it.Code != o.Code {
		if it.Code < o.Code {
			return -1
		}
		return 1
	}
	if it.Style != o.Style {
		return strings.Compare(it.Style, o.Style)
	}
	for i := 0; i < maxItemFields; i++ {
		if it.Fields[i] != o.Fields[i] {
			return strings.Compare(it.Fields[i], o.Fields[i])
		}
	}
	return 0
}

// String renders "style,field1,field2,...", the form used by the text
// codec and by matcher atoms (e.g. "GRIB1,200,0,101").
func (it Item) String() string {
	var b strings.Builder
	b.WriteString(it.Style)
	for _, f := range it.Fields {
		if f == "" {
			break
		}
		b.WriteByte(',')
		b.WriteString(f)
	}
	return b.String()
}

// Field returns the i-th style-specific scalar field, or "" if unset.
func (it Item) Field(i int) string {
	if i < 0 || i >= maxItemFields {
		return ""
	}
	return it.Fields[i]
}

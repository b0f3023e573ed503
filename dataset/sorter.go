package dataset

import (
	"sort"
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/metadata"
)

// Period is the sort-break granularity of spec.md §4.8's sorter syntax
// (`period:order`): records are buffered until the period's truncation of
// their reftime changes, then flushed as one stably-sorted batch.
type Period string

const (
	PeriodYear   Period = "year"
	PeriodMonth  Period = "month"
	PeriodDay    Period = "day"
	PeriodHour   Period = "hour"
	PeriodMinute Period = "minute"
	PeriodNone   Period = "none"
)

// SortField is one `[-]field` component of the order list; Desc reverses
// comparison for that field.
type SortField struct {
	Name string
	Desc bool
}

// Sorter buffers records within one period window and flushes them in
// stable sorted order, keeping memory bounded to one window's worth of
// records rather than the whole query result (spec.md §4.8: "Sorting is
// stable within its period window so streaming remains bounded in
// memory").
type Sorter struct {
	period Period
	fields []SortField

	windowKey string
	buf       []*metadata.Record
}

// ParseSorter parses "period:order", e.g. "day:-reftime,origin". An empty
// string yields a no-op sorter equivalent to "none:" (flush at end of
// segment, keep scan order).
func ParseSorter(text string) (*Sorter, error) {
	if text == "" {
		return &Sorter{period: PeriodNone}, nil
	}

	periodText, orderText, ok := strings.Cut(text, ":")
	if !ok {
		return nil, arkerrs.NewConfigError(nil, "malformed sorter, expected period:order").WithKey("sorter")
	}

	period := Period(periodText)
	switch period {
	case PeriodYear, PeriodMonth, PeriodDay, PeriodHour, PeriodMinute, PeriodNone:
	default:
		return nil, arkerrs.NewConfigError(nil, "unknown sorter period "+periodText).WithKey("sorter")
	}

	var fields []SortField
	if orderText != "" {
		for _, f := range strings.Split(orderText, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			desc := strings.HasPrefix(f, "-")
			fields = append(fields, SortField{Name: strings.TrimPrefix(f, "-"), Desc: desc})
		}
	}

	return &Sorter{period: period, fields: fields}, nil
}

// sortKey renders field, the lexicographically comparable value used for
// ordering: "reftime" compares by the record's begin time string, anything
// else looks up the matching typed item by name.
func sortKey(r *metadata.Record, field string) string {
	if strings.EqualFold(field, "reftime") {
		if r.Reftime.Begin != nil {
			return r.Reftime.Begin.String()
		}
		return ""
	}
	code, ok := metadata.TypeCodeByName(field)
	if !ok {
		return ""
	}
	if it, found := r.Get(code); found {
		return it.String()
	}
	return ""
}

func (s *Sorter) periodKey(r *metadata.Record) string {
	if s.period == PeriodNone || r.Reftime.Begin == nil {
		return ""
	}
	t := *r.Reftime.Begin
	switch s.period {
	case PeriodYear:
		return t.String()[:4]
	case PeriodMonth:
		return t.String()[:7]
	case PeriodDay:
		return t.String()[:10]
	case PeriodHour:
		return t.String()[:13]
	case PeriodMinute:
		return t.String()[:16]
	}
	return ""
}

func (s *Sorter) sortBuffer() {
	if len(s.fields) == 0 {
		return
	}
	sort.SliceStable(s.buf, func(i, j int) bool {
		for _, f := range s.fields {
			ki, kj := sortKey(s.buf[i], f.Name), sortKey(s.buf[j], f.Name)
			if ki == kj {
				continue
			}
			if f.Desc {
				return ki > kj
			}
			return ki < kj
		}
		return false
	})
}

// Feed adds r to the sorter's current window, flushing the prior window
// to emit first if r starts a new one. emit returning false propagates as
// false (query cancellation, spec.md §5).
func (s *Sorter) Feed(r *metadata.Record, emit func(*metadata.Record) bool) bool {
	key := s.periodKey(r)
	if s.buf != nil && key != s.windowKey {
		if !s.Flush(emit) {
			return false
		}
	}
	s.windowKey = key
	s.buf = append(s.buf, r)
	return true
}

// Flush emits every buffered record in sorted order and clears the
// buffer.
func (s *Sorter) Flush(emit func(*metadata.Record) bool) bool {
	s.sortBuffer()
	for _, r := range s.buf {
		if !emit(r) {
			s.buf = nil
			return false
		}
	}
	s.buf = nil
	return true
}

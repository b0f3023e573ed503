package timeutil

// Interval is the half-open range [Begin, End) used throughout the engine
// for reftime windows, segment date extremes, and matcher date_extremes.
// Either bound may be nil to mean "open" (unbounded) on that side.
type Interval struct {
	Begin *Time
	End   *Time
}

func ptr(t Time) *Time { return &t }

// NewInterval builds a closed-open interval from two optional times.
func NewInterval(begin, end *Time) Interval {
	return Interval{Begin: begin, End: end}
}

// Contains reports whether the interval contains the instant t:
// begin <= t && (end absent || t < end).
func (iv Interval) Contains(t Time) bool {
	if iv.Begin != nil && t.Less(*iv.Begin) {
		return false
	}
	if iv.End != nil && !t.Less(*iv.End) {
		return false
	}
	return true
}

// ContainsInterval reports whether iv fully contains o:
// begin<=o.begin && (end absent || (o.end present && o.end<=end)).
func (iv Interval) ContainsInterval(o Interval) bool {
	if iv.Begin != nil {
		if o.Begin == nil || o.Begin.Less(*iv.Begin) {
			return false
		}
	}
	if iv.End != nil {
		if o.End == nil || iv.End.Less(*o.End) {
			return false
		}
	}
	return true
}

// Intersects reports whether iv and o overlap:
// ¬(iv.end present ∧ o.begin present ∧ iv.end<=o.begin) ∧
// ¬(o.end present ∧ iv.begin present ∧ o.end<=iv.begin).
func (iv Interval) Intersects(o Interval) bool {
	if iv.End != nil && o.Begin != nil && iv.End.Compare(*o.Begin) <= 0 {
		return false
	}
	if o.End != nil && iv.Begin != nil && o.End.Compare(*iv.Begin) <= 0 {
		return false
	}
	return true
}

// Intersect returns the half-open intersection of iv and o, or ok=false if
// they are disjoint. On disjoint inputs iv is returned unmodified so the
// caller can detect the failure without losing the original value.
func (iv Interval) Intersect(o Interval) (Interval, bool) {
	if !iv.Intersects(o) {
		return iv, false
	}

	begin := iv.Begin
	if o.Begin != nil && (begin == nil || o.Begin.Compare(*begin) > 0) {
		begin = o.Begin
	}

	end := iv.End
	if o.End != nil && (end == nil || o.End.Compare(*end) < 0) {
		end = o.End
	}

	return Interval{Begin: begin, End: end}, true
}

// Extend returns the smallest interval containing both iv and o. If either
// side is open in one of them, the result is open on that side.
func (iv Interval) Extend(o Interval) Interval {
	var begin *Time
	if iv.Begin != nil && o.Begin != nil {
		b := iv.Begin
		if o.Begin.Compare(*b) < 0 {
			b = o.Begin
		}
		begin = ptr(*b)
	}

	var end *Time
	if iv.End != nil && o.End != nil {
		e := iv.End
		if o.End.Compare(*e) > 0 {
			e = o.End
		}
		end = ptr(*e)
	}

	return Interval{Begin: begin, End: end}
}

// SpansOneWholeMonth reports whether the interval contains at least one
// calendar month boundary pair: there exists a month M such that
// [M.first_day, (M+1).first_day) is fully contained in iv.
func (iv Interval) SpansOneWholeMonth() bool {
	if iv.Begin == nil || iv.End == nil {
		// An open-ended interval necessarily spans infinitely many months,
		// as long as there's at least one representable calendar month.
		return true
	}

	b := *iv.Begin
	// The first candidate month boundary at or after b.
	monthStart := Time{Year: b.Year, Month: b.Month, Day: 1}
	if monthStart.Less(b) {
		monthStart = monthStart.addOneUnit(1)
	}

	monthEnd := monthStart.addOneUnit(1)
	return !monthStart.Less(b) && monthEnd.Compare(*iv.End) <= 0
}

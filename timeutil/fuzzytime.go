package timeutil

import (
	"fmt"

	"github.com/arkimet/dsengine/arkerrs"
)

// Unset marks a FuzzyTime field as a wildcard ("any"), per
// arki/core/fuzzytime.h: "After the first element set to -1, all following
// elements are ignored and assumed to all be -1."
const Unset = -1

// FuzzyTime is a Time with trailing fields possibly wildcarded.
type FuzzyTime struct {
	Year, Month, Day, Hour, Minute, Second int
}

// NewFuzzyTime builds a FuzzyTime, defaulting all trailing arguments not
// supplied to Unset. Mirrors the original's constructor defaults.
func NewFuzzyTime(year int, rest ...int) FuzzyTime {
	ft := FuzzyTime{Year: year, Month: Unset, Day: Unset, Hour: Unset, Minute: Unset, Second: Unset}
	fields := []*int{&ft.Month, &ft.Day, &ft.Hour, &ft.Minute, &ft.Second}
	for i, v := range rest {
		if i >= len(fields) {
			break
		}
		*fields[i] = v
	}
	return ft
}

// Validate checks field ranges, honoring leap years and the hour=24
// midnight convention (spec.md §4.2, scenario 6).
func (ft FuzzyTime) Validate() error {
	if ft.Month == Unset {
		return nil
	}
	if ft.Month < 1 || ft.Month > 12 {
		return arkerrs.NewValidatorError(nil, fmt.Sprintf("month must be between 1 and 12, got %d", ft.Month))
	}

	if ft.Day == Unset {
		return nil
	}
	maxDay := daysInMonth(ft.Year, ft.Month)
	if ft.Day < 1 || ft.Day > maxDay {
		return arkerrs.NewValidatorError(nil, fmt.Sprintf("day must be between 1 and %d", maxDay))
	}

	if ft.Hour == Unset {
		return nil
	}
	if ft.Hour < 0 || ft.Hour > 24 {
		return arkerrs.NewValidatorError(nil, "hour must be between 0 and 24")
	}
	if ft.Hour == 24 {
		if ft.Minute != Unset && ft.Minute != 0 {
			return arkerrs.NewValidatorError(nil, "on hour 24, minute must be zero")
		}
		if ft.Second != Unset && ft.Second != 0 {
			return arkerrs.NewValidatorError(nil, "on hour 24, second must be zero")
		}
		return nil
	}

	if ft.Minute == Unset {
		return nil
	}
	if ft.Minute < 0 || ft.Minute > 59 {
		return arkerrs.NewValidatorError(nil, "minute must be between 0 and 59")
	}

	if ft.Second == Unset {
		return nil
	}
	// 60 is accepted to allow a leap second, per spec.md §4.2.
	if ft.Second < 0 || ft.Second > 60 {
		return arkerrs.NewValidatorError(nil, "second must be between 0 and 60")
	}

	return nil
}

// lowestUnsetUnit returns the index (0=year..5=second) of the first
// wildcarded field, or 6 if the FuzzyTime is fully specified.
func (ft FuzzyTime) lowestUnsetUnit() int {
	vals := []int{ft.Month, ft.Day, ft.Hour, ft.Minute, ft.Second}
	for i, v := range vals {
		if v == Unset {
			return i + 1
		}
	}
	return 6
}

// Lowerbound fills trailing wildcards with their minimum value.
func (ft FuzzyTime) Lowerbound() Time {
	t := Time{Year: ft.Year, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0}
	dst := []*int{&t.Month, &t.Day, &t.Hour, &t.Minute, &t.Second}
	for i, v := range []int{ft.Month, ft.Day, ft.Hour, ft.Minute, ft.Second} {
		if v == Unset {
			break
		}
		*dst[i] = v
	}
	return t
}

// Upperbound returns the lower bound advanced by one tick of the first
// wildcarded field (e.g. "2024-07" -> 2024-08-01T00:00:00), giving the
// exclusive end of the half-open interval this FuzzyTime denotes.
func (ft FuzzyTime) Upperbound() Time {
	lo := ft.Lowerbound()
	unit := ft.lowestUnsetUnit()
	if unit == 6 {
		// Fully specified: the interval is the single instant [t, t+1s).
		return lo.addOneUnit(5)
	}
	return lo.addOneUnit(unit - 1)
}

// Interval lowers the FuzzyTime to its closed-open interval representation.
func (ft FuzzyTime) Interval() Interval {
	lo := ft.Lowerbound()
	hi := ft.Upperbound()
	return Interval{Begin: &lo, End: &hi}
}

// String renders a fixed-width representation with '-' placeholders for
// unset trailing fields, matching arki/core/fuzzytime.cc's to_string().
func (ft FuzzyTime) String() string {
	buf := make([]byte, 0, 19)
	if ft.Year == Unset {
		buf = append(buf, "----"...)
	} else {
		buf = append(buf, []byte(fmt.Sprintf("%04d", ft.Year))...)
	}
	buf = append(buf, '-')
	buf = appendField(buf, ft.Month)
	buf = append(buf, '-')
	buf = appendField(buf, ft.Day)
	buf = append(buf, ' ')
	buf = appendField(buf, ft.Hour)
	buf = append(buf, ':')
	buf = appendField(buf, ft.Minute)
	buf = append(buf, ':')
	buf = appendField(buf, ft.Second)
	return string(buf)
}

func appendField(buf []byte, v int) []byte {
	if v == Unset {
		return append(buf, "--"...)
	}
	return append(buf, []byte(fmt.Sprintf("%02d", v))...)
}

// Package dataset implements the dataset Writer, Reader, and Maintenance
// operations of spec.md §§4.7-4.10: the layer that ties segment, dsindex,
// manifest, and summary together into one addressable dataset. Grounded on
// the teacher's DB type (Epokhe-bitdb/core/db.go): a segment cache keyed by
// name, a manifest-backed open/rollover path, and an addSegment-style
// lazy-open-or-reuse pattern, generalized from "always append to the last
// segment" to "append to the segment the step function names".
package dataset

import (
	"fmt"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/config"
	"github.com/arkimet/dsengine/timeutil"
)

// Relpath computes the segment relative path (without format suffix) that
// reftime belongs to under step, per spec.md §4.7's naming table.
func Relpath(step config.Step, t timeutil.Time) (string, error) {
	switch step {
	case config.StepYearly:
		return fmt.Sprintf("%04d", t.Year), nil
	case config.StepMonthly:
		return fmt.Sprintf("%04d/%02d", t.Year, t.Month), nil
	case config.StepWeekly:
		return fmt.Sprintf("%04d/%02d-%02d", t.Year, t.Month, weekOfMonth(t.Day)), nil
	case config.StepDaily:
		return fmt.Sprintf("%04d/%02d-%02d", t.Year, t.Month, t.Day), nil
	case config.StepSinglefile:
		return "", nil
	default:
		return "", arkerrs.NewConfigError(nil, fmt.Sprintf("unknown step %q", step)).WithKey("step")
	}
}

// weekOfMonth returns the 1-based week-of-month for day, each week being a
// contiguous run of up to 7 calendar days starting on day 1.
func weekOfMonth(day int) int {
	return (day-1)/7 + 1
}

// SegmentPath joins relpath (possibly empty, for singlefile) with name and
// format into the final on-disk relpath, e.g. "2007/07-08.grib1" or, for
// singlefile, "<name>.grib1".
func SegmentPath(step config.Step, relpath, name, format string) string {
	if step == config.StepSinglefile {
		return name + "." + format
	}
	return relpath + "." + format
}

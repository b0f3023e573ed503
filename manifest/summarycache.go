package manifest

import (
	"os"

	"github.com/arkimet/dsengine/arkerrs"
)

// SummaryCacheFresh reports whether the dataset-level `summary` file at
// datasetSummaryPath is still valid: its mtime must be at or after every
// `<seg>.summary` mtime (spec.md §9). A missing or zero-byte dataset
// summary is always stale; zero-byte is the sentinel Invalidate writes.
func SummaryCacheFresh(datasetSummaryPath string, segmentSummaryPaths []string) (bool, error) {
	info, err := os.Stat(datasetSummaryPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, arkerrs.NewIoError(err, "stat dataset summary cache").WithPath(datasetSummaryPath)
	}
	if info.Size() == 0 {
		return false, nil
	}

	for _, p := range segmentSummaryPaths {
		segInfo, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return false, arkerrs.NewIoError(err, "stat segment summary cache").WithPath(p)
		}
		if segInfo.ModTime().After(info.ModTime()) {
			return false, nil
		}
	}
	return true, nil
}

// Invalidate writes a zero-byte dataset summary file, the sentinel
// SummaryCacheFresh treats as always-stale, avoiding a race where a
// deleted cache file briefly looks "not present, so recompute is needed"
// to one reader and "absent, so an empty result is correct" to another.
func Invalidate(datasetSummaryPath string) error {
	if err := os.WriteFile(datasetSummaryPath, nil, 0o644); err != nil {
		return arkerrs.NewIoError(err, "invalidate dataset summary cache").WithPath(datasetSummaryPath)
	}
	return nil
}

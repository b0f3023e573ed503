package dataset

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/arkimet/dsengine/arkerrs"
)

// Lock is the advisory exclusive lock on a dataset's `lock` file (spec.md
// §4.10, §5). Maintenance and Writer do not take it themselves; it is
// held only by whoever calls AcquireLock.
type Lock struct {
	f *os.File
}

// AcquireLock opens (creating if needed) path and takes a non-blocking
// exclusive flock. Contention is reported as arkerrs.IndexError with
// CodeIndexBusy, matching spec.md §4.10's "maintenance fails with BUSY".
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open lock file").WithPath(path)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, arkerrs.NewIndexBusyError(err, "dataset lock held by another process")
	}

	return &Lock{f: f}, nil
}

// Release drops the flock and closes the file.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return arkerrs.NewIoError(err, "unlock dataset lock file")
	}
	return l.f.Close()
}

// NeedsCheckSentinelPath returns the path of the `needs-check-do-not-pack`
// marker (spec.md §4.10). MarkNeedsCheck and ClearNeedsCheck create and
// remove it; Writer and Maintenance call neither, so a crashed writer
// does not leave it behind and Check does not remove it.
func NeedsCheckSentinelPath(root string) string {
	return filepath.Join(root, "needs-check-do-not-pack")
}

// MarkNeedsCheck creates the sentinel.
func MarkNeedsCheck(root string) error {
	path := NeedsCheckSentinelPath(root)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return arkerrs.NewIoError(err, "write needs-check sentinel").WithPath(path)
	}
	return nil
}

// ClearNeedsCheck removes the sentinel, if present.
func ClearNeedsCheck(root string) error {
	path := NeedsCheckSentinelPath(root)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return arkerrs.NewIoError(err, "remove needs-check sentinel").WithPath(path)
	}
	return nil
}

// HasNeedsCheck reports whether the sentinel is present (OpenWriter
// refuses to open a writer while it is, per spec.md §4.10).
func HasNeedsCheck(root string) bool {
	_, err := os.Stat(NeedsCheckSentinelPath(root))
	return err == nil
}

// Package lockfile keeps two pvtools runs of the same kind from racing
// on one node. The lock is advisory and process-scoped; storage-level
// serialization stays with the ZFS/LVM tools themselves.
package lockfile

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a held run lock. Release it when the run ends; the file stays
// behind, only the flock is dropped.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the non-blocking run lock for op (backup, restore) under
// dir. A second caller gets an error immediately instead of queueing
// behind a long stream.
func Acquire(dir, op string) (*Lock, error) {
	path := filepath.Join(dir, "pvtools-"+op+".lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another %s run is active (lock %s held)", op, path)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call on a nil receiver so callers can
// defer it unconditionally.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

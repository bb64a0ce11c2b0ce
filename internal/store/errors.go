package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no record has the given local id.
var ErrNotFound = errors.New("article not found")

// StorageFault reports that the local medium could not be opened or that a
// transaction aborted. The operation it wraps did not take effect.
type StorageFault struct {
	// Op names the failed operation, e.g. "put" or "open".
	Op  string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error {
	return e.Err
}

// fault wraps err as a StorageFault for op, keeping an existing fault as is.
func fault(op string, err error) error {
	if err == nil {
		return nil
	}
	var sf *StorageFault
	if errors.As(err, &sf) {
		return err
	}
	return &StorageFault{Op: op, Err: err}
}

// IsStorageFault reports whether err is or wraps a StorageFault.
func IsStorageFault(err error) bool {
	var sf *StorageFault
	return errors.As(err, &sf)
}

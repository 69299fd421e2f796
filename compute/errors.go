package compute

import "fmt"

// StorageError is returned when the storage collaborator fails during a cycle.
// The cycle's transaction is rolled back when this happens.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

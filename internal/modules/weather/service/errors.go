package service

import "fmt"

// DuplicateBatchError reports a file whose batch collided with records that
// are already stored. Nothing from the file was written.
type DuplicateBatchError struct {
	Station string
	File    string
	Err     error
}

func (e *DuplicateBatchError) Error() string {
	return fmt.Sprintf("duplicate records for station %s in %s", e.Station, e.File)
}

func (e *DuplicateBatchError) Unwrap() error { return e.Err }

// StorageError wraps any store failure that is not a duplicate batch.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

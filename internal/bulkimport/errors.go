package bulkimport

import (
	"errors"
	"fmt"
)

var (
	ErrNoFilePart         = errors.New("no file part")
	ErrNoSelectedFile     = errors.New("no selected file")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrMalformedFile      = errors.New("malformed import file")
	ErrTooManyRecords     = errors.New("too many records for insert")
)

// EntryError ties a failure to one entry of the users list.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("users[%d]: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

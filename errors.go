package zarr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrAlreadyExists = errors.New("object already exists")
	ErrClosed        = errors.New("handle is closed")
	ErrInvalidPath   = errors.New("invalid path")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrWrongKind     = errors.New("object has the wrong kind")
)

// IOError reports a failed create, select, read or write against the store.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

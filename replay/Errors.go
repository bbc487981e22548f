package replay

import "errors"

// TableError implements errors unique to a replay table.
type TableError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *TableError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *TableError) Unwrap() error {
	return e.Err
}

var errClosed = errors.New("table closed")

var errTimeout = errors.New("sampling deadline exceeded")

// IsClosed returns whether an error reports that the replay table was torn
// down while the caller was blocked on it.
func IsClosed(err error) bool {
	if tableErr, ok := err.(*TableError); ok {
		err = tableErr.Err
	}
	return err == errClosed
}

// IsTimeout returns whether an error reports that a deadline expired before
// the rate limiter admitted a sample.
func IsTimeout(err error) bool {
	if tableErr, ok := err.(*TableError); ok {
		err = tableErr.Err
	}
	return err == errTimeout
}

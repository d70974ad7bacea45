package replay

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no value is stored under the requested key.
var ErrNotFound = errors.New("replay: key not found")

// ParseError is returned when stored bytes cannot be read as the requested
// type.
type ParseError struct {
	Key  string
	Kind string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("replay: parse %s as %s: %v", e.Key, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

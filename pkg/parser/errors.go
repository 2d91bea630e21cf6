package parser

import (
	"errors"
	"fmt"
)

// ErrMalformedNumeric is wrapped by every ParseError so callers can match the class
var ErrMalformedNumeric = errors.New("malformed numeric field")

// ParseError describes a field that was present but could not be converted
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedNumeric, e.Err}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an id does not resolve to a record.
var ErrNotFound = errors.New("not found")

type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every input constraint that failed.
type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func Invalid(field, rule, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldViolation{{Field: field, Rule: rule, Message: msg}}}
}

// StoreError wraps a persistence failure (connectivity, driver, constraint).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// AsStoreError leaves nil, NotFound and validation errors untouched and wraps
// everything else.
func AsStoreError(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

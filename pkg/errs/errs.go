// Package errs carries the error kinds shared across layers.
//
// A kind is a sentinel checked with errors.Is; the Error wrapper records the
// operation that failed and, for validation failures, every violation found.
package errs

import (
	"errors"
	"strings"
)

// Error kinds.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

// Error annotates an underlying error with an operation name and a kind.
type Error struct {
	Op      string
	Kind    error
	Err     error
	Details []string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Err != nil && e.Kind != nil && !errors.Is(e.Err, e.Kind):
		b.WriteString(e.Kind.Error())
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	default:
		b.WriteString("unknown error")
	}
	if len(e.Details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Details, "; "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New returns an error of the given kind for op.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap annotates err with op, keeping whatever kind err already carries.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind annotates err with op and tags it with kind.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return New(op, kind)
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Invalid returns a validation error listing every violation.
func Invalid(op string, details ...string) error {
	return &Error{Op: op, Kind: ErrValidation, Details: details}
}

// Details returns the violation list of the first *Error in err's chain that has one.
func Details(err error) []string {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return nil
		}
		if len(e.Details) > 0 {
			return e.Details
		}
		if e.Err == nil {
			return nil
		}
		err = e.Err
	}
	return nil
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

package errkit

import (
	"errors"
	"strings"
)

// multipleErrors is implemented by error values that carry more than one
// underlying error (multiError).
type multipleErrors interface {
	error
	Unwrap() []error
}

var (
	_ error          = (*multiError)(nil)
	_ multipleErrors = (*multiError)(nil)
)

// multiError accumulates the chain of *Error values a WithFields/WithField
// call was derived from, so Is/As can still see the original wrapped errors.
type multiError struct {
	errs []error
}

func (m *multiError) Error() string {
	if m == nil || len(m.errs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(m.errs))
	for _, e := range m.errs {
		parts = append(parts, e.Error())
	}

	return strings.Join(parts, "\n")
}

func (m *multiError) Is(target error) bool {
	if m == nil {
		return false
	}

	for _, e := range m.errs {
		if errors.Is(e, target) {
			return true
		}
	}

	return false
}

func (m *multiError) As(target any) bool {
	if m == nil {
		return false
	}

	for _, e := range m.errs {
		if errors.As(e, target) {
			return true
		}
	}

	return false
}

func (m *multiError) Unwrap() []error {
	if m == nil {
		return nil
	}

	return m.errs
}

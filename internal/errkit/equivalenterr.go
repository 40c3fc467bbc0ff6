package errkit

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
)

var (
	_ error          = (*equivalentError)(nil)
	_ json.Marshaler = (*equivalentError)(nil)
)

type equivalentError struct {
	err         error
	equivalents *multiError
}

// WithEquivalents wraps err and attaches errs as additional targets that
// errors.Is/As against this value will also match — used to make a single
// sentinel answer to several legacy error values that meant the same thing.
func WithEquivalents(err error, errs ...error) error {
	return &equivalentError{
		err:         err,
		equivalents: &multiError{errs: errs},
	}
}

func (e *equivalentError) Error() string {
	msgs := []string{e.err.Error()}
	for _, err := range e.equivalents.errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "\n")
}

func (e *equivalentError) Is(target error) bool {
	if errors.Is(e.err, target) {
		return true
	}
	return e.equivalents.Is(target)
}

func (e *equivalentError) As(target any) bool {
	if target == nil {
		return false
	}
	if reflect.TypeOf(target) == reflect.TypeOf(e) {
		reflect.ValueOf(target).Elem().Set(reflect.ValueOf(e))
		return true
	}
	if errors.As(e.err, target) {
		return true
	}
	return e.equivalents.As(target)
}

func (e *equivalentError) Unwrap() error {
	return e.err
}

func (e *equivalentError) MarshalJSON() ([]byte, error) {
	type jsonError struct {
		Error       json.RawMessage `json:"error"`
		Equivalents json.RawMessage `json:"equivalents,omitempty"`
	}

	errData, err := MarshalError(e.err)
	if err != nil {
		return nil, err
	}

	eqData, err := marshalMultiple(e.equivalents)
	if err != nil {
		return nil, err
	}

	return json.Marshal(jsonError{Error: errData, Equivalents: eqData})
}

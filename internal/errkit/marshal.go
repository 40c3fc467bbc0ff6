package errkit

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// ForceMarshalError serializes any error to JSON, falling back to a minimal
// {msg,type} envelope if the error (or one of its children) can't otherwise
// be marshaled.
func ForceMarshalError(err error) json.RawMessage {
	data, merr := MarshalError(err)
	if merr != nil {
		type jsonMinimalError struct {
			Msg  string `json:"msg,omitempty"`
			Type string `json:"type,omitempty"`
		}
		data, _ = json.Marshal(jsonMinimalError{
			Msg:  err.Error(),
			Type: fmt.Sprintf("%T", err),
		})
	}
	return data
}

func MarshalError(aerr error) ([]byte, error) {
	type jsonError struct {
		Error json.RawMessage `json:"error,omitempty"`
		Type  string          `json:"type,omitempty"`
	}
	type jsonMinimalError struct {
		Msg  string `json:"msg,omitempty"`
		Type string `json:"type,omitempty"`
	}

	switch v := aerr.(type) {
	case nil:
		return json.Marshal(nil)
	case *Error:
		return v.MarshalJSON()
	case multipleErrors:
		return marshalMultiple(v)
	case json.Marshaler:
		data, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonError{Error: data, Type: fmt.Sprintf("%T", v)})
	case encoding.TextMarshaler:
		data, err := v.MarshalText()
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonMinimalError{Msg: string(data), Type: fmt.Sprintf("%T", v)})
	case fmt.Stringer:
		return json.Marshal(jsonMinimalError{Msg: v.String(), Type: fmt.Sprintf("%T", v)})
	default:
		return json.Marshal(jsonMinimalError{Msg: aerr.Error(), Type: fmt.Sprintf("%T", v)})
	}
}

func marshalMultiple(merrs multipleErrors) ([]byte, error) {
	type jsonError struct {
		Error json.RawMessage `json:"error,omitempty"`
		Type  string          `json:"type,omitempty"`
	}

	errs := merrs.Unwrap()
	rawErrs := make([]json.RawMessage, 0, len(errs))
	for _, uerr := range errs {
		data, err := MarshalError(uerr)
		if err != nil {
			return nil, err
		}
		rawErrs = append(rawErrs, data)
	}

	marshalled, err := json.Marshal(rawErrs)
	if err != nil {
		return nil, err
	}

	return json.Marshal(jsonError{Error: marshalled, Type: fmt.Sprintf("%T", merrs)})
}

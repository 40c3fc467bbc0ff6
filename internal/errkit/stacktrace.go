package errkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

type stackTrace struct {
	funcName string
	fileName string
	line     int
}

var (
	_ error          = (*stackTracedError)(nil)
	_ json.Marshaler = (*stackTracedError)(nil)
)

type stackTracedError struct {
	err        error
	stackTrace stackTrace
}

// WithStack wraps err with the caller's file/line, used by Wrap to keep the
// origin of an error even after it's been re-wrapped several times.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	stack, _ := getStackTrace(2)

	return &stackTracedError{
		stackTrace: stack,
		err:        err,
	}
}

func (e *stackTracedError) Error() string {
	return e.err.Error()
}

func (e *stackTracedError) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *stackTracedError) As(target any) bool {
	return errors.As(e.err, target)
}

func (e *stackTracedError) Unwrap() error {
	return e.err
}

func (e *stackTracedError) MarshalJSON() ([]byte, error) {
	type jsonStackTrace struct {
		FuncName string `json:"funcName"`
		FilePos  string `json:"filePos"`
	}
	type jsonError struct {
		Error      json.RawMessage `json:"error"`
		StackTrace jsonStackTrace  `json:"stackTrace,omitempty"`
	}

	errData, err := MarshalError(e.err)
	if err != nil {
		return nil, err
	}

	return json.Marshal(jsonError{
		Error: errData,
		StackTrace: jsonStackTrace{
			FuncName: e.stackTrace.funcName,
			FilePos:  fmt.Sprintf("%s:%d", e.stackTrace.fileName, e.stackTrace.line),
		},
	})
}

func getStackTrace(skip int) (stackTrace, error) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return stackTrace{}, errors.New("failed to retrieve caller information")
	}

	return stackTrace{
		funcName: runtime.FuncForPC(pc).Name(),
		fileName: filepath.Base(file),
		line:     line,
	}, nil
}

package etl

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies a pipeline error. Each stage tags its own errors.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindExtractor     Kind = "extractor"
	KindTransformer   Kind = "transformer"
	KindLoader        Kind = "loader"
	// KindStage is reported for errors that carry no Kind of their own.
	KindStage Kind = "stage"
)

// Error is a tagged pipeline error. Location and Stack point at the
// construction site.
type Error struct {
	Kind     Kind
	Op       string
	Message  string
	Err      error
	Location string
	Stack    string
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Err != nil {
		if e.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: KindLoader}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	loc, stack := caller(3)
	return &Error{
		Kind:     kind,
		Op:       op,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
		Location: loc,
		Stack:    stack,
	}
}

func ConfigurationError(op, format string, args ...any) *Error {
	return newError(KindConfiguration, op, nil, format, args...)
}

func NotFoundError(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, nil, format, args...)
}

func ValidationError(op, format string, args ...any) *Error {
	return newError(KindValidation, op, nil, format, args...)
}

func ExtractorError(op string, err error, format string, args ...any) *Error {
	return newError(KindExtractor, op, err, format, args...)
}

func TransformerError(op string, err error, format string, args ...any) *Error {
	return newError(KindTransformer, op, err, format, args...)
}

func LoaderError(op string, err error, format string, args ...any) *Error {
	return newError(KindLoader, op, err, format, args...)
}

// KindOf returns the Kind of the outermost *Error in err's chain, or KindStage.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStage
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

func caller(skip int) (location, stack string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	first := true
	for {
		f, more := frames.Next()
		if first {
			location = fmt.Sprintf("%s:%d", f.File, f.Line)
			first = false
		}
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return location, sb.String()
}

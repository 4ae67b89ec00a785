// Package pingerr defines the error kinds raised while probing a database.
//
// Kinds are sentinel errors. Concrete errors carry a stack trace from
// github.com/cockroachdb/errors and report their kind through an Is method,
// so both the standard errors.Is and pingerr.Is keep classifying them after
// further wrapping, including inside a go-multierror list:
//
//	err := pingerr.Wrapf(pingerr.ErrBind, cause, "parameter %d", idx)
//	pingerr.Is(err, pingerr.ErrBind) // true
//	pingerr.Is(err, cause)           // true
package pingerr

import (
	"github.com/cockroachdb/errors"
)

// Error kinds.
var (
	// ErrConfiguration reports a malformed task definition. Fatal for the affected task.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection reports that no connection could be obtained.
	ErrConnection = errors.New("connection error")

	// ErrBind reports a type coercion failure or a missing parameter value.
	ErrBind = errors.New("bind error")

	// ErrExecution reports a statement rejected by the database.
	ErrExecution = errors.New("execution error")

	// ErrResolverIO reports an unreadable parameter source.
	ErrResolverIO = errors.New("resolver I/O error")

	// ErrNoCommands reports selection from an empty command list.
	ErrNoCommands = errors.New("no commands to select from")
)

var kinds = []error{ErrConfiguration, ErrConnection, ErrBind, ErrExecution, ErrResolverIO, ErrNoCommands}

// kindError tags cause with kind without changing its message.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string { return e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

// New creates an error of the given kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, cause: errors.NewWithDepth(1, msg)}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind error, format string, args ...interface{}) error {
	return &kindError{kind: kind, cause: errors.NewWithDepthf(1, format, args...)}
}

// Wrapf wraps err with a message and tags it with kind.
// A nil err yields nil.
func Wrapf(kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.WrapWithDepthf(1, err, format, args...)}
}

// KindOf returns the first known kind err is tagged with, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Is reports whether err matches target.
var Is = errors.Is

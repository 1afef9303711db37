package kconfig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an evaluator error. Every user-visible failure in
// the pipeline maps onto exactly one kind, and each kind maps onto a
// distinct process exit code.
type ErrorKind string

const (
	// KindBridge covers failures to build, load or initialize the
	// native Kconfig bridge. Fatal and non-retryable.
	KindBridge ErrorKind = "bridge"

	// KindUnsupportedKernel is raised for kernel versions below the
	// minimum supported release. Fatal.
	KindUnsupportedKernel ErrorKind = "unsupported-kernel"

	// KindUnknownSymbol is raised when a statement names a symbol that
	// does not exist in the parsed Kconfig tree.
	KindUnknownSymbol ErrorKind = "unknown-symbol"

	// KindInvalidValue is raised when a raw value cannot be coerced to
	// the symbol's type or violates a declared range.
	KindInvalidValue ErrorKind = "invalid-value"

	// KindUnmetDependencies is raised when a symbol's visibility is
	// below the desired value because of unmet direct dependencies.
	KindUnmetDependencies ErrorKind = "unmet-dependencies"

	// KindAssignmentRejected is raised when Kconfig refused a value
	// that passed every static check, typically because a reverse
	// dependency lower-bounds the symbol.
	KindAssignmentRejected ErrorKind = "assignment-rejected"

	// KindConflictingAssignment is raised when two explicit assignments
	// pin different values for the same symbol.
	KindConflictingAssignment ErrorKind = "conflicting-assignment"

	// KindAmbiguousChoice is raised when the satisfier finds several
	// equally viable branches and refuses to guess.
	KindAmbiguousChoice ErrorKind = "ambiguous-choice"

	// KindCycle is raised when the satisfier re-enters a symbol that is
	// already being solved.
	KindCycle ErrorKind = "cycle"

	// KindUnsupported is raised for dependency expressions outside the
	// tractable shapes the satisfier handles deterministically.
	KindUnsupported ErrorKind = "unsupported"
)

// ExitCode returns the process exit code reserved for this kind.
func (k ErrorKind) ExitCode() int {
	switch k {
	case KindBridge:
		return 10
	case KindUnsupportedKernel:
		return 11
	case KindUnknownSymbol:
		return 12
	case KindInvalidValue:
		return 13
	case KindUnmetDependencies:
		return 14
	case KindAssignmentRejected:
		return 15
	case KindConflictingAssignment:
		return 16
	case KindAmbiguousChoice:
		return 17
	case KindCycle:
		return 18
	case KindUnsupported:
		return 19
	}
	return 1
}

// Origin records where an assignment originated in user code.
type Origin struct {
	// File is the script or config file path.
	File string
	// Line is the 1-based line number.
	Line int
	// Traceback is an optional multi-line call trace from the
	// scripting dialect.
	Traceback string
}

// String renders the origin as file:line.
func (o Origin) String() string {
	if o.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", o.File, o.Line)
}

// Error is the classified error produced by every evaluator stage.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind

	// Message is the human-readable description.
	Message string

	// Symbol is the affected symbol name, if any.
	Symbol string

	// Origin is where the failing statement came from, if known.
	Origin *Origin

	// Notes carry secondary diagnostic lines, such as the false
	// sub-clauses of an unmet dependency expression.
	Notes []string

	// Err is the wrapped cause.
	Err error

	// Details holds structured context for programmatic inspection.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", e.Kind)
	if e.Symbol != "" {
		fmt.Fprintf(&sb, " %s:", e.Symbol)
	}
	sb.WriteByte(' ')
	sb.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Origin != nil {
		fmt.Fprintf(&sb, " (at %s)", e.Origin)
	}
	return sb.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so callers can test with
// errors.Is(err, &kconfig.Error{Kind: kconfig.KindInvalidValue}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates an error of the given kind with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps a cause under the given kind.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithSymbol attaches the affected symbol name.
func (e *Error) WithSymbol(name string) *Error {
	e.Symbol = name
	return e
}

// WithOrigin attaches the source position, unless one is already set.
func (e *Error) WithOrigin(o Origin) *Error {
	if e.Origin == nil {
		e.Origin = &o
	}
	return e
}

// WithNote appends a secondary diagnostic line.
func (e *Error) WithNote(format string, args ...any) *Error {
	e.Notes = append(e.Notes, fmt.Sprintf(format, args...))
	return e
}

// WithDetail attaches a structured context value.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the classification of err, or an empty kind for errors
// that did not originate in the evaluator.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ExitCodeFor maps an error to the process exit code of its kind.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if k := KindOf(err); k != "" {
		return k.ExitCode()
	}
	return 1
}

// IsFatalForStatement reports whether the error aborts the current
// statement. Every classified error does; warnings are not errors.
func IsFatalForStatement(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

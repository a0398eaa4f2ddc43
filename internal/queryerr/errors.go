// Package queryerr defines the engine's closed error taxonomy (spec.md
// §7): every failure surfaced to a caller carries a stable Kind/Code, a
// human message, the stage that produced it, and an explicit retriable
// flag rather than relying on a type hierarchy.
package queryerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories spec.md §7 names.
type Kind string

const (
	KindParse       Kind = "parse"
	KindResolution  Kind = "resolution"
	KindValidation  Kind = "validation"
	KindPlanning    Kind = "planning"
	KindAdapter     Kind = "adapter"
	KindExecution   Kind = "execution"
	KindResource    Kind = "resource"
	KindSecurity    Kind = "security"
	KindCancelled   Kind = "cancelled"
	KindTimeout     Kind = "timeout"
	KindInternal    Kind = "internal"
)

// defaultRetriable records the default policy per Kind, per
// spec.md §7's propagation policy: parse/validation/planning/security
// never retry; adapter transient errors and resource admission may.
var defaultRetriable = map[Kind]bool{
	KindParse:      false,
	KindResolution: false,
	KindValidation: false,
	KindPlanning:   false,
	KindAdapter:    true,
	KindExecution:  false,
	KindResource:   true,
	KindSecurity:   false,
	KindCancelled:  false,
	KindTimeout:    false,
	KindInternal:   false,
}

// Error is the single structured error type every caller-visible failure
// takes the shape of, per spec.md §7: {code, message, stage, retriable,
// context}.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Stage     string
	Retriable bool
	Context   map[string]interface{}
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s/%s]: %s: %v", e.Stage, e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s/%s]: %s", e.Stage, e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error, defaulting Retriable from Kind's policy. Pass
// opts to override fields (WithRetriable, WithContext, WithCause).
func New(kind Kind, stage, code, message string, opts ...Option) *Error {
	e := &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Stage:     stage,
		Retriable: defaultRetriable[kind],
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option customizes an Error built by New.
type Option func(*Error)

// WithRetriable overrides the Kind's default retriability.
func WithRetriable(retriable bool) Option {
	return func(e *Error) { e.Retriable = retriable }
}

// WithContext attaches caller-supplied diagnostic context.
func WithContext(ctx map[string]interface{}) Option {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Option {
	return func(e *Error) { e.Cause = cause }
}

// As reports whether err (or something it wraps) is an *Error of kind.
func As(err error, kind Kind) (*Error, bool) {
	var qe *Error
	if !errors.As(err, &qe) {
		return nil, false
	}
	return qe, qe.Kind == kind
}

package molrt

import (
	"errors"
	"fmt"
)

// Kind classifies a renderer failure. Every kind is fatal: callers propagate
// the error and stop rendering.
type Kind uint8

const (
	KindConfiguration Kind = iota + 1
	KindResourceExhaustion
	KindTimingAnomaly
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindResourceExhaustion:
		return "resource exhaustion"
	case KindTimingAnomaly:
		return "timing anomaly"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var (
	ErrConfiguration      = &Error{Kind: KindConfiguration}
	ErrResourceExhaustion = &Error{Kind: KindResourceExhaustion}
	ErrTimingAnomaly      = &Error{Kind: KindTimingAnomaly}
)

// Error is the single error type crossing package boundaries.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConfiguration)
// holds for every configuration failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func ConfigurationError(op string, format string, args ...any) error {
	return newError(KindConfiguration, op, format, args...)
}

func ResourceExhaustion(op string, format string, args ...any) error {
	return newError(KindResourceExhaustion, op, format, args...)
}

func TimingAnomaly(op string, format string, args ...any) error {
	return newError(KindTimingAnomaly, op, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err carries one of the renderer's kinds. There is no
// recoverable kind, so any classified error is fatal.
func IsFatal(err error) bool {
	_, ok := KindOf(err)
	return ok
}

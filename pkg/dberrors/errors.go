package dberrors

import (
	"errors"
	"fmt"
)

var (
	ErrClosed       = errors.New("lumenkv: closed")
	ErrInvalidKey   = errors.New("lumenkv: invalid key")
	ErrInvalidValue = errors.New("lumenkv: invalid value")
	ErrIO           = errors.New("lumenkv: i/o failure")
	ErrCorruption   = errors.New("lumenkv: corruption")
)

// Kind classifies an error for callers that translate it into a transport status.
// A missing key is not an error: lookups report absence with a bool.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindIO
	KindCorruption
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindClosed:
		return "closed"
	default:
		return "internal"
	}
}

// Error is returned by engine operations. Op names the failing operation
// ("put", "delete", "open", ...) and Err carries the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrIO) and friends match on the kind even when the
// wrapped cause is an *os.PathError or similar.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrIO:
		return e.Kind == KindIO
	case ErrCorruption:
		return e.Kind == KindCorruption
	case ErrClosed:
		return e.Kind == KindClosed
	}
	return false
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidValue):
		return KindInvalidArgument
	case errors.Is(err, ErrClosed):
		return KindClosed
	case errors.Is(err, ErrCorruption):
		return KindCorruption
	case errors.Is(err, ErrIO):
		return KindIO
	}
	return KindInternal
}

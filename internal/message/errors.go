package message

import (
	"fmt"
)

type (
	// The Kind type describes the class of failure encountered when reading a DNS message.
	Kind int

	// The Error type is returned by all functions in this package. Errors compare equal using errors.Is when their
	// Kind matches.
	Error struct {
		Kind Kind
		Err  error
	}
)

const (
	KindIO Kind = iota + 1
	KindTooManyQuestions
	KindUnexpectedReadLength
	KindStringEncoding
)

var (
	kindMessages = map[Kind]string{
		KindIO:                   "i/o failure",
		KindTooManyQuestions:     "too many DNS questions in request",
		KindUnexpectedReadLength: "read an unexpected amount of data",
		KindStringEncoding:       "hostname is not valid UTF-8",
	}

	ErrTooManyQuestions     = &Error{Kind: KindTooManyQuestions}
	ErrUnexpectedReadLength = &Error{Kind: KindUnexpectedReadLength}
	ErrStringEncoding       = &Error{Kind: KindStringEncoding}
)

func (k Kind) String() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}

	return fmt.Sprintf("unknown error kind %d", int(k))
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dns message: %s: %v", e.Kind, e.Err)
	}

	return "dns message: " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

package list

import (
	"errors"
	"fmt"
	"net/http"
)

type (
	// The Kind type describes the class of failure encountered when loading a block list.
	Kind int

	// The Error type is returned when loading or reloading block lists. Errors compare equal using errors.Is when
	// their Kind matches.
	Error struct {
		Kind   Kind
		Source Source
		Err    error
	}

	// The StatusError type describes an unexpected HTTP status code.
	StatusError struct {
		Code int
	}
)

const (
	KindIO Kind = iota + 1
	KindFetch
	KindHTTPNotOK
	KindNoEntries
)

var (
	kindMessages = map[Kind]string{
		KindIO:        "i/o failure",
		KindFetch:     "failed to fetch block list",
		KindHTTPNotOK: "did not receive HTTP 200 OK back from server",
		KindNoEntries: "no block list entries",
	}

	ErrIO        = &Error{Kind: KindIO}
	ErrFetch     = &Error{Kind: KindFetch}
	ErrHTTPNotOK = &Error{Kind: KindHTTPNotOK}
	ErrNoEntries = &Error{Kind: KindNoEntries}

	errNoneRefreshed = errors.New("no block list could be refreshed")
)

func (k Kind) String() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}

	return fmt.Sprintf("unknown error kind %d", int(k))
}

func (e *Error) Error() string {
	msg := "block list: " + e.Kind.String()
	if e.Source != (Source{}) {
		msg += " (" + e.Source.String() + ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

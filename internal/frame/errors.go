package frame

import (
	"errors"
	"fmt"
)

type (
	// The Kind type describes the class of failure encountered when framing or unframing a message.
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
	KindBadInputData
	KindProtocolSizeMismatch
	KindMessageTooLarge
)

var (
	kindMessages = map[Kind]string{
		KindIO:                   "i/o failure",
		KindBadInputData:         "input buffer is incorrect",
		KindProtocolSizeMismatch: "received a message that was a different size to what the protocol said it should be",
		KindMessageTooLarge:      "declared message size exceeds the limit",
	}

	ErrBadInputData         = &Error{Kind: KindBadInputData}
	ErrProtocolSizeMismatch = &Error{Kind: KindProtocolSizeMismatch}
	ErrMessageTooLarge      = &Error{Kind: KindMessageTooLarge}

	errTooSmall = errors.New("buffer is too small to be a DNS-over-TLS message")
)

func (k Kind) String() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}

	return fmt.Sprintf("unknown error kind %d", int(k))
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dns-over-tls frame: %s: %v", e.Kind, e.Err)
	}

	return "dns-over-tls frame: " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

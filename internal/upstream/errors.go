package upstream

import (
	"fmt"
)

type (
	// The Kind type describes the step of an exchange that failed.
	Kind int

	// The Error type is returned by Relay.Exchange and Selector implementations. Errors compare equal using
	// errors.Is when their Kind matches.
	Error struct {
		Kind   Kind
		Server Server
		Err    error
	}
)

const (
	KindNoAvailableServers Kind = iota + 1
	KindConnectFailed
	KindTLSHandshakeFailed
	KindTLSWriteError
	KindTLSReadError
	KindMessageTooLarge
)

var (
	kindMessages = map[Kind]string{
		KindNoAvailableServers: "there are no DNS-over-TLS servers to choose from",
		KindConnectFailed:      "could not create TCP connection with remote server",
		KindTLSHandshakeFailed: "could not create TLS connection with remote server, it may not be trusted or the hostname may be wrong",
		KindTLSWriteError:      "could not write data into the TLS stream",
		KindTLSReadError:       "could not read data from the TLS stream",
		KindMessageTooLarge:    "DNS message size is too large or it's malformed",
	}

	ErrNoAvailableServers = &Error{Kind: KindNoAvailableServers}
	ErrConnectFailed      = &Error{Kind: KindConnectFailed}
	ErrTLSHandshakeFailed = &Error{Kind: KindTLSHandshakeFailed}
	ErrTLSWriteError      = &Error{Kind: KindTLSWriteError}
	ErrTLSReadError       = &Error{Kind: KindTLSReadError}
	ErrMessageTooLarge    = &Error{Kind: KindMessageTooLarge}
)

func (k Kind) String() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}

	return fmt.Sprintf("unknown error kind %d", int(k))
}

func (e *Error) Error() string {
	msg := "upstream: " + e.Kind.String()
	if e.Server != (Server{}) {
		msg += " (remote server: " + e.Server.String() + ")"
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

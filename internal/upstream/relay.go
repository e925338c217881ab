// Package upstream provides the DNS-over-TLS relay used to forward queries that are not blocked. Each exchange opens
// a new TLS session to a single server chosen by a Selector, writes one framed query and reads one framed response.
// Exchanges are never retried, nor do they fail over to another server.
package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/sewh/tinydnsproxy/internal/frame"
)

type (
	// The Relay type exchanges framed DNS messages with DNS-over-TLS upstreams.
	Relay struct {
		selector Selector
		roots    *x509.CertPool
		dialer   *net.Dialer
		logger   *slog.Logger
	}

	// The Config type contains fields used to configure a Relay.
	Config struct {
		// Chooses the server for each exchange.
		Selector Selector
		// Certificate authorities used to validate upstream certificates. When nil, the system roots are used.
		RootCAs *x509.CertPool
		// The logger to use, defaults to slog.Default.
		Logger *slog.Logger
	}
)

// MaxMessageSize is the largest response payload accepted from an upstream.
const MaxMessageSize = 8192

// New returns a new instance of the Relay type.
func New(config Config) *Relay {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		selector: config.Selector,
		roots:    config.RootCAs,
		dialer:   &net.Dialer{},
		logger:   logger,
	}
}

// Exchange sends the framed query to an upstream server and returns the payload of its response, without the length
// prefix. The deadline of ctx, if any, applies to the entire exchange.
func (r *Relay) Exchange(ctx context.Context, query []byte) ([]byte, error) {
	server, observe, err := r.selector.Next()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.exchange(ctx, server, query)
	rtt := time.Since(start)
	observe(rtt, err)

	if err != nil {
		exchanges.WithLabelValues(server.Hostname, resultLabel(err)).Inc()
		return nil, err
	}

	exchanges.WithLabelValues(server.Hostname, "success").Inc()
	exchangeSeconds.WithLabelValues(server.Hostname).Observe(rtt.Seconds())

	r.logger.With("upstream", server.String(), "rtt", rtt).Debug("exchanged message with upstream")
	return resp, nil
}

func (r *Relay) exchange(ctx context.Context, server Server, query []byte) ([]byte, error) {
	conn, err := r.dialer.DialContext(ctx, "tcp", server.Address())
	if err != nil {
		return nil, &Error{Kind: KindConnectFailed, Server: server, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err = conn.SetDeadline(deadline); err != nil {
			return nil, &Error{Kind: KindConnectFailed, Server: server, Err: err}
		}
	}

	// RFC-7858 (3.2): The server's certificate is validated against the configured hostname, which is also sent
	// as the SNI. This is the only authentication of the upstream.
	session := tls.Client(conn, &tls.Config{
		ServerName: server.Hostname,
		RootCAs:    r.roots,
		MinVersion: tls.VersionTLS12,
	})

	if err = session.HandshakeContext(ctx); err != nil {
		return nil, &Error{Kind: KindTLSHandshakeFailed, Server: server, Err: err}
	}

	if _, err = session.Write(query); err != nil {
		return nil, &Error{Kind: KindTLSWriteError, Server: server, Err: err}
	}

	resp, err := frame.Read(session, MaxMessageSize)
	switch {
	case errors.Is(err, frame.ErrMessageTooLarge):
		return nil, &Error{Kind: KindMessageTooLarge, Server: server, Err: err}
	case err != nil:
		return nil, &Error{Kind: KindTLSReadError, Server: server, Err: err}
	}

	return resp, nil
}

// LoadRootCAs reads the PEM encoded certificate authorities in the file at path into a new certificate pool.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, fmt.Errorf("no CA certificates found in %s", path)
	}

	return pool, nil
}

func resultLabel(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "error"
	}

	switch e.Kind {
	case KindConnectFailed:
		return "connect_failed"
	case KindTLSHandshakeFailed:
		return "handshake_failed"
	case KindTLSWriteError:
		return "write_error"
	case KindTLSReadError:
		return "read_error"
	case KindMessageTooLarge:
		return "too_large"
	default:
		return "error"
	}
}

// Package handler provides the per-request logic of the proxy. Each plaintext DNS query is either answered locally
// with NXDOMAIN, when its hostname appears in a block list, or relayed to a DNS-over-TLS upstream.
package handler

// Throughout this package are comments that link specific behavior to DNS-related RFCs. These RFCs can be read at:
// * RFC-1035 (Core DNS): 			https://www.rfc-editor.org/rfc/rfc1035.html
// * RFC-7858 (DNS over TLS):		https://www.rfc-editor.org/rfc/rfc7858.html
import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sewh/tinydnsproxy/internal/frame"
	"github.com/sewh/tinydnsproxy/internal/message"
)

type (
	// The Handler type decides how each query is answered.
	Handler struct {
		block  Blocker
		relay  Relay
		logger *slog.Logger
	}

	// The Blocker interface describes types that report whether a hostname is blocked without waiting on writers.
	// When ok is false the answer could not be determined.
	Blocker interface {
		TryIsBlocked(hostname string) (blocked bool, ok bool)
	}

	// The Relay interface describes types that forward a framed query to an upstream and return the payload of its
	// response.
	Relay interface {
		Exchange(ctx context.Context, query []byte) ([]byte, error)
	}

	// The Config type contains fields used to configure a Handler.
	Config struct {
		// Decides which hostnames are answered with NXDOMAIN.
		Block Blocker
		// Forwards queries that are not blocked.
		Relay Relay
		// The logger to use, defaults to slog.Default.
		Logger *slog.Logger
	}
)

// New returns a new instance of the Handler type.
func New(config Config) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		block:  config.Block,
		relay:  config.Relay,
		logger: logger,
	}
}

// Handle returns the reply to a raw DNS query. An error means no reply should be sent at all, the client is left to
// retry as it would for any lost datagram.
func (h *Handler) Handle(ctx context.Context, query []byte) ([]byte, error) {
	dnsQueries.Inc()

	// RFC-7858 (3.3): Messages sent over the TLS session use the two byte length prefix of DNS over TCP. The query
	// is framed first so it is ready whichever way it is answered.
	framed, err := frame.Serialize(query)
	if err != nil {
		dnsDropped.WithLabelValues("frame").Inc()
		return nil, fmt.Errorf("failed to frame query: %w", err)
	}

	if h.blocked(query) {
		// RFC-1035 (4.3.1): NXDOMAIN indicates that the domain name does not exist. Used here for policy-based
		// blocking.
		reply, err := message.NXDomain(query)
		if err != nil {
			dnsDropped.WithLabelValues("nxdomain").Inc()
			return nil, fmt.Errorf("failed to create nxdomain reply: %w", err)
		}

		dnsBlocked.Inc()
		return reply, nil
	}

	reply, err := h.relay.Exchange(ctx, framed)
	if err != nil {
		dnsDropped.WithLabelValues("upstream").Inc()
		return nil, fmt.Errorf("failed to relay query: %w", err)
	}

	dnsUpstreamed.Inc()
	return reply, nil
}

// blocked fails open. A query whose hostname cannot be read, or that arrives while the block lists are being
// swapped, is never blocked.
func (h *Handler) blocked(query []byte) bool {
	hostname, err := message.Hostname(query)
	if err != nil {
		h.logger.With("error", err).Debug("could not read hostname from query")
		return false
	}

	blocked, ok := h.block.TryIsBlocked(hostname)
	if !ok {
		dnsLockContention.Inc()
		h.logger.With("hostname", hostname).Debug("block lists are being reloaded, skipping check")
		return false
	}

	if blocked {
		h.logger.With("hostname", hostname).Debug("blocked query")
	}

	return blocked
}

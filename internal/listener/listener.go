// Package listener provides the UDP front end of the proxy. Datagrams are received on a single socket and handed to a
// fixed pool of workers through a bounded queue. Replies are written back to the address each query arrived from.
package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type (
	// The Listener type receives DNS queries over UDP and answers them using a Handler.
	Listener struct {
		addr           string
		handler        Handler
		reloader       Reloader
		interval       time.Duration
		workers        int
		queue          int
		receiveTimeout time.Duration
		requestTimeout time.Duration
		logger         *slog.Logger

		state atomic.Int32
		ready chan struct{}
		once  sync.Once
		bound atomic.Pointer[net.UDPAddr]
	}

	// The Handler interface describes types that produce the reply to a single raw query. Returning an error drops
	// the query without a reply.
	Handler interface {
		Handle(ctx context.Context, query []byte) ([]byte, error)
	}

	// The Reloader interface describes types that refresh the block lists.
	Reloader interface {
		Reload(ctx context.Context) error
	}

	// The Config type contains fields used to configure a Listener.
	Config struct {
		// The UDP address to listen on.
		Addr string
		// Answers each query.
		Handler Handler
		// Refreshed every RefreshInterval. May be nil when RefreshInterval is zero.
		Reloader Reloader
		// How often the block lists are reloaded. Zero disables periodic reloads.
		RefreshInterval time.Duration
		// The number of queries handled concurrently.
		Workers int
		// The number of received queries that may wait for a worker.
		Queue int
		// How long a single receive blocks before checking for shutdown.
		ReceiveTimeout time.Duration
		// The deadline for answering a single query.
		RequestTimeout time.Duration
		// The logger to use, defaults to slog.Default.
		Logger *slog.Logger
	}

	// The State type describes the lifecycle of a Listener.
	State int32

	request struct {
		query []byte
		addr  net.Addr
	}
)

const (
	StateIdle State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

const (
	// Matches the largest response accepted from an upstream.
	receiveBufferSize = 8192

	defaultWorkers        = 64
	defaultQueue          = 256
	defaultReceiveTimeout = time.Second
	defaultRequestTimeout = time.Minute
)

// New returns a new instance of the Listener type. Zero values in config are replaced with defaults.
func New(config Config) *Listener {
	l := &Listener{
		addr:           config.Addr,
		handler:        config.Handler,
		reloader:       config.Reloader,
		interval:       config.RefreshInterval,
		workers:        config.Workers,
		queue:          config.Queue,
		receiveTimeout: config.ReceiveTimeout,
		requestTimeout: config.RequestTimeout,
		logger:         config.Logger,
		ready:          make(chan struct{}),
	}

	if l.workers <= 0 {
		l.workers = defaultWorkers
	}

	if l.queue <= 0 {
		l.queue = defaultQueue
	}

	if l.receiveTimeout <= 0 {
		l.receiveTimeout = defaultReceiveTimeout
	}

	if l.requestTimeout <= 0 {
		l.requestTimeout = defaultRequestTimeout
	}

	if l.logger == nil {
		l.logger = slog.Default()
	}

	return l
}

// Serve listens for queries until ctx is cancelled. On shutdown, queries that have already been received are still
// answered and Serve only returns once every worker and the reload task have exited. An error is returned if the
// socket cannot be bound or fails while receiving.
func (l *Listener) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		l.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		l.bound.Store(addr)
	}

	log := l.logger.With("addr", conn.LocalAddr().String())

	queue := make(chan request, l.queue)
	workers := &errgroup.Group{}
	for range l.workers {
		workers.Go(func() error {
			for req := range queue {
				l.handle(ctx, conn, req)
			}

			return nil
		})
	}

	tasks := &errgroup.Group{}
	if l.interval > 0 && l.reloader != nil {
		tasks.Go(func() error {
			l.reload(ctx)
			return nil
		})
	}

	l.state.Store(int32(StateRunning))
	l.once.Do(func() { close(l.ready) })
	log.Info("listener started")

	err = l.receive(ctx, conn, queue)

	l.state.Store(int32(StateStopRequested))
	log.Warn("listener shutting down")

	close(queue)
	_ = workers.Wait()
	_ = tasks.Wait()

	l.state.Store(int32(StateStopped))
	return err
}

func (l *Listener) receive(ctx context.Context, conn net.PacketConn, queue chan<- request) error {
	buf := make([]byte, receiveBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(l.receiveTimeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, addr, err := conn.ReadFrom(buf)
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("failed to receive query: %w", err)
		}

		// The buffer is reused by the next receive, so each query gets its own copy.
		req := request{query: bytes.Clone(buf[:n]), addr: addr}
		clear(buf[:n])

		datagrams.Inc()

		select {
		case queue <- req:
			queueLength.Set(float64(len(queue)))
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Listener) handle(ctx context.Context, conn net.PacketConn, req request) {
	// Queries still in the queue on shutdown are answered, so only the request timeout applies here.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.requestTimeout)
	defer cancel()

	log := l.logger.With("client", req.addr.String())

	reply, err := l.handler.Handle(ctx, req.query)
	if err != nil {
		log.With("error", err).Error("failed to handle query")
		return
	}

	if _, err = conn.WriteTo(reply, req.addr); err != nil {
		log.With("error", err).Error("failed to write reply")
	}
}

func (l *Listener) reload(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.reloader.Reload(ctx); err != nil {
				l.logger.With("error", err).Error("failed to reload block lists")
				continue
			}

			l.logger.Info("reloaded block lists")
		}
	}
}

// State returns the current lifecycle state of the Listener.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Ready returns a channel that is closed once the Listener has bound its socket.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the address the Listener is bound to, or nil if it has not started.
func (l *Listener) Addr() *net.UDPAddr {
	return l.bound.Load()
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop requested"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

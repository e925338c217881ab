// Package server provides the Run function used to start the DNS proxy.
package server

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sewh/tinydnsproxy/internal/handler"
	"github.com/sewh/tinydnsproxy/internal/list"
	"github.com/sewh/tinydnsproxy/internal/listener"
	"github.com/sewh/tinydnsproxy/internal/upstream"
)

func init() {
	handler.RegisterMetrics(prometheus.DefaultRegisterer)
	list.RegisterMetrics(prometheus.DefaultRegisterer)
	listener.RegisterMetrics(prometheus.DefaultRegisterer)
	upstream.RegisterMetrics(prometheus.DefaultRegisterer)
}

// Run the DNS proxy until ctx is cancelled.
func Run(ctx context.Context, config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	logger := NewLogger(config.Logging)

	var roots *x509.CertPool
	if config.Upstream.CAFile != "" {
		var err error
		roots, err = upstream.LoadRootCAs(config.Upstream.CAFile)
		if err != nil {
			return fmt.Errorf("failed to load upstream certificate authorities: %w", err)
		}
	}

	store := list.NewStore(nil, logger.With("component", "list"))
	for _, bl := range config.BlockList {
		// Validate has already checked every source.
		source, _ := bl.Source()

		log := logger.With("source", source.String())
		if err := store.Add(ctx, source); err != nil {
			log.With("error", err).Warn("failed to load block list, skipping")
			continue
		}

		log.Info("loaded block list")
	}

	logger.With("entries", store.Len(), "lists", len(store.Sources())).Info("block lists loaded")

	servers := make([]upstream.Server, 0, len(config.DNSServers))
	for _, s := range config.DNSServers {
		servers = append(servers, s.Server())
	}

	var selector upstream.Selector = upstream.NewRandom(servers)
	if config.Upstream.Strategy == strategyFastest {
		selector = upstream.NewFastest(servers)
	}

	relay := upstream.New(upstream.Config{
		Selector: selector,
		RootCAs:  roots,
		Logger:   logger.With("component", "upstream"),
	})

	l := listener.New(listener.Config{
		Addr: config.Bind.Address(),
		Handler: handler.New(handler.Config{
			Block:  store,
			Relay:  relay,
			Logger: logger.With("component", "handler"),
		}),
		Reloader:        store,
		RefreshInterval: config.BlockLists.RefreshInterval(),
		Workers:         config.Listener.Workers,
		Queue:           config.Listener.Queue,
		ReceiveTimeout:  config.Listener.ReceiveTimeout,
		RequestTimeout:  config.Upstream.Timeout,
		Logger:          logger.With("component", "listener"),
	})

	var watcher *list.Watcher
	if config.BlockLists.Watch {
		var err error
		watcher, err = list.NewWatcher(store, logger.With("component", "watcher"))
		if err != nil {
			return fmt.Errorf("failed to watch block lists: %w", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return l.Serve(ctx)
	})

	if watcher != nil {
		group.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if config.Metrics != nil {
		group.Go(func() error {
			return runHTTPServer(ctx, logger, &http.Server{
				Addr:    config.Metrics.Bind,
				Handler: promhttp.Handler(),
			})
		})
	}

	return group.Wait()
}

func runHTTPServer(ctx context.Context, logger *slog.Logger, server *http.Server) error {
	log := logger.With("protocol", "http", "addr", server.Addr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server starting")

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	})

	group.Go(func() error {
		<-ctx.Done()

		log.Warn("server shutting down")
		return server.Shutdown(context.WithoutCancel(ctx))
	})

	return group.Wait()
}

// NewLogger returns the logger described by config, writing text to stderr. A nil config logs at the info level.
func NewLogger(config *LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if config != nil {
		level = levelFromString(config.Level)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func levelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

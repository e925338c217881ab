package list

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
)

type (
	// The Store type holds every loaded block list. A hostname is blocked if it is an entry of any list. Reads may
	// happen concurrently with each other and with a reload, the store is only locked for writing for the brief
	// moment the reloaded lists are swapped in.
	Store struct {
		mu     sync.RWMutex
		lists  []*List
		reload sync.Mutex
		client *http.Client
		logger *slog.Logger
	}
)

// NewStore returns a new, empty instance of the Store type. HTTP sources are downloaded using client, or a default
// client when nil.
func NewStore(client *http.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client: client,
		logger: logger,
	}
}

// AddFile loads the block list at path and adds it to the store.
func (s *Store) AddFile(ctx context.Context, path string, format Format) error {
	return s.Add(ctx, Source{Type: TypeFile, Format: format, Location: path})
}

// AddHTTP downloads the block list at url and adds it to the store.
func (s *Store) AddHTTP(ctx context.Context, url string, format Format) error {
	return s.Add(ctx, Source{Type: TypeHTTP, Format: format, Location: url})
}

// Add loads the block list described by source and adds it to the store. Nothing is added if the list cannot be
// loaded or contains no entries. Add waits for any reload in progress.
func (s *Store) Add(ctx context.Context, source Source) error {
	// A reload swaps in lists built from its own snapshot, so a list appended during one would be lost.
	s.reload.Lock()
	defer s.reload.Unlock()

	l, err := s.load(ctx, source)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lists = append(s.lists, l)
	s.mu.Unlock()

	s.updateMetrics()
	return nil
}

// IsBlocked returns true if hostname is an entry of any block list. It waits for an in-progress swap to complete.
func (s *Store) IsBlocked(hostname string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.contains(hostname)
}

// TryIsBlocked behaves like IsBlocked but never waits. If the lists are being swapped, ok is false and blocked
// should not be relied upon.
func (s *Store) TryIsBlocked(hostname string) (blocked bool, ok bool) {
	if !s.mu.TryRLock() {
		return false, false
	}
	defer s.mu.RUnlock()

	return s.contains(hostname), true
}

func (s *Store) contains(hostname string) bool {
	hostname = Normalize(hostname)
	for _, l := range s.lists {
		if l.entries.Contains(hostname) {
			return true
		}
	}

	return false
}

// Reload loads every source in the store again, one at a time and without holding any lock. A source that fails to
// load keeps its previous entries. Once all sources have been attempted the store's lists are replaced in a single
// swap. An error is returned only if no source could be refreshed, in which case every list keeps its previous
// entries.
func (s *Store) Reload(ctx context.Context) error {
	// Only a single reload may run at a time, a second would otherwise swap in lists loaded from a stale snapshot.
	s.reload.Lock()
	defer s.reload.Unlock()

	s.mu.RLock()
	current := slices.Clone(s.lists)
	s.mu.RUnlock()

	next := make([]*List, 0, len(current))
	refreshed := 0

	for _, previous := range current {
		log := s.logger.With("source", previous.Source.String())

		l, err := s.load(ctx, previous.Source)
		if err != nil {
			log.With("error", err).Warn("could not refresh block list, keeping previous entries")
			next = append(next, previous)
			continue
		}

		log.With("entries", l.Len()).Debug("refreshed block list")
		next = append(next, l)
		refreshed++
	}

	s.mu.Lock()
	s.lists = next
	s.mu.Unlock()

	s.updateMetrics()

	if refreshed == 0 {
		reloads.WithLabelValues("failure").Inc()
		return &Error{Kind: KindNoEntries, Err: errNoneRefreshed}
	}

	reloads.WithLabelValues("success").Inc()
	return nil
}

// Sources returns the sources of every list in the store, in the order they were added.
func (s *Store) Sources() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]Source, 0, len(s.lists))
	for _, l := range s.lists {
		sources = append(sources, l.Source)
	}

	return sources
}

// Len returns the total number of entries across all lists. Entries present in more than one list are counted once
// per list.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, l := range s.lists {
		total += l.Len()
	}

	return total
}

func (s *Store) load(ctx context.Context, source Source) (*List, error) {
	var loader Loader
	switch source.Type {
	case TypeHTTP:
		loader = NewHTTPLoader(source.Location, s.client)
	default:
		loader = NewFileLoader(source.Location)
	}

	rc, err := loader.Load(ctx)
	if err != nil {
		return nil, withSource(err, source)
	}
	defer rc.Close()

	l, err := Parse(ctx, rc, source.Format)
	if err != nil {
		return nil, withSource(err, source)
	}

	l.Source = source
	return l, nil
}

func (s *Store) updateMetrics() {
	domainsBlocked.Set(float64(s.Len()))
}

func withSource(err error, source Source) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Source: source, Err: e.Err}
	}

	return &Error{Kind: KindIO, Source: source, Err: err}
}

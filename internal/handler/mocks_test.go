package handler_test

import (
	"context"
	"sync"
)

type (
	MockBlocker struct {
		blocked   map[string]bool
		contended bool
	}

	MockRelay struct {
		mu      sync.Mutex
		queries [][]byte
		reply   []byte
		err     error
	}
)

func (m *MockBlocker) TryIsBlocked(hostname string) (bool, bool) {
	if m.contended {
		return false, false
	}

	return m.blocked[hostname], true
}

func (m *MockRelay) Exchange(_ context.Context, query []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)
	return m.reply, m.err
}

func (m *MockRelay) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queries)
}

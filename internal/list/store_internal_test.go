package list

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TryIsBlockedDuringSwap(t *testing.T) {
	t.Parallel()

	l, err := Parse(t.Context(), strings.NewReader("ads.example.com\n"), FormatOnePerLine)
	require.NoError(t, err)

	store := NewStore(nil, nil)
	store.lists = []*List{l}

	blocked, ok := store.TryIsBlocked("ads.example.com")
	require.True(t, ok)
	assert.True(t, blocked)

	store.mu.Lock()
	blocked, ok = store.TryIsBlocked("ads.example.com")
	store.mu.Unlock()

	assert.False(t, ok)
	assert.False(t, blocked)
}

func TestStore_AddWaitsForReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("ads.example.com\n"), 0o644))

	store := NewStore(nil, nil)

	// Stands in for a reload that has taken its snapshot but not yet swapped.
	store.reload.Lock()

	done := make(chan error, 1)
	go func() {
		done <- store.AddFile(t.Context(), path, FormatOnePerLine)
	}()

	select {
	case <-done:
		require.FailNow(t, "add completed during a reload")
	case <-time.After(100 * time.Millisecond):
	}

	// The reload swaps in its own snapshot, which does not include the new list.
	store.mu.Lock()
	store.lists = []*List{}
	store.mu.Unlock()
	store.reload.Unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "add did not complete")
	}

	assert.True(t, store.IsBlocked("ads.example.com"))
	assert.Len(t, store.Sources(), 1)
}

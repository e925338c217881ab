package list_test

import (
	"bufio"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewh/tinydnsproxy/internal/list"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tt := []struct {
		Name          string
		Format        list.Format
		Input         string
		Expected      []string
		NotExpected   []string
		ExpectedLen   int
		ExpectedError error
	}{
		{
			Name:        "hosts format",
			Format:      list.FormatHosts,
			Input:       "# header\n0.0.0.0 ads.example.com\n127.0.0.1\tlocalhost\n\n",
			Expected:    []string{"ads.example.com", "localhost"},
			NotExpected: []string{"0.0.0.0", "127.0.0.1", "# header", ""},
			ExpectedLen: 2,
		},
		{
			Name:        "hosts format with a single field",
			Format:      list.FormatHosts,
			Input:       "tracker.example.com\n",
			Expected:    []string{"tracker.example.com"},
			ExpectedLen: 1,
		},
		{
			Name:        "hosts format with trailing comment",
			Format:      list.FormatHosts,
			Input:       "0.0.0.0 ads.example.com # ad network\n",
			Expected:    []string{"ads.example.com"},
			NotExpected: []string{"network"},
			ExpectedLen: 1,
		},
		{
			Name:        "one per line",
			Format:      list.FormatOnePerLine,
			Input:       "ads.example.com\n  tracker.example.com  \n# comment\n",
			Expected:    []string{"ads.example.com", "tracker.example.com"},
			NotExpected: []string{"comment", "# comment"},
			ExpectedLen: 2,
		},
		{
			Name:        "hash inside a word is not a comment",
			Format:      list.FormatOnePerLine,
			Input:       "we#ird.example.com\n",
			Expected:    []string{"we#ird.example.com"},
			ExpectedLen: 1,
		},
		{
			Name:        "duplicates are counted once",
			Format:      list.FormatOnePerLine,
			Input:       "ads.example.com\nADS.example.com.\nads.example.com\n",
			Expected:    []string{"ads.example.com", "Ads.Example.Com."},
			ExpectedLen: 1,
		},
		{
			Name:        "lines longer than the default scanner buffer",
			Format:      list.FormatHosts,
			Input:       "# " + strings.Repeat("x", 100_000) + "\n0.0.0.0 ads.example.com\n",
			Expected:    []string{"ads.example.com"},
			ExpectedLen: 1,
		},
		{
			Name:          "line longer than the maximum",
			Format:        list.FormatOnePerLine,
			Input:         "ads.example.com\n" + strings.Repeat("x", list.MaxLineSize+1) + "\n",
			ExpectedError: bufio.ErrTooLong,
		},
		{
			Name:          "only comments",
			Format:        list.FormatHosts,
			Input:         "# one\n   # two\n\n",
			ExpectedError: list.ErrNoEntries,
		},
		{
			Name:          "empty",
			Format:        list.FormatOnePerLine,
			Input:         "",
			ExpectedError: list.ErrNoEntries,
		},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			actual, err := list.Parse(t.Context(), strings.NewReader(tc.Input), tc.Format)
			if tc.ExpectedError != nil {
				require.ErrorIs(t, err, tc.ExpectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.ExpectedLen, actual.Len())

			for _, hostname := range tc.Expected {
				assert.True(t, actual.Contains(hostname), hostname)
			}

			for _, hostname := range tc.NotExpected {
				assert.False(t, actual.Contains(hostname), hostname)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	format, err := list.ParseFormat("hosts")
	require.NoError(t, err)
	assert.Equal(t, list.FormatHosts, format)

	format, err = list.ParseFormat("one-per-line")
	require.NoError(t, err)
	assert.Equal(t, list.FormatOnePerLine, format)

	_, err = list.ParseFormat("csv")
	assert.Error(t, err)
}

func TestStore_AddFile(t *testing.T) {
	t.Parallel()

	path := writeList(t, "0.0.0.0 ads.example.com\n0.0.0.0 tracker.example.com\n")

	store := list.NewStore(nil, testLogger(t))
	require.NoError(t, store.AddFile(t.Context(), path, list.FormatHosts))

	assert.True(t, store.IsBlocked("ads.example.com"))
	assert.True(t, store.IsBlocked("Tracker.Example.com."))
	assert.False(t, store.IsBlocked("example.com"))
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []list.Source{{Type: list.TypeFile, Format: list.FormatHosts, Location: path}}, store.Sources())

	t.Run("missing file", func(t *testing.T) {
		err := store.AddFile(t.Context(), filepath.Join(t.TempDir(), "missing"), list.FormatHosts)
		require.ErrorIs(t, err, list.ErrIO)
		assert.Len(t, store.Sources(), 1)
	})

	t.Run("no entries", func(t *testing.T) {
		err := store.AddFile(t.Context(), writeList(t, "# nothing here\n"), list.FormatHosts)
		require.ErrorIs(t, err, list.ErrNoEntries)
		assert.Len(t, store.Sources(), 1)
	})
}

func TestStore_AddHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/list.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ads.example.com\n"))
	})
	mux.HandleFunc("/missing.txt", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := list.NewStore(server.Client(), testLogger(t))
	require.NoError(t, store.AddHTTP(t.Context(), server.URL+"/list.txt", list.FormatOnePerLine))
	assert.True(t, store.IsBlocked("ads.example.com"))

	err := store.AddHTTP(t.Context(), server.URL+"/missing.txt", list.FormatOnePerLine)
	require.ErrorIs(t, err, list.ErrHTTPNotOK)

	var statusErr *list.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	err = store.AddHTTP(t.Context(), "http://127.0.0.1:1/list.txt", list.FormatOnePerLine)
	require.ErrorIs(t, err, list.ErrFetch)
}

func TestStore_IsBlockedAcrossLists(t *testing.T) {
	t.Parallel()

	store := list.NewStore(nil, testLogger(t))
	require.NoError(t, store.AddFile(t.Context(), writeList(t, "0.0.0.0 a.example.com\n"), list.FormatHosts))
	require.NoError(t, store.AddFile(t.Context(), writeList(t, "b.example.com\n"), list.FormatOnePerLine))

	assert.True(t, store.IsBlocked("a.example.com"))
	assert.True(t, store.IsBlocked("b.example.com"))
	assert.False(t, store.IsBlocked("c.example.com"))

	blocked, ok := store.TryIsBlocked("B.EXAMPLE.COM")
	assert.True(t, ok)
	assert.True(t, blocked)
}

func TestStore_Reload(t *testing.T) {
	t.Parallel()

	t.Run("refreshes changed lists", func(t *testing.T) {
		path := writeList(t, "old.example.com\n")

		store := list.NewStore(nil, testLogger(t))
		require.NoError(t, store.AddFile(t.Context(), path, list.FormatOnePerLine))

		require.NoError(t, os.WriteFile(path, []byte("new.example.com\n"), 0o644))
		require.NoError(t, store.Reload(t.Context()))

		assert.True(t, store.IsBlocked("new.example.com"))
		assert.False(t, store.IsBlocked("old.example.com"))
	})

	t.Run("keeps stale entries on partial failure", func(t *testing.T) {
		first := writeList(t, "first.example.com\n")
		second := writeList(t, "second.example.com\n")

		store := list.NewStore(nil, testLogger(t))
		require.NoError(t, store.AddFile(t.Context(), first, list.FormatOnePerLine))
		require.NoError(t, store.AddFile(t.Context(), second, list.FormatOnePerLine))

		require.NoError(t, os.Remove(first))
		require.NoError(t, os.WriteFile(second, []byte("third.example.com\n"), 0o644))
		require.NoError(t, store.Reload(t.Context()))

		assert.True(t, store.IsBlocked("first.example.com"))
		assert.True(t, store.IsBlocked("third.example.com"))
		assert.False(t, store.IsBlocked("second.example.com"))
		assert.Len(t, store.Sources(), 2)
	})

	t.Run("fails when nothing refreshes", func(t *testing.T) {
		first := writeList(t, "first.example.com\nads.example.com\n")
		second := writeList(t, "second.example.com\n")

		store := list.NewStore(nil, testLogger(t))
		require.NoError(t, store.AddFile(t.Context(), first, list.FormatOnePerLine))
		require.NoError(t, store.AddFile(t.Context(), second, list.FormatOnePerLine))

		hostnames := []string{"first.example.com", "ads.example.com", "second.example.com", "unlisted.example.com"}
		before := make(map[string]bool, len(hostnames))
		for _, hostname := range hostnames {
			before[hostname] = store.IsBlocked(hostname)
		}

		require.NoError(t, os.Remove(first))
		require.NoError(t, os.WriteFile(second, []byte("# emptied\n"), 0o644))
		require.ErrorIs(t, store.Reload(t.Context()), list.ErrNoEntries)

		for _, hostname := range hostnames {
			assert.Equal(t, before[hostname], store.IsBlocked(hostname), hostname)
		}

		assert.Equal(t, 3, store.Len())
		assert.Len(t, store.Sources(), 2)
	})

	t.Run("fails with no lists", func(t *testing.T) {
		store := list.NewStore(nil, testLogger(t))
		require.ErrorIs(t, store.Reload(t.Context()), list.ErrNoEntries)
	})
}

func TestWatcher(t *testing.T) {
	t.Parallel()

	path := writeList(t, "old.example.com\n")

	store := list.NewStore(nil, testLogger(t))
	require.NoError(t, store.AddFile(t.Context(), path, list.FormatOnePerLine))

	watcher, err := list.NewWatcher(store, testLogger(t))
	require.NoError(t, err)

	ctx := t.Context()
	go func() {
		_ = watcher.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(path, []byte("new.example.com\n"), 0o644))

	require.Eventually(t, func() bool {
		return store.IsBlocked("new.example.com")
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, store.IsBlocked("old.example.com"))
}

func writeList(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func testLogger(t *testing.T) *slog.Logger {
	h := slog.NewTextHandler(t.Output(), &slog.HandlerOptions{
		AddSource: testing.Verbose(),
		Level:     slog.LevelDebug,
	})

	return slog.New(h).With("test", t.Name())
}

package upstream_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewh/tinydnsproxy/internal/upstream"
)

var servers = []upstream.Server{
	{IP: "1.1.1.1", Port: 853, Hostname: "cloudflare-dns.com"},
	{IP: "8.8.8.8", Port: 853, Hostname: "dns.google"},
	{IP: "9.9.9.9", Port: 853, Hostname: "dns.quad9.net"},
}

func TestRandom_Next(t *testing.T) {
	t.Parallel()

	t.Run("chooses every server", func(t *testing.T) {
		selector := upstream.NewRandom(servers)

		seen := make(map[upstream.Server]int)
		for range 300 {
			server, observe, err := selector.Next()
			require.NoError(t, err)
			require.NotNil(t, observe)

			observe(time.Millisecond, nil)
			seen[server]++
		}

		assert.Len(t, seen, len(servers))
		for _, server := range servers {
			assert.Positive(t, seen[server])
		}
	})

	t.Run("no servers", func(t *testing.T) {
		_, _, err := upstream.NewRandom(nil).Next()
		assert.ErrorIs(t, err, upstream.ErrNoAvailableServers)
	})
}

func TestFastest_Next(t *testing.T) {
	t.Parallel()

	t.Run("prefers the lowest round-trip time", func(t *testing.T) {
		selector := upstream.NewFastest(servers)

		rtts := map[string]time.Duration{
			"1.1.1.1": 30 * time.Millisecond,
			"8.8.8.8": 10 * time.Millisecond,
			"9.9.9.9": 20 * time.Millisecond,
		}

		// Each server is tried once before any measured server is reused.
		seen := make(map[upstream.Server]struct{})
		for range servers {
			server, observe, err := selector.Next()
			require.NoError(t, err)

			observe(rtts[server.IP], nil)
			seen[server] = struct{}{}
		}

		require.Len(t, seen, len(servers))

		server, _, err := selector.Next()
		require.NoError(t, err)
		assert.Equal(t, "8.8.8.8", server.IP)
	})

	t.Run("moves failing servers last", func(t *testing.T) {
		dead := servers[0]
		selector := upstream.NewFastest(servers[:2])

		selections := make(map[upstream.Server]int)
		for range 100 {
			server, observe, err := selector.Next()
			require.NoError(t, err)

			selections[server]++
			if server == dead {
				observe(5*time.Second, errors.New("connection refused"))
				continue
			}

			observe(10*time.Millisecond, nil)
		}

		assert.Equal(t, 1, selections[dead])
		assert.Equal(t, 99, selections[servers[1]])
	})

	t.Run("no servers", func(t *testing.T) {
		_, _, err := upstream.NewFastest(nil).Next()
		assert.ErrorIs(t, err, upstream.ErrNoAvailableServers)
	})
}

func TestServer_Address(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.1.1.1:853", servers[0].Address())
	assert.Equal(t, "[::1]:853", upstream.Server{IP: "::1", Port: 853}.Address())
}

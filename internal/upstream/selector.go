package upstream

import (
	"math"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/davidsbond/x/weightslice"
)

type (
	// The Server type describes a single DNS-over-TLS upstream.
	Server struct {
		// The IP address to connect to.
		IP string
		// The TCP port to connect to, usually 853.
		Port uint16
		// The name used for SNI and to validate the server's certificate.
		Hostname string
	}

	// The Selector interface describes types that choose which Server a single exchange is sent to. The returned
	// ObserveFunc is called once the exchange completes, successfully or not.
	Selector interface {
		Next() (Server, ObserveFunc, error)
	}

	// The ObserveFunc type is used to report the outcome of an exchange to the Selector that chose its server. The
	// error is nil if the exchange succeeded.
	ObserveFunc func(rtt time.Duration, err error)

	// The Random type is a Selector implementation that chooses uniformly at random between its servers.
	Random struct {
		servers []Server
	}

	// The Fastest type is a Selector implementation that always chooses the server with the lowest recorded
	// round-trip time. Servers that have not been used yet are preferred over all others.
	Fastest struct {
		mu      sync.Mutex
		servers *weightslice.Slice[Server, time.Duration]
	}
)

// Address returns the host:port pair for the server.
func (s Server) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(int(s.Port)))
}

// failureWeight is the weight of a server whose last exchange failed. It is larger than any round-trip time allowed
// by the upstream timeout.
const failureWeight = time.Duration(math.MaxInt64)

func (s Server) String() string {
	return s.Hostname + "@" + s.Address()
}

// NewRandom returns a new instance of the Random type that chooses between the provided servers.
func NewRandom(servers []Server) *Random {
	return &Random{servers: servers}
}

// Next returns a random server.
func (r *Random) Next() (Server, ObserveFunc, error) {
	if len(r.servers) == 0 {
		return Server{}, nil, ErrNoAvailableServers
	}

	return r.servers[rand.IntN(len(r.servers))], noopObserve, nil
}

// NewFastest returns a new instance of the Fastest type that chooses between the provided servers.
func NewFastest(servers []Server) *Fastest {
	return &Fastest{
		servers: weightslice.New[Server, time.Duration](servers, weightslice.Ascending),
	}
}

// Next returns the server with the lowest round-trip time of its most recent exchange.
func (f *Fastest) Next() (Server, ObserveFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, server := range f.servers.Range() {
		return server, func(rtt time.Duration, err error) {
			f.observe(server, rtt, err)
		}, nil
	}

	return Server{}, nil, ErrNoAvailableServers
}

// observe looks the server up again, as other exchanges may have reordered the servers since it was chosen. A failed
// exchange weights the server behind every server that has answered.
func (f *Fastest) observe(server Server, rtt time.Duration, err error) {
	if err != nil {
		rtt = failureWeight
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	index := -1
	for i, s := range f.servers.Range() {
		if s == server {
			index = i
			break
		}
	}

	if index >= 0 {
		f.servers.SetWeight(index, rtt)
	}
}

func noopObserve(time.Duration, error) {}

// Package dottest provides an in-process DNS-over-TLS server for use in tests. Each server is issued a certificate
// for "localhost" and 127.0.0.1 by its own freshly generated certificate authority.
package dottest

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sewh/tinydnsproxy/internal/frame"
)

type (
	// The Server type is a DNS-over-TLS server listening on a random port of the loopback interface.
	Server struct {
		listener net.Listener
		caPEM    []byte
		roots    *x509.CertPool
		handler  ConnFunc
		accepted atomic.Int64
		wg       sync.WaitGroup
	}

	// The ConnFunc type handles a single accepted TLS connection. The connection is closed once it returns.
	ConnFunc func(conn net.Conn)
)

// Hostname is the name the server's certificate is issued for.
const Hostname = "localhost"

// NewServer starts a new Server that passes each accepted connection to handler. The server is shut down when the
// test completes.
func NewServer(t *testing.T, handler ConnFunc) *Server {
	t.Helper()

	ca, caKey, caPEM := createCA(t)
	cert := createServerCertificate(t, ca, caKey)

	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	s := &Server{
		listener: listener,
		caPEM:    caPEM,
		roots:    roots,
		handler:  handler,
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(func() {
		_ = s.listener.Close()
		s.wg.Wait()
	})

	return s
}

// Respond returns a ConnFunc that reads a single framed query and writes back the framed result of fn.
func Respond(fn func(query []byte) []byte) ConnFunc {
	return func(conn net.Conn) {
		query, err := frame.Read(conn, frame.MaxPayloadSize)
		if err != nil {
			return
		}

		resp, err := frame.Serialize(fn(query))
		if err != nil {
			return
		}

		_, _ = conn.Write(resp)
	}
}

// Echo returns a ConnFunc that responds to every query with the query itself.
func Echo() ConnFunc {
	return Respond(func(query []byte) []byte {
		return query
	})
}

// IP returns the IP address the server is listening on.
func (s *Server) IP() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the port the server is listening on.
func (s *Server) Port() uint16 {
	return uint16(s.listener.Addr().(*net.TCPAddr).Port)
}

// RootCAs returns a certificate pool containing the certificate authority that issued the server's certificate.
func (s *Server) RootCAs() *x509.CertPool {
	return s.roots
}

// WriteCAFile writes the PEM encoded certificate authority into a temporary directory and returns its path.
func (s *Server) WriteCAFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, s.caPEM, 0644))

	return path
}

// Accepted returns the number of TCP connections the server has accepted.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}

		if err != nil {
			continue
		}

		s.accepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()

			s.handler(conn)
		}()
	}
}

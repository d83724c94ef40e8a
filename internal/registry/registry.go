// Package registry holds the named HTTP clients built at startup.
package registry

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mtlsbridge/pkg/protocol"
)

var (
	// ErrUnknownClient is returned by Lookup for a name that was never registered.
	ErrUnknownClient = errors.New("unknown client")
	// ErrDuplicateClient is returned when two entries share a name.
	ErrDuplicateClient = errors.New("duplicate client name")
	// ErrEmptyName is returned for an entry without a name.
	ErrEmptyName = errors.New("client name is empty")
)

// Entry names one client configuration.
type Entry struct {
	Name   string
	Config protocol.ClientConfig
}

// Client is a configured HTTP client. It is immutable once built.
type Client struct {
	Name      string
	HTTP      *http.Client
	TLS       *tls.Config
	Identity  *protocol.Identity
	Transport protocol.Transport

	Timeout          time.Duration
	MaxResponseBytes int64

	// Limiter is nil when rate limiting is disabled.
	Limiter *rate.Limiter
}

func newClient(e Entry) (*Client, error) {
	httpClient, tlsCfg, err := protocol.NewClient(e.Config)
	if err != nil {
		return nil, err
	}

	transport := e.Config.Transport
	if transport == "" {
		transport = protocol.TransportHTTP
	}

	c := &Client{
		Name:             e.Name,
		HTTP:             httpClient,
		TLS:              tlsCfg,
		Identity:         protocol.IdentityOf(tlsCfg),
		Transport:        transport,
		Timeout:          e.Config.Timeout,
		MaxResponseBytes: e.Config.MaxResponseBytes,
	}

	if e.Config.RateLimit > 0 {
		burst := e.Config.Burst
		if burst <= 0 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(e.Config.RateLimit), burst)
	}

	return c, nil
}

type snapshot struct {
	clients map[string]*Client
	names   []string
}

func build(entries []Entry) (*snapshot, error) {
	s := &snapshot{clients: make(map[string]*Client, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return nil, ErrEmptyName
		}
		if _, ok := s.clients[e.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateClient, e.Name)
		}
		c, err := newClient(e)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", e.Name, err)
		}
		s.clients[e.Name] = c
		s.names = append(s.names, e.Name)
	}
	sort.Strings(s.names)
	return s, nil
}

func (s *snapshot) close() {
	for _, c := range s.clients {
		c.HTTP.CloseIdleConnections()
	}
}

// Registry maps client names to clients. Reads never block; Swap publishes a
// whole new set at once.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// Build creates every client in entries. Any failure aborts the whole build.
func Build(entries []Entry) (*Registry, error) {
	s, err := build(entries)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.current.Store(s)
	return r, nil
}

// Lookup returns the client registered under name.
func (r *Registry) Lookup(name string) (*Client, error) {
	if c, ok := r.current.Load().clients[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownClient, name)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.current.Load().names...)
}

// Clients returns the registered clients ordered by name.
func (r *Registry) Clients() []*Client {
	s := r.current.Load()
	out := make([]*Client, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.clients[name])
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.current.Load().names)
}

// Swap replaces the registered set. On error the current set is kept.
// In-flight calls keep using the client they looked up.
func (r *Registry) Swap(entries []Entry) error {
	s, err := build(entries)
	if err != nil {
		return err
	}
	old := r.current.Swap(s)
	old.close()
	return nil
}

// Close releases idle connections held by every client.
func (r *Registry) Close() {
	r.current.Load().close()
}

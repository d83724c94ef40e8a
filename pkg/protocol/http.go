package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Transport selects the HTTP implementation behind a client.
type Transport string

const (
	// TransportHTTP negotiates HTTP/1.1 or HTTP/2 through ALPN.
	TransportHTTP Transport = "http"
	// TransportHTTP2 speaks HTTP/2 only, over TLS.
	TransportHTTP2 Transport = "http2"
	// TransportH2C speaks HTTP/2 over cleartext TCP.
	TransportH2C Transport = "h2c"
)

// ParseTransport maps a config string to a Transport.
func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case "", TransportHTTP:
		return TransportHTTP, nil
	case TransportHTTP2, TransportH2C:
		return Transport(s), nil
	default:
		return "", fmt.Errorf("unknown transport %q", s)
	}
}

// NewClient builds the http.Client for cfg and returns the TLS settings it
// presents during handshakes.
func NewClient(cfg ClientConfig) (*http.Client, *tls.Config, error) {
	tlsCfg, err := cfg.TLS.BuildTLSConfig()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Transport {
	case "", TransportHTTP:
		return NewHTTPClient(cfg, tlsCfg), tlsCfg, nil
	case TransportHTTP2, TransportH2C:
		return NewHTTP2Client(cfg, tlsCfg), tlsCfg, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

// NewHTTPClient creates a client that negotiates HTTP/1.1 or HTTP/2.
func NewHTTPClient(cfg ClientConfig, tlsCfg *tls.Config) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer().DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsCfg,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{Transport: transport}
}

// NewHTTP2Client creates an HTTP/2-only client. For TransportH2C the
// connection is plain TCP and TLS material is ignored.
func NewHTTP2Client(cfg ClientConfig, tlsCfg *tls.Config) *http.Client {
	transport := &http2.Transport{
		TLSClientConfig: tlsCfg,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	if cfg.Transport == TransportH2C {
		transport.AllowHTTP = true
		transport.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer().DialContext(ctx, network, addr)
		}
	}

	return &http.Client{Transport: transport}
}

package protocol

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoCertificates is returned when a PEM trust anchor holds no certificate.
	ErrNoCertificates = errors.New("no certificates found in PEM data")
	// ErrNoPrivateKey is returned when an identity bundle lacks a key block.
	ErrNoPrivateKey = errors.New("identity bundle has no private key")
)

// TLSConfig holds PEM material for one client.
type TLSConfig struct {
	// RootCA is added to the system trust store.
	RootCA []byte

	// ClientCert is the identity chain. When ClientKey is empty it must be a
	// combined bundle that also carries the private key.
	ClientCert []byte
	ClientKey  []byte

	// DisableBuiltinRoots trusts RootCA only.
	DisableBuiltinRoots bool
}

// HasIdentity reports whether a client identity is configured.
func (c *TLSConfig) HasIdentity() bool {
	return c != nil && len(c.ClientCert) > 0
}

// Identity summarizes the leaf certificate a client presents.
type Identity struct {
	Subject  string    `json:"subject"`
	Issuer   string    `json:"issuer"`
	NotAfter time.Time `json:"not_after"`
}

// BuildTLSConfig turns PEM material into a client tls.Config.
// A nil receiver yields a config that uses the system roots.
func (c *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c == nil {
		return cfg, nil
	}

	if len(c.RootCA) > 0 || c.DisableBuiltinRoots {
		pool, err := c.rootPool()
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if c.HasIdentity() {
		cert, err := c.keyPair()
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	} else if len(c.ClientKey) > 0 {
		return nil, errors.New("client key given without a certificate")
	}

	return cfg, nil
}

func (c *TLSConfig) rootPool() (*x509.CertPool, error) {
	var pool *x509.CertPool
	if !c.DisableBuiltinRoots {
		sys, err := x509.SystemCertPool()
		if err == nil && sys != nil {
			pool = sys
		}
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}

	if len(c.RootCA) == 0 {
		return nil, fmt.Errorf("root CA: %w", ErrNoCertificates)
	}
	if !pool.AppendCertsFromPEM(c.RootCA) {
		return nil, fmt.Errorf("root CA: %w", ErrNoCertificates)
	}
	return pool, nil
}

func (c *TLSConfig) keyPair() (tls.Certificate, error) {
	certPEM, keyPEM := c.ClientCert, c.ClientKey
	if len(keyPEM) == 0 {
		var err error
		certPEM, keyPEM, err = splitBundle(c.ClientCert)
		if err != nil {
			return tls.Certificate{}, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("client identity: %w", err)
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("client identity: %w", err)
		}
		cert.Leaf = leaf
	}
	return cert, nil
}

// splitBundle separates certificate blocks from the private key block.
func splitBundle(bundle []byte) (certPEM, keyPEM []byte, err error) {
	var certs, key bytes.Buffer
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			if err := pem.Encode(&certs, block); err != nil {
				return nil, nil, err
			}
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if key.Len() > 0 {
				return nil, nil, errors.New("identity bundle has more than one private key")
			}
			if err := pem.Encode(&key, block); err != nil {
				return nil, nil, err
			}
		}
	}
	if certs.Len() == 0 {
		return nil, nil, fmt.Errorf("client identity: %w", ErrNoCertificates)
	}
	if key.Len() == 0 {
		return nil, nil, ErrNoPrivateKey
	}
	return certs.Bytes(), key.Bytes(), nil
}

// IdentityOf describes the first certificate in cfg, or returns nil.
func IdentityOf(cfg *tls.Config) *Identity {
	if cfg == nil || len(cfg.Certificates) == 0 {
		return nil
	}
	leaf := cfg.Certificates[0].Leaf
	if leaf == nil {
		return nil
	}
	return &Identity{
		Subject:  leaf.Subject.String(),
		Issuer:   leaf.Issuer.String(),
		NotAfter: leaf.NotAfter,
	}
}

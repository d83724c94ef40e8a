package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mtlsbridge/pkg/protocol"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the syntax from a file extension; YAML is the default.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads and parses a configuration file. Relative certificate paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(abs)
	return cfg, nil
}

// Parse decodes configuration data. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := DefaultConfig()

	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("failed to parse config file: unknown keys %s", strings.Join(keys, ", "))
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks the configuration for errors and fills per-client defaults.
func validate(cfg *Config) error {
	if len(cfg.Clients) == 0 {
		return fmt.Errorf("at least one client is required")
	}

	seen := make(map[string]bool, len(cfg.Clients))
	for i := range cfg.Clients {
		c := &cfg.Clients[i]
		if c.Name == "" {
			return fmt.Errorf("clients[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("clients[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true

		tr, err := protocol.ParseTransport(c.Transport)
		if err != nil {
			return fmt.Errorf("client %q: %w", c.Name, err)
		}
		c.Transport = string(tr)

		if c.Timeout == 0 {
			c.Timeout = 30 * time.Second
		}
		if c.MaxIdleConns <= 0 {
			c.MaxIdleConns = 100
		}
		if c.IdleConnTimeout <= 0 {
			c.IdleConnTimeout = 90 * time.Second
		}
		if c.RateLimit < 0 {
			return fmt.Errorf("client %q: rate_limit must not be negative", c.Name)
		}
		if c.MaxResponseBytes < 0 {
			return fmt.Errorf("client %q: max_response_bytes must not be negative", c.Name)
		}

		if err := validateTLS(c.TLS); err != nil {
			return fmt.Errorf("client %q: %w", c.Name, err)
		}

		if c.Probe.URL != "" {
			switch c.Probe.Protocol {
			case "":
				c.Probe.Protocol = ProbeHTTP
			case ProbeHTTP, ProbeGRPC:
			default:
				return fmt.Errorf("client %q: unknown probe protocol %q", c.Name, c.Probe.Protocol)
			}
			if c.Probe.Protocol == ProbeHTTP {
				if u, err := url.Parse(c.Probe.URL); err != nil || u.Scheme == "" || u.Host == "" {
					return fmt.Errorf("client %q: probe url %q is not absolute", c.Name, c.Probe.URL)
				}
			}
		}
	}

	if cfg.Health.Enabled && cfg.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	if cfg.Health.Timeout <= 0 {
		cfg.Health.Timeout = 5 * time.Second
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	switch cfg.Logging.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.encoding must be console or json")
	}

	return nil
}

func validateTLS(t *TLS) error {
	if t == nil {
		return nil
	}
	if t.RootCA != "" && t.RootCAFile != "" {
		return fmt.Errorf("tls: root_ca and root_ca_file are exclusive")
	}
	if t.Cert != "" && t.CertFile != "" {
		return fmt.Errorf("tls: cert and cert_file are exclusive")
	}
	if t.Key != "" && t.KeyFile != "" {
		return fmt.Errorf("tls: key and key_file are exclusive")
	}
	hasCert := t.Cert != "" || t.CertFile != ""
	hasKey := t.Key != "" || t.KeyFile != ""
	if t.IdentityFile != "" && (hasCert || hasKey) {
		return fmt.Errorf("tls: identity_file excludes cert and key")
	}
	if hasKey && !hasCert {
		return fmt.Errorf("tls: key given without cert")
	}
	return nil
}

// NamedClient is a client with its certificate material loaded.
type NamedClient struct {
	Name   string
	Config protocol.ClientConfig
}

// LoadClients reads every referenced certificate file and returns the
// programmatic client configurations.
func (c *Config) LoadClients() ([]NamedClient, error) {
	out := make([]NamedClient, 0, len(c.Clients))
	for _, cl := range c.Clients {
		tlsCfg, err := c.loadTLS(cl.TLS)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", cl.Name, err)
		}

		timeout := cl.Timeout
		if timeout < 0 {
			timeout = 0
		}

		out = append(out, NamedClient{
			Name: cl.Name,
			Config: protocol.ClientConfig{
				TLS:              tlsCfg,
				Transport:        protocol.Transport(cl.Transport),
				MaxIdleConns:     cl.MaxIdleConns,
				IdleConnTimeout:  cl.IdleConnTimeout,
				Timeout:          timeout,
				RateLimit:        cl.RateLimit,
				Burst:            cl.Burst,
				MaxResponseBytes: cl.MaxResponseBytes,
			},
		})
	}
	return out, nil
}

func (c *Config) loadTLS(t *TLS) (*protocol.TLSConfig, error) {
	if t == nil {
		return nil, nil
	}

	out := &protocol.TLSConfig{DisableBuiltinRoots: t.DisableBuiltinRoots}
	var err error
	if out.RootCA, err = c.material(t.RootCA, t.RootCAFile); err != nil {
		return nil, fmt.Errorf("root CA: %w", err)
	}
	if t.IdentityFile != "" {
		if out.ClientCert, err = c.material("", t.IdentityFile); err != nil {
			return nil, fmt.Errorf("identity: %w", err)
		}
		return out, nil
	}
	if out.ClientCert, err = c.material(t.Cert, t.CertFile); err != nil {
		return nil, fmt.Errorf("cert: %w", err)
	}
	if out.ClientKey, err = c.material(t.Key, t.KeyFile); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	return out, nil
}

func (c *Config) material(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) && c.baseDir != "" {
		path = filepath.Join(c.baseDir, path)
	}
	return os.ReadFile(path)
}

// Probes returns the configured probe of every client that has one.
func (c *Config) Probes() map[string]Probe {
	out := make(map[string]Probe)
	for _, cl := range c.Clients {
		if cl.Probe.URL != "" {
			out[cl.Name] = cl.Probe
		}
	}
	return out
}

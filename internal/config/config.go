package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Clients []Client `yaml:"clients" toml:"clients"`
	Daemon  Daemon   `yaml:"daemon" toml:"daemon"`
	Health  Health   `yaml:"health" toml:"health"`
	Metrics Metrics  `yaml:"metrics" toml:"metrics"`
	Logging Logging  `yaml:"logging" toml:"logging"`

	// baseDir resolves relative certificate paths.
	baseDir string
}

// Client defines one named HTTP client.
type Client struct {
	Name      string `yaml:"name" toml:"name"`
	Transport string `yaml:"transport" toml:"transport"`
	TLS       *TLS   `yaml:"tls,omitempty" toml:"tls"`

	// Timeout bounds each call; a negative value disables it.
	Timeout          time.Duration `yaml:"timeout" toml:"timeout"`
	MaxIdleConns     int           `yaml:"max_idle_conns" toml:"max_idle_conns"`
	IdleConnTimeout  time.Duration `yaml:"idle_conn_timeout" toml:"idle_conn_timeout"`
	RateLimit        float64       `yaml:"rate_limit" toml:"rate_limit"`
	Burst            int           `yaml:"burst" toml:"burst"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" toml:"max_response_bytes"`

	Probe Probe `yaml:"probe,omitempty" toml:"probe"`
}

// TLS holds certificate material as file paths or inline PEM.
type TLS struct {
	RootCA     string `yaml:"root_ca,omitempty" toml:"root_ca"`
	RootCAFile string `yaml:"root_ca_file,omitempty" toml:"root_ca_file"`

	// IdentityFile is a PEM bundle with the chain and the private key.
	IdentityFile string `yaml:"identity_file,omitempty" toml:"identity_file"`
	Cert         string `yaml:"cert,omitempty" toml:"cert"`
	CertFile     string `yaml:"cert_file,omitempty" toml:"cert_file"`
	Key          string `yaml:"key,omitempty" toml:"key"`
	KeyFile      string `yaml:"key_file,omitempty" toml:"key_file"`

	DisableBuiltinRoots bool `yaml:"disable_builtin_roots,omitempty" toml:"disable_builtin_roots"`
}

// ProbeProtocol selects how a client is health checked.
type ProbeProtocol string

const (
	ProbeHTTP ProbeProtocol = "http"
	ProbeGRPC ProbeProtocol = "grpc"
)

// Probe configures an optional health check through the client.
type Probe struct {
	URL      string        `yaml:"url,omitempty" toml:"url"`
	Protocol ProbeProtocol `yaml:"protocol,omitempty" toml:"protocol"`
	// Plaintext disables TLS for gRPC probes.
	Plaintext bool `yaml:"plaintext,omitempty" toml:"plaintext"`
}

// Daemon configures the background host process.
type Daemon struct {
	RuntimeDir      string        `yaml:"runtime_dir" toml:"runtime_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Health configures the health checker.
type Health struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
}

// Metrics configures Prometheus metrics.
type Metrics struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Address string `yaml:"address" toml:"address"`
	Path    string `yaml:"path" toml:"path"`
}

// Logging configures the zap logger.
type Logging struct {
	Level    string `yaml:"level" toml:"level"`
	Encoding string `yaml:"encoding" toml:"encoding"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Daemon: Daemon{
			ShutdownTimeout: 10 * time.Second,
		},
		Health: Health{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		Metrics: Metrics{
			Enabled: false,
			Address: "127.0.0.1:9464",
			Path:    "/metrics",
		},
		Logging: Logging{
			Level:    "info",
			Encoding: "console",
		},
	}
}

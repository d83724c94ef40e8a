package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlsbridge/internal/testutil"
	"github.com/mtlsbridge/pkg/protocol"
)

const sampleYAML = `
clients:
  - name: billing
    transport: http2
    timeout: 5s
    rate_limit: 20
    burst: 5
    tls:
      root_ca_file: ca.pem
      identity_file: billing.pem
    probe:
      url: https://billing.internal/healthz
  - name: public
    timeout: -1s
health:
  interval: 1m
metrics:
  enabled: true
  address: 127.0.0.1:9999
logging:
  level: debug
  encoding: json
`

const sampleTOML = `
[[clients]]
name = "billing"
transport = "http2"
timeout = "5s"
rate_limit = 20.0
burst = 5

[clients.tls]
root_ca_file = "ca.pem"
identity_file = "billing.pem"

[clients.probe]
url = "https://billing.internal/healthz"

[[clients]]
name = "public"
timeout = "-1s"

[health]
interval = "1m"

[metrics]
enabled = true
address = "127.0.0.1:9999"

[logging]
level = "debug"
encoding = "json"
`

func writeFiles(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
	return dir
}

func TestLoadYAMLAndTOML(t *testing.T) {
	ca := testutil.NewCA(t, "cfg-ca")
	leaf := ca.IssueClient(t, "billing")

	for name, content := range map[string]string{"bridge.yaml": sampleYAML, "bridge.toml": sampleTOML} {
		t.Run(name, func(t *testing.T) {
			dir := writeFiles(t, map[string][]byte{
				name:          []byte(content),
				"ca.pem":      ca.CertPEM,
				"billing.pem": leaf.Bundle(),
			})

			cfg, err := Load(filepath.Join(dir, name))
			require.NoError(t, err)

			require.Len(t, cfg.Clients, 2)
			billing := cfg.Clients[0]
			assert.Equal(t, "http2", billing.Transport)
			assert.Equal(t, 5*time.Second, billing.Timeout)
			assert.Equal(t, 100, billing.MaxIdleConns)
			assert.Equal(t, 90*time.Second, billing.IdleConnTimeout)
			assert.Equal(t, ProbeHTTP, billing.Probe.Protocol)

			public := cfg.Clients[1]
			assert.Equal(t, "http", public.Transport)

			assert.Equal(t, time.Minute, cfg.Health.Interval)
			assert.True(t, cfg.Metrics.Enabled)
			assert.Equal(t, "/metrics", cfg.Metrics.Path)
			assert.Equal(t, "json", cfg.Logging.Encoding)

			clients, err := cfg.LoadClients()
			require.NoError(t, err)
			require.Len(t, clients, 2)
			assert.Equal(t, ca.CertPEM, clients[0].Config.TLS.RootCA)
			assert.Equal(t, leaf.Bundle(), clients[0].Config.TLS.ClientCert)
			assert.Empty(t, clients[0].Config.TLS.ClientKey)
			assert.Equal(t, protocol.TransportHTTP2, clients[0].Config.Transport)
			assert.Equal(t, float64(20), clients[0].Config.RateLimit)
			assert.Nil(t, clients[1].Config.TLS)
			assert.Zero(t, clients[1].Config.Timeout)

			assert.Equal(t, map[string]Probe{"billing": billing.Probe}, cfg.Probes())
		})
	}
}

func TestParseInlinePEM(t *testing.T) {
	ca := testutil.NewCA(t, "cfg-ca")
	leaf := ca.IssueClient(t, "inline")

	cfg := DefaultConfig()
	cfg.Clients = []Client{{
		Name: "inline",
		TLS:  &TLS{RootCA: string(ca.CertPEM), Cert: string(leaf.CertPEM), Key: string(leaf.KeyPEM)},
	}}
	require.NoError(t, validate(cfg))

	clients, err := cfg.LoadClients()
	require.NoError(t, err)
	assert.Equal(t, leaf.KeyPEM, clients[0].Config.TLS.ClientKey)

	_, _, err = protocol.NewClient(clients[0].Config)
	assert.NoError(t, err)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no clients", "health:\n  enabled: false\n"},
		{"empty document", ""},
		{"unknown key", "clients:\n  - name: a\n    colour: red\n"},
		{"missing name", "clients:\n  - transport: http\n"},
		{"duplicate name", "clients:\n  - name: a\n  - name: a\n"},
		{"bad transport", "clients:\n  - name: a\n    transport: quic\n"},
		{"bad probe protocol", "clients:\n  - name: a\n    probe:\n      url: https://x.test\n      protocol: icmp\n"},
		{"relative probe url", "clients:\n  - name: a\n    probe:\n      url: /health\n"},
		{"identity and cert", "clients:\n  - name: a\n    tls:\n      identity_file: a.pem\n      cert_file: b.pem\n"},
		{"key without cert", "clients:\n  - name: a\n    tls:\n      key: k\n"},
		{"bad encoding", "clients:\n  - name: a\nlogging:\n  encoding: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), FormatYAML)
			assert.Error(t, err)
		})
	}
}

func TestParseTOMLUnknownKey(t *testing.T) {
	_, err := Parse([]byte("[[clients]]\nname = \"a\"\ncolour = \"red\"\n"), FormatTOML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clients.colour")
}

func TestLoadClientsMissingFile(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{
		"c.yaml": []byte("clients:\n  - name: a\n    tls:\n      root_ca_file: missing.pem\n"),
	})
	cfg, err := Load(filepath.Join(dir, "c.yaml"))
	require.NoError(t, err)

	_, err = cfg.LoadClients()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `client "a"`)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatFor("/etc/bridge.TOML"))
	assert.Equal(t, FormatYAML, FormatFor("bridge.yml"))
	assert.Equal(t, FormatYAML, FormatFor("bridge"))
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlsbridge/internal/testutil"
	"github.com/mtlsbridge/internal/tui"
	"github.com/mtlsbridge/pkg/protocol"
)

func TestRequestFlagsBuild(t *testing.T) {
	req, err := requestFlags{
		headers: []string{"Accept: application/json", "x-trace: 1"},
		query:   []string{"page=2", "q=a=b"},
		json:    `{"id":1}`,
	}.build("https://api.test/items")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://api.test/items", req.URL)
	assert.Equal(t, map[string]string{"Accept": "application/json", "x-trace": "1"}, req.Headers)
	assert.Equal(t, map[string]string{"page": "2", "q": "a=b"}, req.Query)
	assert.Equal(t, protocol.JSONBody{Value: json.RawMessage(`{"id":1}`)}, req.Body)
	assert.Equal(t, protocol.ResponseType(0), req.ResponseType)
}

func TestRequestFlagsBodies(t *testing.T) {
	req, err := requestFlags{}.build("https://api.test")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Nil(t, req.Body)

	req, err = requestFlags{method: "put", data: "hello", responseType: "binary"}.build("https://api.test")
	require.NoError(t, err)
	assert.Equal(t, "put", req.Method)
	assert.Equal(t, protocol.TextBody{Text: "hello"}, req.Body)
	assert.Equal(t, protocol.ResponseBinary, req.ResponseType)

	req, err = requestFlags{form: []string{"a=1", "b=2"}}.build("https://api.test")
	require.NoError(t, err)
	form, ok := req.Body.(protocol.FormBody)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":"1","b":"2"}`, string(form.Payload))
}

func TestRequestFlagsRejects(t *testing.T) {
	tests := []struct {
		name  string
		flags requestFlags
	}{
		{"two bodies", requestFlags{data: "x", json: "{}"}},
		{"bad json", requestFlags{json: "{"}},
		{"bad header", requestFlags{headers: []string{"no-colon"}}},
		{"empty header name", requestFlags{headers: []string{": v"}}},
		{"bad query", requestFlags{query: []string{"novalue"}}},
		{"bad form", requestFlags{form: []string{"x"}}},
		{"bad response type", requestFlags{responseType: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flags.build("https://api.test")
			assert.Error(t, err)
		})
	}
}

func TestPrintResponse(t *testing.T) {
	resp := &protocol.Response{
		Status:  404,
		Headers: map[string]string{"x-b": "2", "content-type": "text/plain"},
		Body:    "missing",
	}

	var buf bytes.Buffer
	require.NoError(t, printResponse(&buf, resp, false))
	assert.JSONEq(t, `{"status":404,"headers":{"x-b":"2","content-type":"text/plain"},"body":"missing"}`, buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	buf.Reset()
	require.NoError(t, printResponse(&buf, resp, true))
	out := buf.String()
	assert.Contains(t, out, "404 Not Found")
	assert.Less(t, strings.Index(out, "content-type"), strings.Index(out, "x-b"))
	assert.Contains(t, out, "missing")
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, expiry(now.Add(-time.Hour), now), "expired")
	assert.Contains(t, expiry(now.Add(10*24*time.Hour+time.Hour), now), "10 days left")
	assert.Equal(t, "2027-01-01", expiry(now.AddDate(1, 0, 0), now))
}

func TestColorizeLogLine(t *testing.T) {
	warn := "2026-01-01T00:00:00.000Z\tWARN\tdispatch\trequest failed"
	assert.Contains(t, colorizeLogLine(warn), warn)
	assert.Equal(t, tui.WarningStyle.GetForeground(), logLineStyle(warn).GetForeground())

	tests := []struct {
		line string
		want lipgloss.Style
	}{
		{"2026-01-01T00:00:00.000Z\tERROR\tdispatch\tboom", tui.ErrorStyle},
		{`{"level":"warn","msg":"slow"}`, tui.WarningStyle},
		{"2026-01-01T00:00:00.000Z\tINFO\tdaemon\tdaemon started", tui.SuccessStyle},
		{"2026-01-01T00:00:00.000Z\tINFO\thealth\tclient is healthy", tui.DimStyle},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want.GetForeground(), logLineStyle(tt.line).GetForeground(), tt.line)
	}
}

func TestTailLogs(t *testing.T) {
	logs := "one\ntwo\nthree\n"

	var buf bytes.Buffer
	require.NoError(t, tailLogs(&buf, strings.NewReader(logs), 2))
	assert.Equal(t, []string{"two", "three"}, strings.Fields(buf.String()))

	buf.Reset()
	require.NoError(t, tailLogs(&buf, strings.NewReader(logs), 10))
	assert.Equal(t, []string{"one", "two", "three"}, strings.Fields(buf.String()))

	buf.Reset()
	require.NoError(t, tailLogs(&buf, strings.NewReader(logs), 0))
	assert.Empty(t, buf.String())
}

func TestLogsRejectsNegativeTail(t *testing.T) {
	t.Cleanup(func() { logsTail = 20 })
	_, err := execute(t, "logs", "--runtime-dir", t.TempDir(), "-n", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func writeConfig(t *testing.T) (cfgPath string, url string) {
	t.Helper()
	ca := testutil.NewCA(t, "cli-ca")
	srv := testutil.NewTLSServer(t, ca, true, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"peer":%q,"method":%q,"body":%q}`, testutil.PeerName(r), r.Method, body)
	}))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ca.pem"), ca.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.pem"), ca.IssueClient(t, "ops").Bundle(), 0o600))
	cfgPath = filepath.Join(dir, "bridge.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[[clients]]
name = "ops"

[clients.tls]
root_ca_file = "ca.pem"
identity_file = "ops.pem"

[health]
enabled = false

[logging]
level = "error"
`), 0o600))
	return cfgPath, srv.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "validate", "--config", cfgPath, "--runtime-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath)
	assert.Contains(t, out, "ops")
	assert.Contains(t, out, "CN=ops")

	_, err = execute(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSendCommandLocal(t *testing.T) {
	cfgPath, url := writeConfig(t)

	out, err := execute(t, "send", "--config", cfgPath, "--runtime-dir", t.TempDir(),
		"--client", "ops", "--data", "ping", "--compact", url)
	require.NoError(t, err)

	var resp struct {
		Status int               `json:"status"`
		Body   map[string]string `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, map[string]string{"peer": "ops", "method": "POST", "body": "ping"}, resp.Body)
}

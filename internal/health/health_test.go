package health

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mtlsbridge/internal/config"
	"github.com/mtlsbridge/internal/registry"
	"github.com/mtlsbridge/internal/testutil"
	"github.com/mtlsbridge/pkg/protocol"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestMetricsRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRequest("billing", "ok", 204, 20*time.Millisecond)
	m.RecordRequest("billing", "json", 200, 30*time.Millisecond)
	m.RecordRequest("billing", "network", 0, time.Second)

	total := family(t, reg, "mtlsbridge_requests_total")
	counts := map[string]float64{}
	for _, metric := range total.GetMetric() {
		counts[labelValue(metric, "outcome")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"ok": 1, "json": 1, "network": 1}, counts)

	status := family(t, reg, "mtlsbridge_response_status_total")
	require.Len(t, status.GetMetric(), 1)
	assert.Equal(t, "2xx", labelValue(status.GetMetric()[0], "class"))
	assert.Equal(t, float64(2), status.GetMetric()[0].GetCounter().GetValue())

	s := m.Stats().Snapshot()["billing"]
	assert.Equal(t, int64(3), s.Requests)
	assert.Equal(t, int64(2), s.Errors)
	assert.InDelta(t, 1000, s.MaxMs, 5)
}

func TestMetricsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetRegisteredClients(3)
	m.SetClientHealth("a", false)
	m.IncRequestsInFlight()
	m.IncRequestsInFlight()
	m.DecRequestsInFlight()

	assert.Equal(t, float64(3), family(t, reg, "mtlsbridge_registered_clients").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, float64(0), family(t, reg, "mtlsbridge_client_health").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, float64(1), family(t, reg, "mtlsbridge_requests_in_flight").GetMetric()[0].GetGauge().GetValue())
}

func TestStatsPercentiles(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 100; i++ {
		s.Record("c", time.Duration(i)*time.Millisecond, false)
	}
	s.Record("c", time.Hour, true)

	sum := s.Snapshot()["c"]
	assert.Equal(t, int64(101), sum.Requests)
	assert.Equal(t, int64(1), sum.Errors)
	assert.InDelta(t, 50, sum.P50Ms, 2)
	assert.InDelta(t, 95, sum.P95Ms, 2)
	// Observations above the tracked range are clamped.
	assert.InDelta(t, 600000, sum.MaxMs, 1000)
}

func TestCheckerHTTPProbe(t *testing.T) {
	ca := testutil.NewCA(t, "health-ca")
	var healthy atomic.Bool
	healthy.Store(true)
	srv := testutil.NewTLSServer(t, ca, true, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	reg, err := registry.Build([]registry.Entry{
		{Name: "good", Config: protocol.ClientConfig{TLS: &protocol.TLSConfig{RootCA: ca.CertPEM, ClientCert: ca.IssueClient(t, "good").Bundle()}}},
		{Name: "no-identity", Config: protocol.ClientConfig{TLS: &protocol.TLSConfig{RootCA: ca.CertPEM}}},
	})
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	checker := NewChecker(config.Health{Enabled: true, Interval: time.Hour, Timeout: 2 * time.Second}, map[string]config.Probe{
		"good":        {URL: srv.URL, Protocol: config.ProbeHTTP},
		"no-identity": {URL: srv.URL, Protocol: config.ProbeHTTP},
		"missing":     {URL: srv.URL, Protocol: config.ProbeHTTP},
	}, reg, metrics, nil)

	checker.CheckAll(context.Background())
	assert.Equal(t, map[string]bool{"good": true, "no-identity": false, "missing": false}, checker.Statuses())

	healthy.Store(false)
	checker.CheckAll(context.Background())
	ok, known := checker.IsHealthy("good")
	assert.True(t, known)
	assert.False(t, ok)

	_, known = checker.IsHealthy("never")
	assert.False(t, known)
}

func TestCheckerSetProbes(t *testing.T) {
	ca := testutil.NewCA(t, "health-ca")
	srv := testutil.NewTLSServer(t, ca, true, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	reg, err := registry.Build([]registry.Entry{
		{Name: "kept", Config: protocol.ClientConfig{TLS: &protocol.TLSConfig{RootCA: ca.CertPEM, ClientCert: ca.IssueClient(t, "kept").Bundle()}}},
		{Name: "added", Config: protocol.ClientConfig{TLS: &protocol.TLSConfig{RootCA: ca.CertPEM, ClientCert: ca.IssueClient(t, "added").Bundle()}}},
	})
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)
	checker := NewChecker(config.Health{Enabled: true, Interval: time.Hour, Timeout: 2 * time.Second}, map[string]config.Probe{
		"kept":    {URL: srv.URL, Protocol: config.ProbeHTTP},
		"removed": {URL: srv.URL, Protocol: config.ProbeHTTP},
	}, reg, metrics, nil)

	checker.CheckAll(context.Background())
	assert.Equal(t, map[string]bool{"kept": true, "removed": false}, checker.Statuses())
	assert.Len(t, family(t, promReg, "mtlsbridge_client_health").GetMetric(), 2)

	checker.SetProbes(map[string]config.Probe{
		"kept":  {URL: srv.URL, Protocol: config.ProbeHTTP},
		"added": {URL: srv.URL, Protocol: config.ProbeHTTP},
	})
	assert.Equal(t, map[string]bool{"kept": true}, checker.Statuses())

	checker.CheckAll(context.Background())
	assert.Equal(t, map[string]bool{"kept": true, "added": true}, checker.Statuses())

	var labels []string
	for _, m := range family(t, promReg, "mtlsbridge_client_health").GetMetric() {
		labels = append(labels, labelValue(m, "client"))
	}
	assert.ElementsMatch(t, []string{"kept", "added"}, labels)
}

func TestCheckerStartsWithoutProbes(t *testing.T) {
	ca := testutil.NewCA(t, "health-ca")
	srv := testutil.NewTLSServer(t, ca, true, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	reg, err := registry.Build([]registry.Entry{
		{Name: "late", Config: protocol.ClientConfig{TLS: &protocol.TLSConfig{RootCA: ca.CertPEM, ClientCert: ca.IssueClient(t, "late").Bundle()}}},
	})
	require.NoError(t, err)

	checker := NewChecker(config.Health{Enabled: true, Interval: 20 * time.Millisecond, Timeout: 2 * time.Second}, nil, reg, nil, nil)
	checker.Start(context.Background())
	t.Cleanup(checker.Stop)

	checker.SetProbes(map[string]config.Probe{"late": {URL: srv.URL, Protocol: config.ProbeHTTP}})
	assert.Eventually(t, func() bool {
		ok, _ := checker.IsHealthy("late")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCheckerGRPCProbe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, grpchealth.NewServer())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	reg, err := registry.Build([]registry.Entry{{Name: "rpc"}})
	require.NoError(t, err)

	checker := NewChecker(config.Health{Enabled: true, Interval: 50 * time.Millisecond, Timeout: 2 * time.Second}, map[string]config.Probe{
		"rpc": {URL: lis.Addr().String(), Protocol: config.ProbeGRPC, Plaintext: true},
	}, reg, nil, nil)

	checker.Start(context.Background())
	t.Cleanup(checker.Stop)

	assert.Eventually(t, func() bool {
		ok, _ := checker.IsHealthy("rpc")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCheckerDisabled(t *testing.T) {
	reg, err := registry.Build(nil)
	require.NoError(t, err)
	checker := NewChecker(config.Health{Enabled: false}, map[string]config.Probe{"x": {URL: "https://x.test"}}, reg, nil, nil)
	checker.Start(context.Background())
	checker.Stop()
	assert.Empty(t, checker.Statuses())
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetRegisteredClients(2)

	var notReady atomic.Bool
	notReady.Store(true)
	s := NewServer(config.Metrics{Address: "127.0.0.1:0", Path: "/metrics"}, reg, func() error {
		if notReady.Load() {
			return errors.New("registry not built")
		}
		return nil
	}, nil)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	notReady.Store(false)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "mtlsbridge_registered_clients 2")
}

package health

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mtlsbridge/internal/config"
	"github.com/mtlsbridge/internal/registry"
	"github.com/mtlsbridge/pkg/protocol"
)

const maxConcurrentProbes = 8

type grpcProber struct {
	tls    *tls.Config
	prober *protocol.GRPCProber
}

// Checker periodically probes clients through their own identity.
type Checker struct {
	cfg      config.Health
	registry *registry.Registry
	metrics  *Metrics
	logger   *zap.Logger

	mu       sync.RWMutex
	probes   map[string]config.Probe
	statuses map[string]bool
	grpc     map[string]grpcProber

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChecker creates a health checker for the clients named in probes.
func NewChecker(cfg config.Health, probes map[string]config.Probe, reg *registry.Registry, metrics *Metrics, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:      cfg,
		probes:   probes,
		registry: reg,
		metrics:  metrics,
		logger:   logger.Named("health"),
		statuses: make(map[string]bool),
		grpc:     make(map[string]grpcProber),
	}
}

// Start runs one round immediately and then one per interval.
func (c *Checker) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// run is the main health check loop.
func (c *Checker) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll probes every configured client once.
func (c *Checker) CheckAll(ctx context.Context) {
	c.mu.RLock()
	probes := make(map[string]config.Probe, len(c.probes))
	for name, probe := range c.probes {
		probes[name] = probe
	}
	c.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)

	for name, probe := range probes {
		g.Go(func() error {
			c.checkClient(ctx, name, probe)
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Checker) checkClient(ctx context.Context, name string, probe config.Probe) {
	checkCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var err error
	client, lookupErr := c.registry.Lookup(name)
	switch {
	case lookupErr != nil:
		err = lookupErr
	case probe.Protocol == config.ProbeGRPC:
		err = c.grpcProber(client, probe.Plaintext).Probe(checkCtx, probe.URL)
	default:
		err = probeHTTP(checkCtx, client, probe.URL)
	}
	healthy := err == nil

	c.mu.Lock()
	if _, ok := c.probes[name]; !ok {
		// Dropped by SetProbes while the probe was running.
		c.mu.Unlock()
		return
	}
	prev, seen := c.statuses[name]
	c.statuses[name] = healthy
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetClientHealth(name, healthy)
	}

	// Log status changes
	if !seen || prev != healthy {
		if healthy {
			c.logger.Info("client is healthy", zap.String("client", name))
		} else {
			c.logger.Warn("client is unhealthy", zap.String("client", name), zap.Error(err))
		}
	}
}

func probeHTTP(ctx context.Context, client *registry.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// grpcProber returns a prober bound to the client's current TLS settings.
func (c *Checker) grpcProber(client *registry.Client, plaintext bool) *protocol.GRPCProber {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.grpc[client.Name]; ok && p.tls == client.TLS {
		return p.prober
	} else if ok {
		p.prober.Close()
	}

	p := grpcProber{tls: client.TLS, prober: protocol.NewGRPCProber(client.TLS, plaintext)}
	c.grpc[client.Name] = p
	return p.prober
}

// SetProbes replaces the probed clients. Results and gauges of clients that
// are no longer probed are dropped. The next round uses the new set.
func (c *Checker) SetProbes(probes map[string]config.Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.probes = probes
	for name := range c.statuses {
		if _, ok := probes[name]; ok {
			continue
		}
		delete(c.statuses, name)
		if c.metrics != nil {
			c.metrics.DeleteClientHealth(name)
		}
	}
	for name, p := range c.grpc {
		if _, ok := probes[name]; !ok {
			p.prober.Close()
			delete(c.grpc, name)
		}
	}
}

// IsHealthy reports the last probe result and whether the client was probed.
func (c *Checker) IsHealthy(name string) (healthy, known bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	healthy, known = c.statuses[name]
	return healthy, known
}

// Statuses returns a copy of the last result per client.
func (c *Checker) Statuses() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]bool, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

// Stop stops the health checker and waits for the loop to exit.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.grpc {
		p.prober.Close()
	}
	c.grpc = make(map[string]grpcProber)
}

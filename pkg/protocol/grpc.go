package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ErrNotServing is returned when a gRPC health check answers anything but SERVING.
var ErrNotServing = errors.New("grpc service not serving")

// GRPCProber runs gRPC health checks with a client's TLS identity.
type GRPCProber struct {
	tls       *tls.Config
	plaintext bool

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCProber creates a prober. A nil tlsCfg uses the system roots;
// plaintext disables transport security entirely.
func NewGRPCProber(tlsCfg *tls.Config, plaintext bool) *GRPCProber {
	return &GRPCProber{
		tls:       tlsCfg,
		plaintext: plaintext,
		conns:     make(map[string]*grpc.ClientConn),
	}
}

// getConn returns a cached connection or creates a new one.
func (p *GRPCProber) getConn(target string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[target]; ok {
		return conn, nil
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if p.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		cfg := p.tls
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(cfg.Clone())))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}

	p.conns[target] = conn
	return conn, nil
}

// Probe checks overall server health at target.
func (p *GRPCProber) Probe(ctx context.Context, target string) error {
	conn, err := p.getConn(target)
	if err != nil {
		return err
	}

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{
		Service: "", // empty string means overall server health
	})
	if err != nil {
		return err
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return ErrNotServing
	}
	return nil
}

// Close releases all connections.
func (p *GRPCProber) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, conn := range p.conns {
		errs = append(errs, conn.Close())
	}
	p.conns = make(map[string]*grpc.ClientConn)
	return errors.Join(errs...)
}

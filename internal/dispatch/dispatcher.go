// Package dispatch turns request descriptors into HTTP calls on a named
// client and marshals the results.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mtlsbridge/internal/health"
	"github.com/mtlsbridge/internal/registry"
	"github.com/mtlsbridge/pkg/protocol"
)

// Dispatcher sends requests through the clients of a registry.
// It is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	metrics  *health.Metrics
	logger   *zap.Logger
}

// New creates a dispatcher. metrics and logger may be nil.
func New(reg *registry.Registry, metrics *health.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: reg,
		metrics:  metrics,
		logger:   logger.Named("dispatch"),
	}
}

// Send performs one call through the client registered as clientName.
// It returns either a complete response or exactly one *Error.
func (d *Dispatcher) Send(ctx context.Context, clientName string, req *protocol.Request) (*protocol.Response, error) {
	start := time.Now()
	id := uuid.NewString()

	client, err := d.registry.Lookup(clientName)
	if err != nil {
		return nil, d.fail(id, clientName, req, start, 0, newError(KindClient, err))
	}

	httpReq, err := Translate(ctx, req)
	if err != nil {
		return nil, d.fail(id, clientName, req, start, 0, err)
	}

	if client.Limiter != nil {
		if err := client.Limiter.Wait(ctx); err != nil {
			return nil, d.fail(id, clientName, req, start, 0, newError(KindNetwork, err))
		}
	}

	if client.Timeout > 0 {
		tctx, cancel := context.WithTimeout(httpReq.Context(), client.Timeout)
		defer cancel()
		httpReq = httpReq.WithContext(tctx)
	}

	if d.metrics != nil {
		d.metrics.IncRequestsInFlight()
		defer d.metrics.DecRequestsInFlight()
	}

	httpResp, err := client.HTTP.Do(httpReq)
	if err != nil {
		return nil, d.fail(id, clientName, req, start, 0, newError(KindNetwork, err))
	}
	defer httpResp.Body.Close()

	resp, err := Marshal(httpResp, req.ResponseType, client.MaxResponseBytes)
	if err != nil {
		return nil, d.fail(id, clientName, req, start, httpResp.StatusCode, err)
	}

	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.RecordRequest(clientName, "ok", resp.Status, elapsed)
	}
	d.logger.Debug("request completed",
		zap.String("id", id),
		zap.String("client", clientName),
		zap.String("method", httpReq.Method),
		zap.Int("status", resp.Status),
		zap.Duration("duration", elapsed),
	)

	return resp, nil
}

// fail records and logs err. status is 0 when no response arrived.
func (d *Dispatcher) fail(id, clientName string, req *protocol.Request, start time.Time, status int, err error) error {
	elapsed := time.Since(start)
	kind := KindOf(err)

	// Unknown names are caller input; keep them out of label values.
	if d.metrics != nil && kind != KindClient {
		d.metrics.RecordRequest(clientName, kind.String(), status, elapsed)
	}

	fields := []zap.Field{
		zap.String("id", id),
		zap.String("client", clientName),
		zap.String("kind", kind.String()),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	}
	if req != nil {
		fields = append(fields, zap.String("method", req.Method))
	}
	d.logger.Warn("request failed", fields...)
	return err
}

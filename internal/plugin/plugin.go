// Package plugin is the host-facing entry point: it builds the client
// registry at startup and routes "plugin:mtls|<command>" invocations.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mtlsbridge/internal/dispatch"
	"github.com/mtlsbridge/internal/health"
	"github.com/mtlsbridge/internal/registry"
	"github.com/mtlsbridge/pkg/protocol"
)

const (
	// Name is the plugin name used in command identifiers.
	Name = "mtls"
	// DefaultClient receives calls that name no client.
	DefaultClient = "default"
	// CommandSend is the dispatch command.
	CommandSend = "send"
)

var (
	ErrUnknownPlugin  = errors.New("unknown plugin")
	ErrUnknownCommand = errors.New("unknown command")
	ErrAmbiguousInit  = errors.New("both a single identity and named clients were configured")
)

// Client names one client configuration.
type Client struct {
	Name   string
	Config protocol.ClientConfig
}

// Config is the startup configuration. Either TLS describes the single
// "default" client, or Clients lists named ones.
type Config struct {
	TLS     *protocol.TLSConfig
	Clients []Client
}

// Option customizes a plugin at build time.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records dispatch metrics on m.
func WithMetrics(m *health.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// Builder assembles a Plugin from named clients.
type Builder struct {
	entries []registry.Entry
	logger  *zap.Logger
	metrics *health.Metrics
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddClient registers a named client configuration.
func (b *Builder) AddClient(name string, cfg protocol.ClientConfig) *Builder {
	b.entries = append(b.entries, registry.Entry{Name: name, Config: cfg})
	return b
}

// Build creates every client. Bad TLS material fails here, not on first use.
func (b *Builder) Build(opts ...Option) (*Plugin, error) {
	for _, opt := range opts {
		opt(b)
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg, err := registry.Build(b.entries)
	if err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.SetRegisteredClients(reg.Len())
	}

	logger.Info("plugin initialized", zap.Strings("clients", reg.Names()))

	return &Plugin{
		registry:   reg,
		dispatcher: dispatch.New(reg, b.metrics, logger),
		metrics:    b.metrics,
		logger:     logger.Named("plugin"),
	}, nil
}

// Init builds a plugin from cfg.
func Init(cfg Config, opts ...Option) (*Plugin, error) {
	b := NewBuilder()
	switch {
	case cfg.TLS != nil && len(cfg.Clients) > 0:
		return nil, ErrAmbiguousInit
	case len(cfg.Clients) > 0:
		for _, c := range cfg.Clients {
			b.AddClient(c.Name, c.Config)
		}
	default:
		b.AddClient(DefaultClient, protocol.ClientConfig{TLS: cfg.TLS})
	}
	return b.Build(opts...)
}

// Plugin dispatches requests through its registered clients.
type Plugin struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	metrics    *health.Metrics
	logger     *zap.Logger
}

// Registry exposes the client registry.
func (p *Plugin) Registry() *registry.Registry {
	return p.registry
}

// Reload replaces every client at once. In-flight calls finish on the old set.
func (p *Plugin) Reload(clients []Client) error {
	entries := make([]registry.Entry, 0, len(clients))
	for _, c := range clients {
		entries = append(entries, registry.Entry{Name: c.Name, Config: c.Config})
	}
	if err := p.registry.Swap(entries); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.SetRegisteredClients(p.registry.Len())
	}
	p.logger.Info("clients reloaded", zap.Strings("clients", p.registry.Names()))
	return nil
}

// Send dispatches req through clientName. Only the empty name falls back to
// DefaultClient; any other unregistered name fails with a client error.
func (p *Plugin) Send(ctx context.Context, clientName string, req *protocol.Request) (*protocol.Response, error) {
	if clientName == "" {
		clientName = DefaultClient
	}
	return p.dispatcher.Send(ctx, clientName, req)
}

func (p *Plugin) call(ctx context.Context, method, clientName, url string, opts *protocol.Request) (*protocol.Response, error) {
	var req protocol.Request
	if opts != nil {
		req = *opts
	}
	req.Method = method
	req.URL = url
	return p.Send(ctx, clientName, &req)
}

// Get sends a GET request. opts may carry query, headers and response type.
func (p *Plugin) Get(ctx context.Context, clientName, url string, opts *protocol.Request) (*protocol.Response, error) {
	return p.call(ctx, http.MethodGet, clientName, url, opts)
}

// Post sends a POST request.
func (p *Plugin) Post(ctx context.Context, clientName, url string, opts *protocol.Request) (*protocol.Response, error) {
	return p.call(ctx, http.MethodPost, clientName, url, opts)
}

// Put sends a PUT request.
func (p *Plugin) Put(ctx context.Context, clientName, url string, opts *protocol.Request) (*protocol.Response, error) {
	return p.call(ctx, http.MethodPut, clientName, url, opts)
}

// Patch sends a PATCH request.
func (p *Plugin) Patch(ctx context.Context, clientName, url string, opts *protocol.Request) (*protocol.Response, error) {
	return p.call(ctx, http.MethodPatch, clientName, url, opts)
}

// Delete sends a DELETE request.
func (p *Plugin) Delete(ctx context.Context, clientName, url string, opts *protocol.Request) (*protocol.Response, error) {
	return p.call(ctx, http.MethodDelete, clientName, url, opts)
}

// SendArgs are the arguments of the send command. An omitted ClientName
// selects DefaultClient.
type SendArgs struct {
	ClientName string            `json:"clientName,omitempty"`
	Request    *protocol.Request `json:"request"`
}

// ParseCommand splits "plugin:<name>|<command>".
func ParseCommand(id string) (plugin, command string, err error) {
	rest, ok := strings.CutPrefix(id, "plugin:")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCommand, id)
	}
	plugin, command, ok = strings.Cut(rest, "|")
	if !ok || plugin == "" || command == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCommand, id)
	}
	return plugin, command, nil
}

// CommandID returns the identifier the host uses for command.
func CommandID(command string) string {
	return "plugin:" + Name + "|" + command
}

// Invoke handles a host command with raw JSON arguments.
func (p *Plugin) Invoke(ctx context.Context, id string, args json.RawMessage) (any, error) {
	name, command, err := ParseCommand(id)
	if err != nil {
		return nil, err
	}
	if name != Name {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}

	switch command {
	case CommandSend:
		var a SendArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, &dispatch.Error{Kind: dispatch.KindJSON, Err: fmt.Errorf("decode arguments: %w", err)}
		}
		if a.Request == nil {
			return nil, &dispatch.Error{Kind: dispatch.KindJSON, Err: errors.New("decode arguments: missing request")}
		}
		return p.Send(ctx, a.ClientName, a.Request)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, id)
	}
}

// Close releases idle connections.
func (p *Plugin) Close() error {
	p.registry.Close()
	return nil
}

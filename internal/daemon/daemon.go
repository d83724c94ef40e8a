package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mtlsbridge/internal/config"
	"github.com/mtlsbridge/internal/health"
	"github.com/mtlsbridge/internal/logging"
	"github.com/mtlsbridge/internal/plugin"
	"github.com/mtlsbridge/pkg/protocol"
)

const (
	SocketName = "mtlsbridge.sock"
	PidFile    = "mtlsbridge.pid"
	LogFile    = "mtlsbridge.log"
)

// Daemon commands besides the plugin:<name>|<command> ones.
const (
	CmdStatus  = "status"
	CmdClients = "clients"
	CmdReload  = "reload"
	CmdStop    = "stop"
)

// ErrAlreadyRunning is returned when another daemon owns the socket.
var ErrAlreadyRunning = errors.New("daemon already running")

// ClientStatus describes one registered client.
type ClientStatus struct {
	Name      string             `json:"name"`
	Transport string             `json:"transport"`
	Identity  *protocol.Identity `json:"identity,omitempty"`
	Timeout   string             `json:"timeout,omitempty"`
	Healthy   *bool              `json:"healthy,omitempty"`
	Stats     health.Summary     `json:"stats"`
}

// Status represents the current daemon status
type Status struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartTime    time.Time      `json:"start_time"`
	Uptime       string         `json:"uptime"`
	ConfigPath   string         `json:"config_path,omitempty"`
	MetricsAddr  string         `json:"metrics_addr,omitempty"`
	RequestsSent int64          `json:"requests_sent"`
	ErrorCount   int64          `json:"error_count"`
	Clients      []ClientStatus `json:"clients"`
}

// Command represents a command sent to the daemon
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a response from the daemon
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("empty response data")
	}
	return json.Unmarshal(r.Data, v)
}

func reply(data any) Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{Success: false, Message: err.Error()}
	}
	return Response{Success: true, Data: raw}
}

// Options controls where the daemon keeps its files.
type Options struct {
	// ConfigPath is re-read on reload.
	ConfigPath string
	// RuntimeDir overrides config and environment.
	RuntimeDir string
	// LogOutput receives log lines in addition to the log file.
	LogOutput io.Writer
}

// Daemon hosts the plugin behind a unix socket.
type Daemon struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	configPath string
	runtimeDir string
	socketPath string

	plugin        *plugin.Plugin
	checker       *health.Checker
	metrics       *health.Metrics
	promRegistry  *prometheus.Registry
	metricsServer *health.Server

	root    *zap.Logger
	logger  *zap.Logger
	logFile *os.File

	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	listener  net.Listener
	stopOnce  sync.Once
	done      chan struct{}
}

// GetRuntimeDir returns the default runtime directory.
func GetRuntimeDir() string {
	// Use XDG_RUNTIME_DIR if available, otherwise use /tmp
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "mtlsbridge")
	}
	return filepath.Join(os.TempDir(), "mtlsbridge")
}

// GetSocketPath returns the socket path inside dir.
func GetSocketPath(dir string) string {
	return filepath.Join(dir, SocketName)
}

// GetPidPath returns the pid file path inside dir.
func GetPidPath(dir string) string {
	return filepath.Join(dir, PidFile)
}

// GetLogPath returns the log file path inside dir.
func GetLogPath(dir string) string {
	return filepath.Join(dir, LogFile)
}

// New creates a new daemon instance
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	runtimeDir := opts.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = cfg.Daemon.RuntimeDir
	}
	if runtimeDir == "" {
		runtimeDir = GetRuntimeDir()
	}
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	logFile, err := os.OpenFile(GetLogPath(runtimeDir), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var out io.Writer = logFile
	if opts.LogOutput != nil {
		out = io.MultiWriter(logFile, opts.LogOutput)
	}
	logger, err := logging.New(cfg.Logging, out)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		runtimeDir: runtimeDir,
		socketPath: GetSocketPath(runtimeDir),
		root:       logger,
		logger:     logger.Named("daemon"),
		logFile:    logFile,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// SocketPath returns the socket the daemon listens on.
func (d *Daemon) SocketPath() string {
	return d.socketPath
}

// Start builds every client and begins accepting commands. A daemon whose
// Start failed is released and cannot be started again.
func (d *Daemon) Start() (err error) {
	d.logger.Info("starting daemon", zap.String("runtime_dir", d.runtimeDir))

	pidWritten := false
	defer func() {
		if err != nil {
			d.abort(err, pidWritten)
		}
	}()

	if IsRunning(d.socketPath) {
		return fmt.Errorf("%w at %s", ErrAlreadyRunning, d.socketPath)
	}

	// Initialize components
	d.promRegistry = prometheus.NewRegistry()
	d.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metrics = health.NewMetrics(d.promRegistry)

	clients, err := d.cfg.LoadClients()
	if err != nil {
		return err
	}
	b := plugin.NewBuilder()
	for _, c := range clients {
		b.AddClient(c.Name, c.Config)
	}
	d.plugin, err = b.Build(plugin.WithLogger(d.root), plugin.WithMetrics(d.metrics))
	if err != nil {
		return err
	}

	d.checker = health.NewChecker(d.cfg.Health, d.cfg.Probes(), d.plugin.Registry(), d.metrics, d.root)

	// Write PID file
	if err := os.WriteFile(GetPidPath(d.runtimeDir), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	pidWritten = true

	// Remove a stale socket left by a crashed daemon
	os.Remove(d.socketPath)

	d.listener, err = net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}

	if d.cfg.Metrics.Enabled {
		d.metricsServer = health.NewServer(d.cfg.Metrics, d.promRegistry, d.ready, d.root)
		go func() {
			if err := d.metricsServer.Start(); err != nil {
				d.logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	d.checker.Start(d.ctx)
	d.startTime = time.Now()

	d.logger.Info("daemon started",
		zap.String("socket", d.socketPath),
		zap.Strings("clients", d.plugin.Registry().Names()),
	)

	// Accept connections
	go d.acceptConnections()

	return nil
}

// abort releases what a failed Start acquired. The socket is left alone
// since it may belong to another daemon.
func (d *Daemon) abort(cause error, removePid bool) {
	d.stopOnce.Do(func() {
		d.logger.Error("daemon failed to start", zap.Error(cause))

		d.cancel()
		if d.listener != nil {
			d.listener.Close()
		}
		if d.plugin != nil {
			d.plugin.Close()
		}
		if removePid {
			os.Remove(GetPidPath(d.runtimeDir))
		}

		d.root.Sync()
		d.logFile.Close()
		close(d.done)
	})
}

func (d *Daemon) config() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *Daemon) ready() error {
	if d.plugin == nil || d.plugin.Registry().Len() == 0 {
		return errors.New("no clients registered")
	}
	return nil
}

// Done is closed once the daemon has stopped.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Reload re-reads the configuration file and swaps in the new clients and
// their probes. Other sections take effect on the next start. On failure the
// current clients stay.
func (d *Daemon) Reload() error {
	if err := d.reload(); err != nil {
		d.logger.Warn("reload failed", zap.Error(err))
		return err
	}
	return nil
}

func (d *Daemon) reload() error {
	if d.configPath == "" {
		return errors.New("daemon was started without a config file")
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return err
	}
	clients, err := cfg.LoadClients()
	if err != nil {
		return err
	}

	next := make([]plugin.Client, 0, len(clients))
	for _, c := range clients {
		next = append(next, plugin.Client{Name: c.Name, Config: c.Config})
	}
	if err := d.plugin.Reload(next); err != nil {
		return err
	}
	d.checker.SetProbes(cfg.Probes())

	d.cfgMu.Lock()
	live := *d.cfg
	live.Clients = cfg.Clients
	d.cfg = &live
	d.cfgMu.Unlock()
	return nil
}

// GetStatus returns the current status
func (d *Daemon) GetStatus() Status {
	status := Status{
		Running:    true,
		PID:        os.Getpid(),
		StartTime:  d.startTime,
		ConfigPath: d.configPath,
	}
	if !d.startTime.IsZero() {
		status.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}
	if d.metricsServer != nil {
		status.MetricsAddr = d.config().Metrics.Address
	}

	stats := d.metrics.Stats().Snapshot()
	probes := d.checker.Statuses()
	for _, c := range d.plugin.Registry().Clients() {
		cs := ClientStatus{
			Name:      c.Name,
			Transport: string(c.Transport),
			Identity:  c.Identity,
			Stats:     stats[c.Name],
		}
		if c.Timeout > 0 {
			cs.Timeout = c.Timeout.String()
		}
		if h, ok := probes[c.Name]; ok {
			cs.Healthy = &h
		}
		status.RequestsSent += cs.Stats.Requests
		status.ErrorCount += cs.Stats.Errors
		status.Clients = append(status.Clients, cs)
	}

	return status
}

// Stop stops the daemon
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping daemon")

		d.cancel()

		if d.listener != nil {
			d.listener.Close()
		}
		if d.checker != nil {
			d.checker.Stop()
		}
		if d.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
			defer cancel()
			d.metricsServer.Stop(ctx)
		}
		if d.plugin != nil {
			d.plugin.Close()
		}

		os.Remove(d.socketPath)
		os.Remove(GetPidPath(d.runtimeDir))

		d.logger.Info("daemon stopped")
		d.root.Sync()
		if d.logFile != nil {
			d.logFile.Close()
		}
		close(d.done)
	})
}

func (d *Daemon) shutdownTimeout() time.Duration {
	if t := d.config().Daemon.ShutdownTimeout; t > 0 {
		return t
	}
	return 5 * time.Second
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				d.logger.Warn("accept error", zap.Error(err))
				continue
			}
		}
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd Command
	if err := decoder.Decode(&cmd); err != nil {
		encoder.Encode(Response{Success: false, Message: err.Error()})
		return
	}

	// Each connection carries one command, so the peer hanging up or
	// giving up ends the call.
	ctx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	go func() {
		io.Copy(io.Discard, conn)
		cancel()
	}()

	var resp Response

	switch {
	case strings.HasPrefix(cmd.Type, "plugin:"):
		out, err := d.plugin.Invoke(ctx, cmd.Type, cmd.Data)
		if err != nil {
			resp = Response{Success: false, Message: err.Error()}
		} else {
			resp = reply(out)
		}

	case cmd.Type == CmdStatus:
		resp = reply(d.GetStatus())

	case cmd.Type == CmdClients:
		resp = reply(d.GetStatus().Clients)

	case cmd.Type == CmdReload:
		if err := d.Reload(); err != nil {
			resp = Response{Success: false, Message: err.Error()}
		} else {
			resp = Response{Success: true, Message: "Clients reloaded"}
		}

	case cmd.Type == CmdStop:
		encoder.Encode(Response{Success: true, Message: "Stopping daemon..."})
		go d.Stop()
		return

	default:
		resp = Response{Success: false, Message: "Unknown command: " + cmd.Type}
	}

	encoder.Encode(resp)
}

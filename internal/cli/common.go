package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mtlsbridge/internal/config"
	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/logging"
	"github.com/mtlsbridge/internal/plugin"
	"github.com/mtlsbridge/pkg/protocol"
)

// runtimeDir resolves the flag, then the config file, then the default.
func runtimeDir() string {
	if runtimeDirFlag != "" {
		return runtimeDirFlag
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.Daemon.RuntimeDir != "" {
		return cfg.Daemon.RuntimeDir
	}
	return daemon.GetRuntimeDir()
}

func socketPath() string {
	return daemon.GetSocketPath(runtimeDir())
}

// loadPlugin builds an in-process plugin from the config file.
func loadPlugin() (*plugin.Plugin, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	clients, err := cfg.LoadClients()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	b := plugin.NewBuilder()
	for _, c := range clients {
		b.AddClient(c.Name, c.Config)
	}
	p, err := b.Build(plugin.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

// sender returns a function that sends through the daemon when it is
// running, or through an in-process plugin otherwise. cleanup must be called.
func sender(local bool) (send func(context.Context, string, *protocol.Request) (*protocol.Response, error), names []string, cleanup func(), err error) {
	sock := socketPath()
	if !local && daemon.IsRunning(sock) {
		send = func(ctx context.Context, client string, req *protocol.Request) (*protocol.Response, error) {
			return daemon.Send(ctx, sock, client, req)
		}
		if status, err := daemon.FetchStatus(context.Background(), sock); err == nil {
			for _, c := range status.Clients {
				names = append(names, c.Name)
			}
		}
		return send, names, func() {}, nil
	}

	p, _, err := loadPlugin()
	if err != nil {
		return nil, nil, nil, err
	}
	return p.Send, p.Registry().Names(), func() { p.Close() }, nil
}

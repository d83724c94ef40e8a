package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/config"
	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/tui"
)

var daemonMode bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge daemon in the foreground",
	Long: `Run the bridge daemon using a YAML or TOML configuration file.
Every client is built up front; bad TLS material fails here.

SIGHUP reloads the configuration. SIGINT and SIGTERM stop the daemon.

Example:
  mtlsbridge run --config mtlsbridge.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&daemonMode, "daemon", "d", false, "Run as background daemon (no console logging)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var logOut io.Writer
	if !daemonMode {
		logOut = os.Stderr
		fmt.Printf("%s starting (config: %s)\n", tui.MiniLogo(), configPath)
		fmt.Printf("  Clients: %d\n", len(cfg.Clients))
		if cfg.Metrics.Enabled {
			fmt.Printf("  Metrics: http://%s%s\n", cfg.Metrics.Address, cfg.Metrics.Path)
		}
		fmt.Println()
	}

	d, err := daemon.New(cfg, daemon.Options{
		ConfigPath: configPath,
		RuntimeDir: runtimeDirFlag,
		LogOutput:  logOut,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				// Reload logs its own failure and keeps the current clients.
				_ = d.Reload()
				continue
			}
			if !daemonMode {
				fmt.Println("\nShutting down...")
			}
			d.Stop()
			return nil
		case <-d.Done():
			return nil
		}
	}
}

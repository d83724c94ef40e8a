package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/tui"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath     string
	runtimeDirFlag string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mtlsbridge",
	Short: "Mutual-TLS HTTP bridge",
	Long: tui.Logo() + `

mtlsbridge sends HTTP requests through named clients, each holding its
own trust anchors and client certificate.

Get started:
  mtlsbridge validate    Check the client configuration
  mtlsbridge run         Run the bridge daemon in the foreground
  mtlsbridge start       Start the bridge daemon in the background
  mtlsbridge send URL    Send one request
  mtlsbridge console     Compose requests interactively
  mtlsbridge status      Check the running daemon
  mtlsbridge stop        Stop the running daemon`,
	Version: fmt.Sprintf("%s (built %s)", version, buildTime),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mtlsbridge.yaml", "Path to configuration file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&runtimeDirFlag, "runtime-dir", "", "Directory holding the daemon socket, pid and log files")
}

// SetVersion sets the version info
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

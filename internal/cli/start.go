package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/tui"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge daemon in the background",
	Long: `Start the bridge daemon as a detached background process.
The daemon listens on a unix socket inside the runtime directory.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	sock := socketPath()
	if daemon.IsRunning(sock) {
		fmt.Println()
		fmt.Println(tui.WarningStyle.Render("  mtlsbridge is already running!"))
		fmt.Println(tui.DimStyle.Render("  Use 'mtlsbridge status' to check status"))
		fmt.Println(tui.DimStyle.Render("  Use 'mtlsbridge stop' to stop the running instance"))
		fmt.Println()
		return nil
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(tui.InfoStyle.Render("  Starting mtlsbridge daemon..."))

	if err := startDaemonBackground(abs, runtimeDirFlag); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for the socket to come up (max 5 seconds)
	for i := 0; i < 50; i++ {
		if daemon.IsRunning(sock) {
			fmt.Println(tui.SuccessStyle.Render("  " + tui.CheckMark + " mtlsbridge is now running in the background"))
			fmt.Println()
			fmt.Println("   Status:  mtlsbridge status")
			fmt.Println("   Logs:    mtlsbridge logs -f")
			fmt.Println("   Stop:    mtlsbridge stop")
			fmt.Println()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println(tui.ErrorStyle.Render("  " + tui.CrossMark + " daemon did not come up"))
	fmt.Println(tui.DimStyle.Render("  Check 'mtlsbridge logs' for details"))
	fmt.Println()
	return fmt.Errorf("daemon not reachable at %s", sock)
}

// startDaemonBackground starts the daemon as a background process
func startDaemonBackground(configPath, runtimeDir string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"run", "--config", configPath, "--daemon"}
	if runtimeDir != "" {
		args = append(args, "--runtime-dir", runtimeDir)
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	// Detach
	return cmd.Process.Release()
}

package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/tui"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the bridge daemon",
	Long: `Stop the running bridge daemon gracefully.
Idle connections are closed and the socket and pid files are removed.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	dir := runtimeDir()
	sock := daemon.GetSocketPath(dir)
	pidPath := daemon.GetPidPath(dir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println()
	if resp, err := daemon.SendCommand(ctx, sock, daemon.Command{Type: daemon.CmdStop}); err == nil && resp.Success {
		fmt.Println(tui.InfoStyle.Render("  " + resp.Message))
	} else if !signalPid(pidPath) {
		fmt.Println(tui.WarningStyle.Render("  mtlsbridge is not running"))
		fmt.Println()
		return nil
	}

	// Wait for process to exit (max 5 seconds)
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(pidPath); os.IsNotExist(err) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println(tui.SuccessStyle.Render("  " + tui.CheckMark + " mtlsbridge stopped"))
	fmt.Println()
	return nil
}

// signalPid sends SIGTERM to the pid recorded in pidPath. It reports whether
// a process was signalled.
func signalPid(pidPath string) bool {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		fmt.Println(tui.ErrorStyle.Render("  Invalid PID file"))
		os.Remove(pidPath)
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		return false
	}

	fmt.Println(tui.InfoStyle.Render("  Stopping mtlsbridge (PID: " + strconv.Itoa(pid) + ")..."))
	if err := process.Signal(syscall.SIGTERM); err != nil {
		// Process already finished, clean up PID file
		os.Remove(pidPath)
		return false
	}
	return true
}

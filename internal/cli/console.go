package cli

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/tui"
)

var (
	consoleLocal   bool
	consoleTimeout time.Duration
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Compose and send requests interactively",
	Long: `Open an interactive console for composing requests.
Requests go through the running daemon when there is one, otherwise the
clients are built in-process from the config file.`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleLocal, "local", false, "Build clients in-process even if the daemon is running")
	consoleCmd.Flags().DurationVar(&consoleTimeout, "timeout", time.Minute, "Deadline for each request")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	send, names, cleanup, err := sender(consoleLocal)
	if err != nil {
		return err
	}
	defer cleanup()

	p := tea.NewProgram(tui.NewConsole(send, names, consoleTimeout), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

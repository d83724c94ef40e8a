package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/tui"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the current status of the bridge daemon.

Examples:
  mtlsbridge status          Show current status
  mtlsbridge status -w       Watch status (refresh every second)
  mtlsbridge status --json   Output as JSON`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Watch mode (refresh every second)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusWatch {
		return watchStatus()
	}

	return showStatus()
}

func fetchStatus() (*daemon.Status, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return daemon.FetchStatus(ctx, socketPath())
}

func showStatus() error {
	status, err := fetchStatus()
	if err != nil {
		fmt.Println()
		fmt.Println(tui.ErrorStyle.Render("  " + tui.CrossMark + " mtlsbridge is not running"))
		fmt.Println()
		fmt.Println(tui.DimStyle.Render("  Start with: mtlsbridge start"))
		fmt.Println()
		return nil
	}

	if statusJSON {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printStatus(*status)
	return nil
}

func watchStatus() error {
	// Clear screen
	fmt.Print("\033[H\033[2J")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		// Move cursor to top
		fmt.Print("\033[H")

		status, err := fetchStatus()
		if err != nil {
			fmt.Println(tui.ErrorStyle.Render("Connection lost. Daemon may have stopped."))
			return nil
		}

		printStatus(*status)
		fmt.Println()
		fmt.Println(tui.DimStyle.Render("Press Ctrl+C to exit watch mode"))

		<-ticker.C
	}
}

func printStatus(status daemon.Status) {
	fmt.Println()

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		tui.MiniLogo(),
		"  ",
		tui.TitleStyle.Render(" STATUS "),
	)
	fmt.Println(header)
	fmt.Println()

	if status.Running {
		fmt.Printf("  %s %s\n", tui.SuccessStyle.Render(tui.BulletPoint), tui.SuccessStyle.Render("RUNNING"))
	} else {
		fmt.Printf("  %s %s\n", tui.ErrorStyle.Render(tui.CrossMark), tui.ErrorStyle.Render("STOPPED"))
	}
	fmt.Println()

	var content strings.Builder

	content.WriteString(tui.SubtitleStyle.Render("Daemon"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  PID:      %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.PID))))
	content.WriteString(fmt.Sprintf("  Uptime:   %s\n", tui.ValueStyle.Render(status.Uptime)))
	if status.ConfigPath != "" {
		content.WriteString(fmt.Sprintf("  Config:   %s\n", tui.DimStyle.Render(status.ConfigPath)))
	}
	if status.MetricsAddr != "" {
		content.WriteString(fmt.Sprintf("  Metrics:  %s\n", tui.DimStyle.Render(status.MetricsAddr)))
	}
	content.WriteString("\n")

	content.WriteString(tui.SubtitleStyle.Render("Traffic"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  Requests: %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.RequestsSent))))
	content.WriteString(fmt.Sprintf("  Errors:   %s\n", tui.ErrorStyle.Render(fmt.Sprintf("%d", status.ErrorCount))))
	content.WriteString("\n")

	content.WriteString(tui.SubtitleStyle.Render("Clients"))
	content.WriteString("\n")
	for _, c := range status.Clients {
		content.WriteString(fmt.Sprintf("  %s %s %s\n",
			tui.HealthMark(c.Healthy),
			tui.ValueStyle.Render(c.Name),
			tui.DimStyle.Render(fmt.Sprintf("%d req  p50 %.1fms  p99 %.1fms", c.Stats.Requests, c.Stats.P50Ms, c.Stats.P99Ms)),
		))
	}

	box := tui.BorderStyle.Width(60).Render(content.String())
	fmt.Println(box)
}

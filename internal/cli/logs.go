package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/tui"
)

var (
	logsFollow bool
	logsTail   int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View daemon logs",
	Long: `View logs from the bridge daemon.

Examples:
  mtlsbridge logs          Show recent logs
  mtlsbridge logs -f       Follow logs in real-time
  mtlsbridge logs -n 50    Show last 50 lines`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 20, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsTail < 0 {
		return fmt.Errorf("--tail must not be negative, got %d", logsTail)
	}

	logPath := daemon.GetLogPath(runtimeDir())

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println()
		fmt.Println(tui.WarningStyle.Render("  No logs found"))
		fmt.Println(tui.DimStyle.Render("  mtlsbridge may not have been started yet"))
		fmt.Println()
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	fmt.Println()
	fmt.Println(tui.TitleStyle.Render(" mtlsbridge logs "))
	fmt.Println(tui.DimStyle.Render(fmt.Sprintf(" %s", logPath)))
	fmt.Println(tui.Divider(50))
	fmt.Println()

	if logsFollow {
		return followLogs(file)
	}

	if err := tailLogs(os.Stdout, file, logsTail); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

// tailLogs writes the last n lines of r to w.
func tailLogs(w io.Writer, r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if len(lines) == n {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for _, line := range lines {
		fmt.Fprintln(w, colorizeLogLine(line))
	}
	return nil
}

func followLogs(file *os.File) error {
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	reader := bufio.NewReader(file)

	fmt.Println(tui.DimStyle.Render("Waiting for new logs... (Ctrl+C to exit)"))
	fmt.Println()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		fmt.Println(colorizeLogLine(strings.TrimRight(line, "\n")))
	}
}

// colorizeLogLine styles a console- or JSON-encoded zap line by level.
// Tabs are kept so the console encoder's columns survive.
func colorizeLogLine(line string) string {
	return logLineStyle(line).TabWidth(lipgloss.NoTabConversion).Render(line)
}

func logLineStyle(line string) lipgloss.Style {
	switch {
	case strings.Contains(line, "\tERROR\t"), strings.Contains(line, `"level":"error"`),
		strings.Contains(line, "\tFATAL\t"), strings.Contains(line, `"level":"fatal"`):
		return tui.ErrorStyle
	case strings.Contains(line, "\tWARN\t"), strings.Contains(line, `"level":"warn"`):
		return tui.WarningStyle
	case strings.Contains(line, "daemon started"), strings.Contains(line, "clients reloaded"):
		return tui.SuccessStyle
	default:
		return tui.DimStyle
	}
}

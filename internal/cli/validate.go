package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/tui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and TLS material",
	Long: `Load the configuration file and build every client, reading and
parsing all certificates and keys, without sending anything.`,
	SilenceUsage: true,
	RunE:         runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, cfg, err := loadPlugin()
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", tui.SuccessStyle.Render(tui.CheckMark), configPath)
	printClients(out, describe(p.Registry().Clients()), time.Now())

	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  %s http://%s%s\n", tui.LabelStyle.Render("metrics"), cfg.Metrics.Address, cfg.Metrics.Path)
	}
	if cfg.Health.Enabled && len(cfg.Probes()) > 0 {
		fmt.Fprintf(out, "  %s %d probes every %s\n", tui.LabelStyle.Render("health"), len(cfg.Probes()), cfg.Health.Interval)
	}
	return nil
}

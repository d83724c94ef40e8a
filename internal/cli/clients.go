package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtlsbridge/internal/daemon"
	"github.com/mtlsbridge/internal/registry"
	"github.com/mtlsbridge/internal/tui"
)

var clientsJSON bool

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List registered clients",
	Long: `List the clients of the running daemon, or of the config file when no
daemon is running, with their transport and client certificate.`,
	RunE: runClients,
}

func init() {
	clientsCmd.Flags().BoolVar(&clientsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(clientsCmd)
}

func runClients(cmd *cobra.Command, args []string) error {
	clients, err := listClients()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if clientsJSON {
		data, err := json.MarshalIndent(clients, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	printClients(out, clients, time.Now())
	return nil
}

func listClients() ([]daemon.ClientStatus, error) {
	sock := socketPath()
	if daemon.IsRunning(sock) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := daemon.SendCommand(ctx, sock, daemon.Command{Type: daemon.CmdClients})
		if err != nil {
			return nil, err
		}
		var clients []daemon.ClientStatus
		if err := resp.Decode(&clients); err != nil {
			return nil, err
		}
		return clients, nil
	}

	p, _, err := loadPlugin()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return describe(p.Registry().Clients()), nil
}

func describe(clients []*registry.Client) []daemon.ClientStatus {
	out := make([]daemon.ClientStatus, 0, len(clients))
	for _, c := range clients {
		cs := daemon.ClientStatus{
			Name:      c.Name,
			Transport: string(c.Transport),
			Identity:  c.Identity,
		}
		if c.Timeout > 0 {
			cs.Timeout = c.Timeout.String()
		}
		out = append(out, cs)
	}
	return out
}

func printClients(w io.Writer, clients []daemon.ClientStatus, now time.Time) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, tui.TitleStyle.Render(" CLIENTS "))
	fmt.Fprintln(w)

	if len(clients) == 0 {
		fmt.Fprintln(w, tui.WarningStyle.Render("  no clients registered"))
		fmt.Fprintln(w)
		return
	}

	for _, c := range clients {
		fmt.Fprintf(w, "  %s %s  %s\n",
			tui.HealthMark(c.Healthy),
			tui.ValueStyle.Render(c.Name),
			tui.DimStyle.Render(c.Transport),
		)
		if c.Identity == nil {
			fmt.Fprintf(w, "      %s\n", tui.DimStyle.Render("no client certificate"))
			continue
		}
		fmt.Fprintf(w, "      %s %s\n", tui.LabelStyle.Render("subject"), c.Identity.Subject)
		fmt.Fprintf(w, "      %s  %s\n", tui.LabelStyle.Render("issuer"), c.Identity.Issuer)
		fmt.Fprintf(w, "      %s %s\n", tui.LabelStyle.Render("expires"), expiry(c.Identity.NotAfter, now))
	}
	fmt.Fprintln(w)
}

const expiryWarning = 30 * 24 * time.Hour

func expiry(notAfter, now time.Time) string {
	left := notAfter.Sub(now)
	date := notAfter.Format("2006-01-02")
	switch {
	case left <= 0:
		return tui.ErrorStyle.Render(date + " (expired)")
	case left < expiryWarning:
		return tui.WarningStyle.Render(fmt.Sprintf("%s (%d days left)", date, int(left.Hours()/24)))
	default:
		return date
	}
}

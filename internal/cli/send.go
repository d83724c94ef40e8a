package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	sendFlags   requestFlags
	sendClient  string
	sendLocal   bool
	sendCompact bool
	sendFail    bool
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send URL",
	Short: "Send one request through a client",
	Long: `Send one HTTP request through a named client and print the response.

The request goes through the running daemon when there is one, otherwise
the clients are built in-process from the config file.

Form bodies are accepted but not transmitted.

Examples:
  mtlsbridge send https://api.internal/health
  mtlsbridge send -X POST --client billing --json '{"id":1}' https://billing.internal/charges
  mtlsbridge send -H 'accept: text/plain' --response-type text https://api.internal/motd
  mtlsbridge send --query page=2 --compact https://api.internal/items`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVarP(&sendFlags.method, "request", "X", "", "HTTP method (default GET, or POST with a body)")
	f.StringArrayVarP(&sendFlags.headers, "header", "H", nil, "Request header 'name: value' (repeatable)")
	f.StringArrayVarP(&sendFlags.query, "query", "q", nil, "Query parameter 'name=value' (repeatable)")
	f.StringVarP(&sendFlags.data, "data", "d", "", "Text body")
	f.StringVar(&sendFlags.json, "json", "", "JSON body")
	f.StringArrayVar(&sendFlags.form, "form", nil, "Form field 'name=value' (repeatable)")
	f.StringVarP(&sendFlags.responseType, "response-type", "t", "", "Response body decoding: json, text or binary")
	f.StringVar(&sendClient, "client", "", "Client name (default client when empty)")
	f.BoolVar(&sendLocal, "local", false, "Build clients in-process even if the daemon is running")
	f.BoolVar(&sendCompact, "compact", false, "Print the response as one JSON line")
	f.BoolVarP(&sendFail, "fail", "f", false, "Exit non-zero on a non-2xx status")
	f.DurationVar(&sendTimeout, "timeout", 0, "Overall deadline for the call")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := sendFlags.build(args[0])
	if err != nil {
		return err
	}

	send, _, cleanup, err := sender(sendLocal)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sendTimeout)
		defer cancel()
	}

	resp, err := send(ctx, sendClient, req)
	if err != nil {
		return err
	}

	pretty := !sendCompact && term.IsTerminal(int(os.Stdout.Fd()))
	if err := printResponse(cmd.OutOrStdout(), resp, pretty); err != nil {
		return err
	}

	if sendFail && !resp.OK() {
		return fmt.Errorf("request failed with status %d", resp.Status)
	}
	return nil
}

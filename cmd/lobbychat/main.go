package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lobbychat/internal/client"
	applog "github.com/vovakirdan/lobbychat/internal/log"
)

type rootOptions struct {
	server   string
	name     string
	logLevel string
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lobbychat",
		Short: "Terminal client for a lobbychat server",
		Long: "Type messages and press Enter to send. Commands: /name <new name>, /clear, /quit.\n" +
			"Every message, your own included, is shown once the server relays it.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.server, "server", "s", "http://localhost:8000", "server base URL")
	flags.StringVarP(&opts.name, "name", "n", "", "display name (prompted when empty)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for one-shot commands")

	cmd.AddCommand(newClearCmd(opts), newHistoryCmd(opts), newSendCmd(opts))
	return cmd
}

func (o *rootOptions) newClient(reconnect bool) (*client.Client, error) {
	return client.New(client.Options{
		ServerURL: o.server,
		Name:      o.name,
		Logger:    applog.NewWithWriter(o.logLevel, os.Stderr),
		Reconnect: reconnect,
	})
}

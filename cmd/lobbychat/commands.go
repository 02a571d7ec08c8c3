package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/lobbychat/internal/client"
	"github.com/vovakirdan/lobbychat/internal/proto"
)

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the chat history for everyone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := opts.newClient(false)
			if err != nil {
				return err
			}
			msg, err := c.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored messages as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := opts.newClient(false)
			if err != nil {
				return err
			}
			entries, err := c.History(ctx, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10),
					proto.FormatTimestamp(e.Timestamp),
					e.Sender,
					e.Content,
				})
			}
			writeTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "show only the most recent N messages (0 = all)")
	return cmd
}

func writeTable(out io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Timestamp", "Sender", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and wait until the server relays it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := opts.newClient(false)
			if err != nil {
				return err
			}
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			go func() { _ = c.Run(ctx) }()

			text := strings.TrimSpace(strings.Join(args, " "))
			sentAt := time.Now().UTC().Truncate(time.Microsecond)
			if err := c.Send(ctx, text); err != nil {
				return err
			}

			for line := range c.Lines() {
				if isEcho(line, c.Name(), text, sentAt) {
					fmt.Fprintln(cmd.OutOrStdout(), line.Raw)
					return nil
				}
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("no echo received: %w", err)
			}
			return errors.New("connection closed before the message was relayed")
		},
	}
}

// isEcho reports whether line is the server's relay of text sent at sentAt.
// Replayed history may hold an identical older line, so it is told apart by
// its timestamp.
func isEcho(line client.Line, name, text string, sentAt time.Time) bool {
	if line.Parsed == nil {
		return false
	}
	return line.Parsed.Sender == name &&
		line.Parsed.Content == text &&
		!line.Parsed.Timestamp.Before(sentAt)
}

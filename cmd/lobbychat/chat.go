package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vovakirdan/lobbychat/internal/client"
	"github.com/vovakirdan/lobbychat/internal/proto"
)

func runChat(parent context.Context, opts *rootOptions, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := scanLines(in)

	if strings.TrimSpace(opts.name) == "" {
		fmt.Fprint(out, "Enter your username: ")
		select {
		case line, ok := <-lines:
			if ok {
				opts.name = strings.TrimSpace(line)
			}
		case <-ctx.Done():
			return nil
		}
	}

	c, err := opts.newClient(true)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(out, "Connected to %s as %s\n", opts.server, c.Name())
	fmt.Fprintln(out, "Type messages and press Enter to send. /name, /clear, /quit. Ctrl+C to exit.")

	runErr := make(chan error, 1)
	go func() {
		defer cancel()
		runErr <- c.Run(ctx)
	}()

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for line := range c.Lines() {
			fmt.Fprintln(out, render(line))
		}
	}()

	inputLoop(ctx, c, lines, out)

	cancel()
	_ = c.Close()
	<-rendered
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func scanLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func inputLoop(ctx context.Context, c *client.Client, lines <-chan string, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleInput(ctx, c, line, out); quit {
				return
			}
		}
	}
}

// handleInput runs one line of user input and reports whether to quit.
func handleInput(ctx context.Context, c *client.Client, line string, out io.Writer) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return false
	case text == "/quit":
		return true
	case text == "/clear":
		// a failed clear is reported but never ends the session
		if msg, err := c.Clear(ctx); err != nil {
			fmt.Fprintln(out, renderError(err))
		} else {
			fmt.Fprintln(out, renderNotice(msg))
		}
		return false
	case text == "/name" || strings.HasPrefix(text, "/name "):
		if err := c.SetName(strings.TrimPrefix(text, "/name")); err != nil {
			fmt.Fprintln(out, renderError(fmt.Errorf("invalid username, keeping %q", c.Name())))
		} else {
			fmt.Fprintln(out, renderNotice("username updated to "+c.Name()))
		}
		return false
	}

	if err := c.Send(ctx, text); err != nil {
		fmt.Fprintln(out, renderError(err))
	}
	return false
}

func render(line client.Line) string {
	switch {
	case line.Clear:
		return renderNotice("chat cleared")
	case line.Parsed != nil:
		return renderChatLine(*line.Parsed)
	default:
		return line.Raw
	}
}

func renderChatLine(l proto.Line) string {
	return timestampColor.Sprint(l.Timestamp.Local().Format("15:04:05")) + " " +
		senderColor.Sprint(l.Sender) + ": " + l.Content
}

package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/lobbychat/internal/client"
	"github.com/vovakirdan/lobbychat/internal/config"
	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/proto"
	"github.com/vovakirdan/lobbychat/internal/store"
	"github.com/vovakirdan/lobbychat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/lobbychat/internal/transport/http"
)

type testServer struct {
	url   string
	hub   *core.Hub
	store store.Store
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	hub := core.NewHub(st, &logger, core.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	ts := httptest.NewServer(transporthttp.NewServer(hub, st, &cfg, &logger).Handler)
	t.Cleanup(ts.Close)

	return &testServer{url: ts.URL, hub: hub, store: st}
}

func (s *testServer) waitClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.hub.Stats().Clients == n }, 2*time.Second, 10*time.Millisecond)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-level", "disabled"))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

// syncBuffer lets the render goroutine and the input loop share one writer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSendPrintsOwnEchoNotReplayedDuplicate(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()

	// Given an identical message already in the history
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	req.NoError(srv.store.SaveMessage(ctx, &store.Message{Sender: "alice", Content: "hi", CreatedAt: old}))

	// When sending it again
	out, err := execute(t, "send", "--server", srv.url, "--name", "alice", "hi")

	// Then the fresh relay is printed and both copies are stored
	req.NoError(err)
	req.NotContains(out, "2020-01-01")
	line, err := proto.ParseOutbound(strings.TrimSpace(out))
	req.NoError(err)
	req.Equal("alice", line.Sender)
	req.Equal("hi", line.Content)
	req.True(line.Timestamp.After(old))

	count, err := srv.store.CountMessages(ctx)
	req.NoError(err)
	req.EqualValues(2, count)
}

func TestIsEcho(t *testing.T) {
	sentAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	line := func(ts time.Time, sender, content string) client.Line {
		return client.Line{Parsed: &proto.Line{Timestamp: ts, Sender: sender, Content: content}}
	}

	require.True(t, isEcho(line(sentAt, "alice", "hi"), "alice", "hi", sentAt))
	require.True(t, isEcho(line(sentAt.Add(time.Millisecond), "alice", "hi"), "alice", "hi", sentAt))
	require.False(t, isEcho(line(sentAt.Add(-time.Second), "alice", "hi"), "alice", "hi", sentAt))
	require.False(t, isEcho(line(sentAt, "bob", "hi"), "alice", "hi", sentAt))
	require.False(t, isEcho(client.Line{Raw: proto.ClearSentinel, Clear: true}, "alice", "hi", sentAt))
}

func TestClearCommand(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()
	req.NoError(srv.store.SaveMessage(ctx, &store.Message{Sender: "alice", Content: "bye"}))

	out, err := execute(t, "clear", "--server", srv.url)
	req.NoError(err)
	req.Equal("Chat cleared\n", out)

	count, err := srv.store.CountMessages(ctx)
	req.NoError(err)
	req.Zero(count)
}

func TestClearCommandReportsFailure(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, srv.store.Close())

	_, err := execute(t, "clear", "--server", srv.url)
	require.ErrorContains(t, err, "500")
}

func TestHistoryCommand(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()
	req.NoError(srv.store.SaveMessage(ctx, &store.Message{Sender: "alice", Content: "first"}))
	req.NoError(srv.store.SaveMessage(ctx, &store.Message{Sender: "bob", Content: "second"}))

	out, err := execute(t, "history", "--server", srv.url, "--limit", "1")
	req.NoError(err)
	req.Contains(out, "bob")
	req.Contains(out, "second")
	req.NotContains(out, "first")
}

func TestHandleInput(t *testing.T) {
	disableColor(t)
	req := require.New(t)
	srv := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &rootOptions{server: srv.url, name: "alice", logLevel: "disabled"}
	c, err := opts.newClient(false)
	req.NoError(err)
	req.NoError(c.Connect(ctx))
	defer c.Close()
	go func() { _ = c.Run(ctx) }()
	srv.waitClients(t, 1)

	var out bytes.Buffer

	req.False(handleInput(ctx, c, "/name bob", &out))
	req.Equal("bob", c.Name())
	req.Contains(out.String(), "username updated to bob")

	out.Reset()
	req.False(handleInput(ctx, c, "/name a:b", &out))
	req.Equal("bob", c.Name())
	req.Contains(out.String(), "invalid username")

	out.Reset()
	req.False(handleInput(ctx, c, "  hello there  ", &out))
	req.Empty(out.String())
	select {
	case line := <-c.Lines():
		req.NotNil(line.Parsed)
		req.Equal("bob", line.Parsed.Sender)
		req.Equal("hello there", line.Parsed.Content)
	case <-ctx.Done():
		t.Fatal("no echo received")
	}

	out.Reset()
	req.False(handleInput(ctx, c, "   ", &out))
	req.Empty(out.String())

	req.True(handleInput(ctx, c, "/quit", &out))
}

func TestHandleInputClearFailureKeepsSession(t *testing.T) {
	disableColor(t)
	srv := startServer(t)
	require.NoError(t, srv.store.Close())

	opts := &rootOptions{server: srv.url, name: "alice", logLevel: "disabled"}
	c, err := opts.newClient(false)
	require.NoError(t, err)

	var out bytes.Buffer
	require.False(t, handleInput(context.Background(), c, "/clear", &out))
	require.True(t, strings.HasPrefix(out.String(), "error: clear chat"))
}

func TestRunChatRelaysAndQuits(t *testing.T) {
	disableColor(t)
	req := require.New(t)
	srv := startServer(t)

	inR, inW := io.Pipe()
	t.Cleanup(func() { _ = inW.Close() })
	out := &syncBuffer{}

	opts := &rootOptions{server: srv.url, name: "alice", logLevel: "disabled", timeout: time.Second}
	done := make(chan error, 1)
	go func() { done <- runChat(context.Background(), opts, inR, out) }()
	srv.waitClients(t, 1)

	_, err := io.WriteString(inW, "hello lobby\n")
	req.NoError(err)
	req.Eventually(func() bool {
		return strings.Contains(out.String(), "alice: hello lobby")
	}, 3*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(inW, "/quit\n")
	req.NoError(err)

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(3 * time.Second):
		t.Fatal("chat did not exit on /quit")
	}
	req.Contains(out.String(), "Connected to "+srv.url+" as alice")
}

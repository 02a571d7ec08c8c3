package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/lobbychat/internal/config"
	"github.com/vovakirdan/lobbychat/internal/proto"
	"github.com/vovakirdan/lobbychat/internal/store"
)

func TestWebSocketBroadcastIncludesSender(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	connB := env.dial(t, ctx)
	env.waitClients(t, 2)

	req.NoError(connA.Write(ctx, websocket.MessageText, []byte(proto.FormatInbound("alice", "hi there"))))

	for _, conn := range []*websocket.Conn{connA, connB} {
		line, err := proto.ParseOutbound(readText(t, ctx, conn))
		req.NoError(err)
		req.Equal("alice", line.Sender)
		req.Equal("hi there", line.Content)
		req.WithinDuration(time.Now(), line.Timestamp, 5*time.Second)
	}

	n, err := env.store.CountMessages(ctx)
	req.NoError(err)
	req.EqualValues(1, n)
}

func TestWebSocketReplaysHistoryOnConnect(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	req.NoError(env.store.SaveMessage(ctx, &store.Message{Sender: "alice", Content: "first", CreatedAt: at}))
	req.NoError(env.store.SaveMessage(ctx, &store.Message{Sender: "bob", Content: "second", CreatedAt: at.Add(time.Second)}))

	conn := env.dial(t, ctx)

	req.Equal("2026-01-02 03:04:05 alice: first", readText(t, ctx, conn))
	req.Equal("2026-01-02 03:04:06 bob: second", readText(t, ctx, conn))
}

func TestWebSocketHistoryLimit(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, func(cfg *config.Config) { cfg.HistoryLimit = 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, text := range []string{"old", "new"} {
		req.NoError(env.store.SaveMessage(ctx, &store.Message{Sender: "alice", Content: text}))
	}

	conn := env.dial(t, ctx)
	req.True(strings.HasSuffix(readText(t, ctx, conn), "alice: new"))
}

func TestWebSocketClearSentinel(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	env.waitClients(t, 1)

	resp, _ := doRequest(t, http.MethodDelete, env.server.URL+"/api/clear")
	req.Equal(http.StatusOK, resp.StatusCode)

	req.Equal(proto.ClearSentinel, readText(t, ctx, conn))
}

func TestWebSocketSkipsMalformedFrames(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	env.waitClients(t, 1)

	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("no separator here")))
	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("alice:    ")))
	req.NoError(conn.Write(ctx, websocket.MessageText, []byte(": still delivered")))

	line, err := proto.ParseOutbound(readText(t, ctx, conn))
	req.NoError(err)
	req.Equal(proto.DefaultName, line.Sender)
	req.Equal("still delivered", line.Content)
}

func TestWebSocketRejectsBinaryFrames(t *testing.T) {
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02}))

	_, _, err := conn.Read(ctx)
	require.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))
}

func TestWebSocketRateLimit(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, func(cfg *config.Config) { cfg.MessagesPerMinute = 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	env.waitClients(t, 1)

	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("alice: one")))
	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("alice: two")))

	req.True(strings.HasSuffix(readText(t, ctx, conn), "alice: one"))

	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	req.Error(err)
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	env.waitClients(t, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	env.waitClients(t, 0)
}

func TestServerHandlerUpgradesWebSocketAndServesAPI(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, env.wsURL(), nil)
	req.NoError(err)
	defer conn.CloseNow()
	req.Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	env.waitClients(t, 1)

	apiResp, body := doRequest(t, http.MethodGet, env.server.URL+"/api/hello")
	req.Equal(http.StatusOK, apiResp.StatusCode)
	req.Contains(string(body), "Hello, your API is live!")

	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("alice: through the mux")))
	req.True(strings.HasSuffix(readText(t, ctx, conn), "alice: through the mux"))
}

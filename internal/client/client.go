// Package client connects to a lobbychat server the way the browser client
// does: one WebSocket for chat lines plus plain HTTP for clearing and
// reading history.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lobbychat/internal/proto"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrInvalidName  = errors.New("name is empty or contains a colon")
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("client closed")
)

// Options configure a Client.
type Options struct {
	// ServerURL is the http(s) or ws(s) base address of the server.
	ServerURL string
	// Name is the initial display name; empty means proto.DefaultName.
	Name       string
	Logger     *zerolog.Logger
	HTTPClient *http.Client
	// Buffer is the capacity of the Lines channel.
	Buffer int
	// Reconnect makes Run redial with exponential backoff after a dropped connection.
	Reconnect  bool
	MaxBackoff time.Duration
}

// Line is one frame received from the server.
type Line struct {
	Raw string
	// Clear is set for the clear sentinel. Run also emits one before the
	// history replay that follows a reconnect.
	Clear bool
	// Parsed is nil when Raw is not a formatted chat line.
	Parsed *proto.Line
}

// HistoryEntry mirrors the server's /api/messages items.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is a single chat session.
type Client struct {
	opts     Options
	log      *zerolog.Logger
	wsURL    string
	httpBase string
	lines    chan Line

	mu     sync.RWMutex
	name   string
	conn   *websocket.Conn
	closed bool
}

// New validates options and derives the ws and http endpoints.
func New(opts Options) (*Client, error) {
	wsURL, httpBase, err := endpoints(opts.ServerURL)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = proto.DefaultName
	}
	if !validName(name) {
		return nil, ErrInvalidName
	}

	return &Client{
		opts:     opts,
		log:      opts.Logger,
		wsURL:    wsURL,
		httpBase: httpBase,
		lines:    make(chan Line, opts.Buffer),
		name:     name,
	}, nil
}

func endpoints(raw string) (wsURL, httpBase string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("server url %q has no host", raw)
	}

	base := *u
	base.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	base.RawQuery = ""
	base.Fragment = ""

	ws := base
	switch u.Scheme {
	case "http", "ws":
		ws.Scheme, base.Scheme = "ws", "http"
	case "https", "wss":
		ws.Scheme, base.Scheme = "wss", "https"
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	ws.Path = base.Path + "/ws"

	return ws.String(), base.String(), nil
}

// Name returns the current display name.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName changes the display name for subsequent messages. Blank names and
// names containing ':' are rejected and the previous name is kept.
func (c *Client) SetName(name string) error {
	name = strings.TrimSpace(name)
	if !validName(name) {
		return ErrInvalidName
	}
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return nil
}

// the server splits frames on the first colon, so a name may not contain one
func validName(name string) bool {
	return name != "" && !strings.Contains(name, ":")
}

// Lines delivers received frames in arrival order. It is closed when Run returns.
func (c *Client) Lines() <-chan Line {
	return c.lines
}

// Connect dials the chat socket.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close(websocket.StatusNormalClosure, "")
		return ErrClosed
	}
	c.conn = conn
	c.log.Debug().Str("url", c.wsURL).Msg("connected")
	return nil
}

// Send trims text and sends it as "<name>: <text>". The server echoes it back
// through Lines like any other message.
func (c *Client) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.RLock()
	conn, name := c.conn, c.name
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame := proto.FormatInbound(name, text)
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	c.log.Debug().Str("frame", frame).Msg("sent")
	return nil
}

// Run reads frames until ctx is cancelled, Close is called, or the connection
// drops with Reconnect disabled.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.lines)

	if c.current() == nil {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	for {
		conn := c.current()
		if conn == nil {
			if c.isClosed() {
				return nil
			}
			return ErrNotConnected
		}

		err := c.readLoop(ctx, conn)
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}
		c.drop()

		if !c.opts.Reconnect {
			if isNormalClose(err) {
				return nil
			}
			return err
		}

		c.log.Warn().Err(err).Msg("connection lost, reconnecting")
		if err := c.reconnect(ctx); err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			return err
		}

		// the server replays history on every connect
		if !c.emit(ctx, Line{Clear: true}) {
			return nil
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		if c.isClosed() {
			return backoff.Permanent(ErrClosed)
		}
		return c.Connect(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", next).Msg("reconnect failed")
	})
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			c.log.Warn().Msg("ignoring binary frame")
			continue
		}
		if !c.emit(ctx, toLine(string(data))) {
			return ctx.Err()
		}
	}
}

func (c *Client) emit(ctx context.Context, line Line) bool {
	select {
	case c.lines <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

func toLine(raw string) Line {
	if raw == proto.ClearSentinel {
		return Line{Raw: raw, Clear: true}
	}
	line := Line{Raw: raw}
	if parsed, err := proto.ParseOutbound(raw); err == nil {
		line.Parsed = &parsed
	}
	return line
}

// Clear asks the server to wipe the history for everyone and returns the
// server's acknowledgement message.
func (c *Client) Clear(ctx context.Context) (string, error) {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/clear", &body); err != nil {
		return "", fmt.Errorf("clear chat: %w", err)
	}
	return body.Message, nil
}

// History fetches stored messages. A limit of zero returns everything.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	path := "/api/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var entries []HistoryEntry
	if err := c.doJSON(ctx, http.MethodGet, path, &entries); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.httpBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errBody.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close ends the session. A running Run returns nil.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) drop() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.CloseNow()
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}

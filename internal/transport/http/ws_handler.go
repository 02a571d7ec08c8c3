package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/utils"
)

var (
	errUnsupportedFrame = errors.New("binary frames are not supported")
	errInvalidUTF8      = errors.New("frame is not valid utf-8")
)

// WSOptions tune per-connection limits.
type WSOptions struct {
	MaxMessageBytes   int64
	ClientBuffer      int
	MessagesPerMinute int
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	log  *zerolog.Logger
	opts WSOptions
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, logger *zerolog.Logger, opts WSOptions) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger, opts: opts}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), r.RemoteAddr, h.opts.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.opts.MessagesPerMinute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if errors.Is(err, errUnsupportedFrame) {
			status = websocket.StatusUnsupportedData
			reason = err.Error()
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rate.Limiter) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws frame")
			return err
		}
		if typ != websocket.MessageText {
			return errUnsupportedFrame
		}

		cmd, err := inboundToCommand(data)
		if err != nil {
			h.log.Warn().Err(err).Str("client_id", client.ID).Int("bytes", len(data)).Msg("dropping inbound frame")
			continue
		}
		if !allowMessage(limiter) {
			h.log.Warn().Str("client_id", client.ID).Msg("rate limit exceeded, dropping message")
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if event.Kind == core.EventError && event.Error != nil {
				h.log.Warn().Str("client_id", client.ID).Str("code", event.Error.Code).Msg(event.Error.Message)
			}
			for _, frame := range framesFromEvent(event) {
				if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
					h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws frame")
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

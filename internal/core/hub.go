package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/lobbychat/internal/store"
)

// Options tune hub behaviour.
type Options struct {
	// HistoryLimit caps the history replayed to new clients. Zero replays everything.
	HistoryLimit int
	// StoreTimeout bounds every store call made from the hub loop.
	StoreTimeout time.Duration
}

// Stats is a snapshot of hub state.
type Stats struct {
	Clients int
}

type inbound struct {
	client *Client
	cmd    *Command
}

type clearRequest struct {
	ctx    context.Context
	result chan error
}

// Hub owns the set of connected clients. Every mutation happens on the Run
// goroutine, which is also the only writer to the store, so stored order
// matches broadcast order.
type Hub struct {
	store store.MessageStore
	log   *zerolog.Logger
	opts  Options

	clients map[*Client]struct{}
	// nextID numbers messages when no store is configured.
	nextID int64

	register   chan *Client
	unregister chan *Client
	commands   chan inbound
	clears     chan clearRequest
	stats      chan chan Stats
	done       chan struct{}
}

// NewHub creates a new chat hub instance. st and logger may be nil.
func NewHub(st store.MessageStore, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Hub{
		store:      st,
		log:        logger,
		opts:       opts,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan inbound, 64),
		clears:     make(chan clearRequest),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			c.close()
		}
		h.clients = map[*Client]struct{}{}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case in := <-h.commands:
			h.handleCommand(ctx, in.client, in.cmd)
		case req := <-h.clears:
			req.result <- h.handleClear(req.ctx)
		case reply := <-h.stats:
			reply <- Stats{Clients: len(h.clients)}
		}
	}
}

// RegisterClient adds a client and starts forwarding its commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
		go h.forward(c)
	case <-h.done:
		c.close()
	}
}

// UnregisterClient removes a client and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clear wipes the stored history and tells every client to clear its view.
func (h *Hub) Clear(ctx context.Context) error {
	req := clearRequest{ctx: ctx, result: make(chan error, 1)}
	select {
	case h.clears <- req:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports the number of connected clients.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return Stats{}
	}
}

// Done is closed once Run has returned and every client stream is closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// forward moves commands from the client's queue into the hub loop.
func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- inbound{client: c, cmd: cmd}:
			case <-c.quit:
				return
			case <-h.done:
				return
			}
		case <-c.quit:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	h.clients[c] = struct{}{}
	h.log.Debug().Str("client_id", c.ID).Str("remote_addr", c.Addr).Int("clients", len(h.clients)).Msg("client registered")

	if h.store == nil {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()

	stored, err := h.store.ListMessages(storeCtx, h.opts.HistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", c.ID).Msg("load history")
		h.deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeStoreFailure, "history unavailable")})
		return
	}
	if len(stored) == 0 {
		return
	}

	h.deliver(c, &Event{
		Kind:     EventHistory,
		Messages: lo.Map(stored, func(m *store.Message, _ int) Message { return fromStore(m) }),
	})
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.log.Debug().Str("client_id", c.ID).Int("clients", len(h.clients)).Msg("client unregistered")
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd.Message)
	default:
		h.deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "unknown command")})
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, msg Message) {
	if msg.Content == "" {
		h.deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "empty message")})
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if h.store != nil {
		record := &store.Message{Sender: msg.Sender, Content: msg.Content, CreatedAt: msg.CreatedAt}

		storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
		err := h.store.SaveMessage(storeCtx, record)
		cancel()
		if err != nil {
			h.log.Error().Err(err).Str("client_id", c.ID).Msg("save message")
			h.deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeStoreFailure, "message not stored")})
			return
		}
		msg = fromStore(record)
	} else {
		h.nextID++
		msg.ID = h.nextID
	}

	h.broadcast(&Event{Kind: EventMessage, Message: msg})
}

func (h *Hub) handleClear(ctx context.Context) error {
	if h.store != nil {
		storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
		removed, err := h.store.ClearMessages(storeCtx)
		cancel()
		if err != nil {
			return err
		}
		h.log.Info().Int64("count", removed).Msg("history cleared")
	}

	h.broadcast(&Event{Kind: EventCleared})
	return nil
}

// broadcast sends an event to every client, sender included.
func (h *Hub) broadcast(event *Event) {
	for c := range h.clients {
		h.deliver(c, event)
	}
}

func (h *Hub) deliver(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
		h.log.Warn().Str("client_id", c.ID).Int("kind", int(event.Kind)).Msg("client buffer full, event dropped")
	}
}

func fromStore(m *store.Message) Message {
	return Message{
		ID:        m.ID,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

package core

import "sync"

// DefaultClientBuffer is the event buffer used when none is configured.
const DefaultClientBuffer = 64

// Client is a chat participant as seen by the core layer.
type Client struct {
	ID       string
	Addr     string
	Commands chan *Command
	Events   chan *Event

	quit      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id, addr string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Addr:     addr,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		quit:     make(chan struct{}),
	}
}

// close is only called from the hub loop.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		close(c.Events)
	})
}

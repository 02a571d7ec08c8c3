package store

import (
	"context"
	"errors"
	"time"
)

// Storage drivers understood by the application.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// ErrUnknownDriver is returned when the configured driver is not supported.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	Sender    string
	Content   string
	CreatedAt time.Time
}

// MessageStore defines message persistence operations.
type MessageStore interface {
	// SaveMessage persists a message. ID is assigned by the store and
	// CreatedAt defaults to the current time when zero.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the limit most recent messages in chronological
	// order. A limit of zero returns everything.
	ListMessages(ctx context.Context, limit int) ([]*Message, error)

	// ClearMessages deletes every message and reports how many were removed.
	ClearMessages(ctx context.Context) (int64, error)

	// CountMessages returns the number of stored messages.
	CountMessages(ctx context.Context) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Close closes the underlying database.
	Close() error
}

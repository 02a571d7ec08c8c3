package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage notifies clients about a new chat message.
	EventMessage EventKind = iota
	// EventHistory delivers stored messages to a freshly registered client.
	EventHistory
	// EventCleared tells clients the history was wiped.
	EventCleared
	// EventError notifies a client that its command failed.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Message  Message
	Messages []Message // For EventHistory
	Error    *CoreError
}

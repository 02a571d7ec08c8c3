package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage stores a chat message and relays it to everyone.
	CommandSendMessage CommandKind = iota
)

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Message Message
}

package core

import "time"

// Message is the domain model for a chat message.
type Message struct {
	ID        int64
	Sender    string
	Content   string
	CreatedAt time.Time
}

package http

import (
	"unicode/utf8"

	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/proto"
)

func inboundToCommand(frame []byte) (*core.Command, error) {
	if !utf8.Valid(frame) {
		return nil, errInvalidUTF8
	}
	sender, content, err := proto.ParseInbound(string(frame))
	if err != nil {
		return nil, err
	}
	return &core.Command{
		Kind: core.CommandSendMessage,
		Message: core.Message{
			// ID and CreatedAt are set by the hub after saving
			Sender:  sender,
			Content: content,
		},
	}, nil
}

// framesFromEvent renders an event as the text frames written to the socket.
// Errors have no wire representation and yield no frames.
func framesFromEvent(event *core.Event) []string {
	switch event.Kind {
	case core.EventMessage:
		return []string{formatMessage(event.Message)}
	case core.EventHistory:
		frames := make([]string, 0, len(event.Messages))
		for _, msg := range event.Messages {
			frames = append(frames, formatMessage(msg))
		}
		return frames
	case core.EventCleared:
		return []string{proto.ClearSentinel}
	default:
		return nil
	}
}

func formatMessage(msg core.Message) string {
	return proto.FormatOutbound(msg.CreatedAt, msg.Sender, msg.Content)
}

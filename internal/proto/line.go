// Package proto defines the plain-text frames exchanged over /ws.
//
// Clients send "<name>: <text>". The server answers with
// "<timestamp> <name>: <text>" for every stored message and with the bare
// ClearSentinel when the history was wiped.
package proto

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ClearSentinel tells clients to wipe their local view.
	ClearSentinel = "clear_chat"

	// DefaultName is used when a frame carries no sender.
	DefaultName = "Anonymous"

	// TimestampLayout renders outbound timestamps (always UTC). The fraction
	// is left out when it is zero.
	TimestampLayout = "2006-01-02 15:04:05.000000"

	wholeSecondLayout = "2006-01-02 15:04:05"
)

var (
	ErrMalformed    = errors.New("frame has no sender separator")
	ErrEmptyContent = errors.New("frame has empty content")
)

// Line is a parsed outbound frame.
type Line struct {
	Timestamp time.Time
	Sender    string
	Content   string
}

// ParseInbound splits a client frame on its first colon.
func ParseInbound(frame string) (sender, content string, err error) {
	sender, content, ok := strings.Cut(frame, ":")
	if !ok {
		return "", "", ErrMalformed
	}
	sender = strings.TrimSpace(sender)
	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", ErrEmptyContent
	}
	if sender == "" {
		sender = DefaultName
	}
	return sender, content, nil
}

// FormatInbound builds the frame a client sends.
func FormatInbound(name, text string) string {
	return name + ": " + text
}

// FormatTimestamp renders ts in UTC with microseconds, omitting the fraction
// for whole seconds.
func FormatTimestamp(ts time.Time) string {
	ts = ts.UTC().Truncate(time.Microsecond)
	if ts.Nanosecond() == 0 {
		return ts.Format(wholeSecondLayout)
	}
	return ts.Format(TimestampLayout)
}

// FormatOutbound builds the frame the server broadcasts.
func FormatOutbound(ts time.Time, sender, content string) string {
	return FormatTimestamp(ts) + " " + sender + ": " + content
}

// ParseOutbound is the inverse of FormatOutbound.
func ParseOutbound(frame string) (Line, error) {
	// date and time are separated by a space, so the timestamp spans two fields
	date, rest, ok := strings.Cut(frame, " ")
	if !ok {
		return Line{}, fmt.Errorf("parse outbound %q: %w", frame, ErrMalformed)
	}
	clock, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return Line{}, fmt.Errorf("parse outbound %q: %w", frame, ErrMalformed)
	}
	// a fractional second after the seconds field is accepted by Parse
	ts, err := time.ParseInLocation(wholeSecondLayout, date+" "+clock, time.UTC)
	if err != nil {
		return Line{}, fmt.Errorf("parse timestamp: %w", err)
	}
	sender, content, ok := strings.Cut(rest, ": ")
	if !ok {
		return Line{}, fmt.Errorf("parse outbound %q: %w", frame, ErrMalformed)
	}
	return Line{Timestamp: ts, Sender: sender, Content: content}, nil
}

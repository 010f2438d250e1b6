// Package wire defines the chat protocol: the event records exchanged
// between server and clients, their JSON encoding, and the
// length-prefixed framing that carries them over a byte stream.
//
// Every frame is encrypted with the recipient's session key before
// transmission, with one exception: the session key itself travels as
// the first frame of a connection in the clear, protected only by the
// TLS transport underneath.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind discriminates the payload of an Event.
type EventKind string

const (
	// KindUsername is sent once by a client to register its identity.
	KindUsername EventKind = "username"
	// KindMessage carries a chat line.  Clients send only the body;
	// the server stamps username, color, and timestamp when relaying.
	KindMessage EventKind = "message"
	// KindTyping is a client's keyboard-activity notification.
	KindTyping EventKind = "typing"
	// KindTypingStatus is the server's human-readable typing summary.
	KindTypingStatus EventKind = "typing_status"
	// KindSystem is a server announcement (joins, departures, welcome).
	KindSystem EventKind = "system"
)

// Color names the palette entry assigned to a user.  It travels on the
// wire as a plain string so clients are free to map it to whatever
// their terminal supports.
type Color string

const (
	ColorRed   Color = "red"
	ColorGreen Color = "green"
	ColorBlue  Color = "blue"
)

// Palette is the assignment order for joining users; the Kth user to
// join gets Palette[(K-1) % len(Palette)].
var Palette = []Color{ColorRed, ColorGreen, ColorBlue}

// Event is one logical frame of the chat protocol.  Which fields are
// meaningful depends on Type; unused fields are omitted from the JSON.
type Event struct {
	Type      EventKind `json:"type"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message,omitempty"`
	Color     Color     `json:"color,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	IsTyping  bool      `json:"is_typing,omitempty"`
}

// Encode returns the canonical JSON form of the event.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses an event from its JSON form.  The Type field must be
// present; unknown kinds decode successfully and are left to the
// dispatcher to ignore.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type field")
	}
	return e, nil
}

// Now returns the wall-clock timestamp in the wire format (HH:MM:SS).
func Now() string {
	return time.Now().Format("15:04:05")
}

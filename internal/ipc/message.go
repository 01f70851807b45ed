// Package ipc is the daemon's local query protocol: newline-delimited JSON
// messages over a unix stream socket.
//
// A message is a tagged variant keyed by "type". ping is answered with
// pong. pong and error are informational and end the exchange. Any other
// type fails to decode.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned when a message's type is outside the
// protocol.
var ErrUnknownMessage = errors.New("unknown message type")

// MessageType discriminates messages.
type MessageType string

const (
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message is one protocol message. Text is only set for TypeError.
type Message struct {
	Type MessageType
	Text string
}

// Ping returns a ping message.
func Ping() Message { return Message{Type: TypePing} }

// Pong returns a pong message.
func Pong() Message { return Message{Type: TypePong} }

// Errorf returns an error message.
func Errorf(format string, args ...any) Message {
	return Message{Type: TypeError, Text: fmt.Sprintf(format, args...)}
}

type wireMessage struct {
	Type    MessageType `json:"type"`
	Message *string     `json:"message,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Type: m.Type}
	switch m.Type {
	case TypePing, TypePong:
	case TypeError:
		text := m.Text
		w.Message = &text
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case TypePing, TypePong:
		*m = Message{Type: w.Type}
	case TypeError:
		if w.Message == nil {
			return fmt.Errorf("error message: missing \"message\"")
		}
		*m = Message{Type: TypeError, Text: *w.Message}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, w.Type)
	}
	return nil
}

// Decode parses one line of the protocol.
func Decode(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// Encode renders a message as one protocol line, including the newline.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return append(b, '\n'), nil
}

// Respond returns the reply to m, or false when m does not expect one.
func Respond(m Message) (Message, bool) {
	if m.Type == TypePing {
		return Pong(), true
	}
	return Message{}, false
}

// Package server defines the wire message shapes exchanged between clients
// and the relay, plus helpers for decoding untrusted inbound payloads.
package server

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MessageType tags the variant of a wire message.
type MessageType string

// Message variants understood by the relay.
const (
	MessageChat    MessageType = "chat"
	MessageSystem  MessageType = "system"
	MessageAssign  MessageType = "assign"
	MessageUsers   MessageType = "users"
	MessageHistory MessageType = "history"
	MessageImage   MessageType = "image"
)

// Message is the JSON object exchanged over a WebSocket connection. Which
// fields are populated depends on Type; absent fields are omitted on the wire.
type Message struct {
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	Room      string      `json:"room,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	MsgID     string      `json:"msgId,omitempty"`
	Name      string      `json:"name,omitempty"`
	Users     []string    `json:"users,omitempty"`
	ImageData string      `json:"imageData,omitempty"`
}

// historyMessage is the private snapshot sent to a connection right after it
// joins. It is a separate shape so an empty history serializes as an empty
// list rather than a missing field.
type historyMessage struct {
	Type     MessageType `json:"type"`
	Room     string      `json:"room"`
	Messages []Message   `json:"messages"`
}

// inboundPayload mirrors the structured form a client may send. Every field
// is optional.
type inboundPayload struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	ImageData string `json:"imageData"`
	MsgID     string `json:"msgId"`
}

// decodeInbound turns a raw client payload into a Message. A payload that is
// not a JSON object is treated as the text of a chat message rather than
// rejected. Missing message IDs are filled with a fresh UUID.
func decodeInbound(raw []byte) Message {
	var in inboundPayload
	if err := json.Unmarshal(raw, &in); err != nil {
		return Message{
			Type:  MessageChat,
			Text:  string(raw),
			MsgID: uuid.NewString(),
		}
	}

	msg := Message{
		Type:      MessageType(in.Type),
		Text:      in.Text,
		MsgID:     in.MsgID,
		ImageData: sanitizeImageData(in.ImageData),
	}
	if msg.Type == "" {
		msg.Type = MessageChat
	}
	if msg.MsgID == "" {
		msg.MsgID = uuid.NewString()
	}
	return msg
}

// sanitizeImageData verifies that an inbound image payload really decodes to
// an image. Anything else is stripped before broadcast and persistence. The
// payload may carry a data-URL prefix such as "data:image/png;base64,".
func sanitizeImageData(data string) string {
	if data == "" {
		return ""
	}

	encoded := data
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return ""
		}
	}

	if !strings.HasPrefix(mimetype.Detect(decoded).String(), "image/") {
		return ""
	}
	return data
}

// usersMessage builds the membership snapshot broadcast for a room.
func usersMessage(room string, names []string) *Message {
	return &Message{Type: MessageUsers, Room: room, Users: names}
}

// systemMessage builds a server-originated notice for a room.
func systemMessage(room, text string) *Message {
	return &Message{Type: MessageSystem, Text: text, Sender: "system", Room: room}
}

/*
Package chat contains the realtime core: the envelope codec, connection
lifecycle, room membership, presence and typing aggregation, and the hub that
owns all shared state.

This file defines the wire envelope. Every frame exchanged over a connection
is one JSON object tagged by a `type` field; the set of types is closed and
dispatch over it is exhaustive. Outbound envelopes carry a server-stamped
ISO-8601 timestamp; inbound timestamps are never trusted.
*/
package chat

import (
	"encoding/json"
	"time"

	"chatrelay/internal/pkg/errs"
)

// MessageType discriminates the envelope union.
type MessageType string

// Inbound message types.
const (
	TypeChatMessage MessageType = "chat_message"
	TypeUserTyping  MessageType = "user_typing"
	TypeJoinRoom    MessageType = "join_room"
	TypeAIRequest   MessageType = "ai_request"
	TypePong        MessageType = "pong"
)

// Outbound-only message types. chat_message and user_typing also travel
// outbound: the echo and the aggregate respectively.
const (
	TypeUserJoined  MessageType = "user_joined"
	TypeUserLeft    MessageType = "user_left"
	TypeRoomJoined  MessageType = "room_joined"
	TypeRoomCreated MessageType = "room_created"
	TypeAIResponse  MessageType = "ai_response"
	TypePing        MessageType = "ping"
	TypeError       MessageType = "error"
)

// Envelope is a single typed message unit. Fields are a union over all
// message types; unused fields are omitted on the wire.
type Envelope struct {
	Type MessageType `json:"type"`

	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
	Room     string `json:"room,omitempty"`
	RoomName string `json:"room_name,omitempty"`

	// Typing is a pointer so a missing field can be told apart from false.
	Typing      *bool    `json:"typing,omitempty"`
	TypingUsers []string `json:"typing_users,omitempty"`

	// Members and MemberCount accompany room_joined.
	Members     []string `json:"members,omitempty"`
	MemberCount int      `json:"member_count,omitempty"`

	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer,omitempty"`
	UseContext bool   `json:"use_context,omitempty"`

	PingID string `json:"ping_id,omitempty"`

	// Code accompanies error envelopes (see the errs package).
	Code int `json:"code,omitempty"`

	// Timestamp is server-stamped on outbound envelopes only.
	Timestamp string `json:"timestamp,omitempty"`
}

// Decode parses inbound bytes into an Envelope and validates the required
// fields for the message type. Malformed JSON and validation failures are
// non-fatal per-message errors; the connection survives both. Unknown types
// decode successfully so the dispatcher can log and drop them.
func Decode(data []byte) (Envelope, *errs.CustomError) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errs.NewError(errs.ErrMalformedEnvelope)
	}

	// Inbound timestamps are ignored, never trusted.
	env.Timestamp = ""

	if missing := env.missingField(); missing != "" {
		return env, errs.NewError(errs.ErrMissingField, missing)
	}

	return env, nil
}

// missingField returns the name of the first required field absent for the
// envelope's type, or "" when the envelope is complete.
func (e Envelope) missingField() string {
	switch e.Type {
	case TypeChatMessage:
		switch {
		case e.Username == "":
			return "username"
		case e.Message == "":
			return "message"
		case e.Room == "":
			return "room"
		}
	case TypeUserTyping:
		switch {
		case e.Username == "":
			return "username"
		case e.Typing == nil:
			return "typing"
		case e.Room == "":
			return "room"
		}
	case TypeJoinRoom:
		switch {
		case e.Room == "":
			return "room"
		case e.Username == "":
			return "username"
		}
	case TypeAIRequest:
		switch {
		case e.Question == "":
			return "question"
		case e.Username == "":
			return "username"
		}
	case TypePong:
		if e.PingID == "" {
			return "ping_id"
		}
	}
	return ""
}

// encodeStamped serializes an outbound envelope with the server timestamp.
func encodeStamped(env Envelope, now time.Time) ([]byte, error) {
	env.Timestamp = now.UTC().Format(time.RFC3339)
	return json.Marshal(env)
}

// errorEnvelope builds the outbound error envelope for a per-message failure.
func errorEnvelope(cerr *errs.CustomError) Envelope {
	return Envelope{
		Type:    TypeError,
		Code:    cerr.Code,
		Message: cerr.Message,
	}
}

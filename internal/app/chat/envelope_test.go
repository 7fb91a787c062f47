package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/pkg/errs"
)

func TestDecodeRoundTrip(t *testing.T) {
	typing := true

	cases := []struct {
		name string
		env  Envelope
	}{
		{
			name: "chat message",
			env:  Envelope{Type: TypeChatMessage, Username: "alice", Message: "hi", Room: "general"},
		},
		{
			name: "typing on",
			env:  Envelope{Type: TypeUserTyping, Username: "alice", Room: "general", Typing: &typing},
		},
		{
			name: "join room",
			env:  Envelope{Type: TypeJoinRoom, Username: "alice", Room: "general"},
		},
		{
			name: "ai request",
			env:  Envelope{Type: TypeAIRequest, Username: "alice", Question: "what is up", UseContext: true},
		},
		{
			name: "pong",
			env:  Envelope{Type: TypePong, PingID: "abc-123"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.env)
			require.NoError(t, err)

			decoded, cerr := Decode(data)
			require.Nil(t, cerr)
			assert.Equal(t, tc.env, decoded)
		})
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, cerr := Decode([]byte(`{"type": "chat_message",`))
	require.NotNil(t, cerr)
	assert.Equal(t, errs.ErrMalformedEnvelope, cerr.Code)
}

func TestDecodeMissingFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"chat without room", `{"type":"chat_message","username":"alice","message":"hi"}`},
		{"chat without message", `{"type":"chat_message","username":"alice","room":"general"}`},
		{"typing without flag", `{"type":"user_typing","username":"alice","room":"general"}`},
		{"join without room", `{"type":"join_room","username":"alice"}`},
		{"ai without question", `{"type":"ai_request","username":"alice"}`},
		{"pong without ping id", `{"type":"pong"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, cerr := Decode([]byte(tc.raw))
			require.NotNil(t, cerr)
			assert.Equal(t, errs.ErrMissingField, cerr.Code)
		})
	}
}

func TestDecodeUnknownTypeSucceeds(t *testing.T) {
	env, cerr := Decode([]byte(`{"type":"hologram_call","username":"alice"}`))
	require.Nil(t, cerr)
	assert.Equal(t, MessageType("hologram_call"), env.Type)
}

func TestDecodeIgnoresInboundTimestamp(t *testing.T) {
	env, cerr := Decode([]byte(`{"type":"pong","ping_id":"x","timestamp":"2001-01-01T00:00:00Z"}`))
	require.Nil(t, cerr)
	assert.Empty(t, env.Timestamp)
}

func TestEncodeStampedSetsTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	data, err := encodeStamped(Envelope{Type: TypeUserJoined, Username: "alice", Room: "general"}, now)
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "2026-08-27T12:00:00Z", out.Timestamp)
}

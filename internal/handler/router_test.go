package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/errs"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := chat.NewHub(nil, nil)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	deps := &AppDeps{
		Hub: hub,
		Config: &configs.AppConfig{
			Environment:    "development",
			Port:           8080,
			AllowedOrigins: []string{},
		},
	}

	srv := httptest.NewServer(Router(deps))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, username string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?username=" + username
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if res != nil {
		res.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) chat.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env chat.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// requireSilence asserts that no envelope arrives within the grace window.
func requireSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var env chat.Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "expected no envelope, got %+v", env)
}

func joinRoom(t *testing.T, conn *websocket.Conn, username, room string) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(chat.Envelope{
		Type:     chat.TypeJoinRoom,
		Username: username,
		Room:     room,
	}))

	joined := readEnvelope(t, conn)
	require.Equal(t, chat.TypeRoomJoined, joined.Type)
	require.Equal(t, room, joined.Room)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Code int               `json:"code"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Zero(t, body.Code)
	assert.Equal(t, "ok", body.Data["status"])
}

func TestWebSocketRequiresUsername(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer res.Body.Close()

	var body struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, errs.ErrInvalidParams, body.Code)
}

func TestJoinEchoAndRoomIsolation(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")

	joinRoom(t, alice, "alice", "general")
	joinRoom(t, bob, "bob", "dev")

	require.NoError(t, alice.WriteJSON(chat.Envelope{
		Type:     chat.TypeChatMessage,
		Username: "alice",
		Message:  "hello",
		Room:     "general",
	}))

	// The sender receives its own message exactly once.
	echo := readEnvelope(t, alice)
	assert.Equal(t, chat.TypeChatMessage, echo.Type)
	assert.Equal(t, "alice", echo.Username)
	assert.Equal(t, "hello", echo.Message)
	assert.Equal(t, "general", echo.Room)
	assert.NotEmpty(t, echo.Timestamp)
	requireSilence(t, alice)

	// Members of other rooms see nothing.
	requireSilence(t, bob)
}

func TestJoinAnnouncesToRoomMembers(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	joinRoom(t, alice, "alice", "general")

	bob := dialWS(t, srv, "bob")
	joinRoom(t, bob, "bob", "general")

	announced := readEnvelope(t, alice)
	assert.Equal(t, chat.TypeUserJoined, announced.Type)
	assert.Equal(t, "bob", announced.Username)
	assert.Equal(t, "general", announced.Room)
}

func TestCreateRoomREST(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv, "alice")
	joinRoom(t, alice, "alice", "general")

	res, err := http.Post(srv.URL+"/api/rooms", "application/json",
		strings.NewReader(`{"name":"Design Talk"}`))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Code int `json:"code"`
		Data struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			MemberCount int    `json:"member_count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Zero(t, body.Code)
	assert.Len(t, body.Data.ID, 6)
	assert.Equal(t, "Design Talk", body.Data.Name)
	assert.Zero(t, body.Data.MemberCount)

	// Connected clients learn about the room regardless of where they sit.
	created := readEnvelope(t, alice)
	assert.Equal(t, chat.TypeRoomCreated, created.Type)
	assert.Equal(t, body.Data.ID, created.Room)
	assert.Equal(t, "Design Talk", created.RoomName)

	listRes, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer listRes.Body.Close()

	var list struct {
		Code int             `json:"code"`
		Data []chat.RoomInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listRes.Body).Decode(&list))

	ids := make([]string, 0, len(list.Data))
	for _, info := range list.Data {
		ids = append(ids, info.ID)
	}
	assert.Contains(t, ids, body.Data.ID)
	assert.Contains(t, ids, "general")
}

func TestCreateRoomRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)

	// Wrong content type.
	res, err := http.Post(srv.URL+"/api/rooms", "text/plain", strings.NewReader("Design"))
	require.NoError(t, err)
	var body struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	res.Body.Close()
	assert.Equal(t, errs.ErrUnsupportedMediaType, body.Code)

	// Blank name.
	res, err = http.Post(srv.URL+"/api/rooms", "application/json", strings.NewReader(`{"name":"  "}`))
	require.NoError(t, err)
	defer res.Body.Close()

	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, errs.ErrRoomNameInvalid, body.Code)
}

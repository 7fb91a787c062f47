package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair upgrades one real WebSocket connection over a loopback server and
// returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if res != nil {
		res.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server side of the pair")
	}
	t.Cleanup(func() { server.Close() })

	return server, client
}

func TestWritePumpClosesOnMissedPong(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()
	defer h.Shutdown()

	serverWS, clientWS := wsPair(t)

	c := NewConn(h, serverWS, "alice")
	c.pingInterval = 20 * time.Millisecond
	c.pongTimeout = 20 * time.Millisecond
	h.Register(c)

	go c.WritePump()

	// The peer reads the ping and never answers it.
	require.NoError(t, clientWS.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ping Envelope
	require.NoError(t, clientWS.ReadJSON(&ping))
	assert.Equal(t, TypePing, ping.Type)
	assert.NotEmpty(t, ping.PingID)

	// The silent peer is cut off with a policy-violation close frame
	// carrying the timeout message.
	var closeErr error
	for {
		var env Envelope
		if err := clientWS.ReadJSON(&env); err != nil {
			closeErr = err
			break
		}
	}
	require.True(t, websocket.IsCloseError(closeErr, websocket.ClosePolicyViolation),
		"expected policy-violation close, got %v", closeErr)
	require.ErrorContains(t, closeErr, "Connection timed out")

	require.Eventually(t, func() bool {
		return c.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWritePumpPongKeepsConnAlive(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()
	defer h.Shutdown()

	serverWS, clientWS := wsPair(t)

	c := NewConn(h, serverWS, "alice")
	c.pingInterval = 20 * time.Millisecond
	c.pongTimeout = 40 * time.Millisecond
	h.Register(c)

	go c.WritePump()
	go c.ReadPump()

	// Answer every ping for a handful of heartbeat cycles.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, clientWS.SetReadDeadline(time.Now().Add(time.Second)))
		var env Envelope
		require.NoError(t, clientWS.ReadJSON(&env))
		require.Equal(t, TypePing, env.Type)
		require.NoError(t, clientWS.WriteJSON(Envelope{Type: TypePong, PingID: env.PingID}))
	}

	assert.Equal(t, StateOpen, c.State())
}

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/chat"
)

// fakeConn is an in-memory transport. Reads are scripted through inbound;
// writes are recorded.
type fakeConn struct {
	mu     sync.Mutex
	writes []chat.Envelope

	inbound   chan any // chat.Envelope or error
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan any, 16)}
}

func (f *fakeConn) ReadJSON(v any) error {
	item, ok := <-f.inbound
	if !ok {
		return errors.New("use of closed connection")
	}
	switch x := item.(type) {
	case error:
		return x
	case chat.Envelope:
		*(v.(*chat.Envelope)) = x
		return nil
	default:
		return errors.New("bad script item")
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, v.(chat.Envelope))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.inbound) })
	return nil
}

func (f *fakeConn) written() []chat.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Envelope, len(f.writes))
	copy(out, f.writes)
	return out
}

// cleanClose is what a server-initiated graceful closure surfaces as a read
// error.
func cleanClose() error {
	return &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

// stateRecorder collects lifecycle transitions and signals Connected.
type stateRecorder struct {
	mu        sync.Mutex
	states    []State
	connected chan struct{}
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{connected: make(chan struct{}, 16)}
}

func (r *stateRecorder) observe(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()

	if s == StateConnected {
		r.connected <- struct{}{}
	}
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoffDelay(0))
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 4*time.Second, backoffDelay(2))
	assert.Equal(t, 8*time.Second, backoffDelay(3))
	assert.Equal(t, 16*time.Second, backoffDelay(4))
	assert.Equal(t, 30*time.Second, backoffDelay(5))
	assert.Equal(t, 30*time.Second, backoffDelay(6))
}

func TestRunGivesUpAfterAttemptBudget(t *testing.T) {
	rec := newStateRecorder()
	c := New(Config{
		URL:           "ws://unreachable/ws?username=alice",
		Username:      "alice",
		OnStateChange: rec.observe,
	})

	c.dial = func(_ context.Context, _ string) (wsConn, error) {
		return nil, errors.New("connection refused")
	}

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, StateGaveUp, c.State())

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, slept)

	states := rec.all()
	assert.Equal(t, StateGaveUp, states[len(states)-1])
	assert.NotContains(t, states, StateConnected)
}

func TestRunCleanCloseDoesNotReconnect(t *testing.T) {
	conn := newFakeConn()
	conn.inbound <- chat.Envelope{Type: chat.TypeChatMessage, Username: "bob", Message: "hi", Room: "general"}
	conn.inbound <- cleanClose()

	var (
		mu       sync.Mutex
		received []chat.Envelope
	)

	dials := 0
	c := New(Config{
		URL:      "ws://server/ws?username=alice",
		Username: "alice",
		OnEnvelope: func(env chat.Envelope) {
			mu.Lock()
			received = append(received, env)
			mu.Unlock()
		},
	})
	c.dial = func(_ context.Context, _ string) (wsConn, error) {
		dials++
		return conn, nil
	}
	c.sleep = func(_ context.Context, _ time.Duration) error {
		t.Fatal("clean closure must not trigger backoff")
		return nil
	}

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, dials)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "hi", received[0].Message)
}

func TestRunReconnectReplaysJoin(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()

	var (
		dialMu sync.Mutex
		conns  = []*fakeConn{first, second}
	)

	rec := newStateRecorder()
	c := New(Config{
		URL:           "ws://server/ws?username=alice",
		Username:      "alice",
		OnStateChange: rec.observe,
	})
	c.dial = func(_ context.Context, _ string) (wsConn, error) {
		dialMu.Lock()
		defer dialMu.Unlock()
		require.NotEmpty(t, conns, "unexpected extra dial")
		conn := conns[0]
		conns = conns[1:]
		return conn, nil
	}
	c.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background()) }()

	<-rec.connected
	require.NoError(t, c.JoinRoom("general"))

	// Abnormal closure: the client must reconnect and replay the join.
	first.inbound <- errors.New("network blip")

	<-rec.connected
	require.Eventually(t, func() bool {
		for _, env := range second.written() {
			if env.Type == chat.TypeJoinRoom && env.Room == "general" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	second.inbound <- cleanClose()
	require.NoError(t, <-runDone)

	writes := first.written()
	require.NotEmpty(t, writes)
	assert.Equal(t, chat.TypeJoinRoom, writes[0].Type)
	assert.Equal(t, "alice", writes[0].Username)
}

func TestReadLoopAnswersPings(t *testing.T) {
	conn := newFakeConn()
	conn.inbound <- chat.Envelope{Type: chat.TypePing, PingID: "p1"}
	conn.inbound <- cleanClose()

	var (
		mu       sync.Mutex
		received []chat.Envelope
	)

	c := New(Config{
		URL:      "ws://server/ws?username=alice",
		Username: "alice",
		OnEnvelope: func(env chat.Envelope) {
			mu.Lock()
			received = append(received, env)
			mu.Unlock()
		},
	})
	c.dial = func(_ context.Context, _ string) (wsConn, error) { return conn, nil }

	require.NoError(t, c.Run(context.Background()))

	writes := conn.written()
	require.Len(t, writes, 1)
	assert.Equal(t, chat.TypePong, writes[0].Type)
	assert.Equal(t, "p1", writes[0].PingID)

	// Heartbeat traffic is never surfaced to the application.
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, received)
}

func TestCloseStopsReconnection(t *testing.T) {
	conn := newFakeConn()

	rec := newStateRecorder()
	c := New(Config{
		URL:           "ws://server/ws?username=alice",
		Username:      "alice",
		OnStateChange: rec.observe,
	})
	c.dial = func(_ context.Context, _ string) (wsConn, error) { return conn, nil }
	c.sleep = func(_ context.Context, _ time.Duration) error {
		t.Error("user close must not trigger backoff")
		return nil
	}

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background()) }()

	<-rec.connected
	require.NoError(t, c.Close())

	require.NoError(t, <-runDone)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRunReturnsOnCanceledContext(t *testing.T) {
	c := New(Config{URL: "ws://server/ws?username=alice", Username: "alice"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestSendsAreNoopsWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://server/ws?username=alice", Username: "alice"})

	assert.NoError(t, c.JoinRoom("general"))
	assert.NoError(t, c.SendChat("hello"))
	assert.NoError(t, c.SetTyping(true))
	assert.NoError(t, c.AskAI("anyone there?", false))
}

func TestSendsAreNoopsWhileTransportTornDown(t *testing.T) {
	c := New(Config{URL: "ws://server/ws?username=alice", Username: "alice"})

	// The state still reads Connected but the read loop has already
	// detached the transport, as happens mid-teardown.
	c.setState(StateConnected)
	c.room = "general"

	assert.NoError(t, c.JoinRoom("dev"))
	assert.NoError(t, c.SendChat("hello"))
	assert.NoError(t, c.SetTyping(true))
	assert.NoError(t, c.AskAI("anyone there?", false))
}

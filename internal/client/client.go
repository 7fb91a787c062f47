package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/pkg/logx"
)

const (
	// baseBackoff is the first reconnection delay.
	baseBackoff = time.Second

	// maxBackoff caps the exponential growth.
	maxBackoff = 30 * time.Second

	// DefaultMaxAttempts is the reconnection budget before giving up.
	DefaultMaxAttempts = 5

	defaultHandshakeTimeout = 10 * time.Second
)

// ErrGaveUp is returned by Run when the reconnection budget is spent.
var ErrGaveUp = errors.New("client: gave up reconnecting")

// wsConn is the slice of *websocket.Conn the client needs, narrowed so tests
// can substitute a fake transport.
type wsConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

type sleepFunc func(ctx context.Context, d time.Duration) error

// Config configures a Client.
type Config struct {
	// URL is the full WebSocket URL including the username query parameter.
	URL string

	// Username is the display name re-sent with join_room replays.
	Username string

	// MaxAttempts bounds consecutive reconnection attempts. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	// HandshakeTimeout bounds the dial. Zero means a 10 s default.
	HandshakeTimeout time.Duration

	// OnEnvelope receives every inbound envelope except heartbeat pings,
	// which the client answers itself. Called from the read loop.
	OnEnvelope func(chat.Envelope)

	// OnStateChange observes lifecycle transitions.
	OnStateChange func(State)
}

// Client is a reconnecting wire-protocol client. Construct with New, drive
// with Run, and use the Send methods while Connected; sends in any other
// state are silent no-ops.
type Client struct {
	cfg Config

	state atomic.Int32

	// dial, sleep, and isCleanClose are injectable so backoff timing and
	// closure classification are testable without sockets or wall clocks.
	dial         dialFunc
	sleep        sleepFunc
	isCleanClose func(error) bool

	mu   sync.Mutex
	conn wsConn

	// room is the last joined room, replayed after a reconnect.
	room string

	userClosed atomic.Bool

	attempts int

	logger zerolog.Logger
}

// New constructs a Client with the default gorilla dialer.
func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	c := &Client{
		cfg: cfg,
		logger: logx.Logger().With().
			Str("component", "client").
			Str("username", cfg.Username).
			Logger(),
	}

	c.dial = func(ctx context.Context, url string) (wsConn, error) {
		d := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	c.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.isCleanClose = func(err error) bool {
		return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	}

	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// backoffDelay returns the reconnection delay for a zero-based attempt.
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << attempt
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Run drives the state machine until a clean closure, context cancellation,
// or the attempt budget is spent (ErrGaveUp). It blocks.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateDisconnected)
			return err
		}

		c.setState(StateConnecting)

		conn, err := c.dial(ctx, c.cfg.URL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dial failed")
			if retryErr := c.backoff(ctx); retryErr != nil {
				return retryErr
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.attempts = 0
		c.setState(StateConnected)
		c.replayJoin()

		readErr := c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if err := ctx.Err(); err != nil {
			c.setState(StateDisconnected)
			return err
		}

		if c.userClosed.Load() || c.isCleanClose(readErr) {
			// Clean closure never triggers reconnection.
			c.setState(StateDisconnected)
			return nil
		}

		c.logger.Warn().Err(readErr).Msg("Connection lost")
		if retryErr := c.backoff(ctx); retryErr != nil {
			return retryErr
		}
	}
}

// backoff waits out the next reconnection delay, or returns ErrGaveUp when
// the budget is spent. Heartbeat traffic never touches this counter; only
// transport failure does.
func (c *Client) backoff(ctx context.Context) error {
	if c.attempts >= c.cfg.MaxAttempts {
		c.setState(StateGaveUp)
		return ErrGaveUp
	}

	delay := backoffDelay(c.attempts)
	c.attempts++

	c.setState(StateBackoff)
	c.logger.Info().
		Dur("delay", delay).
		Int("attempt", c.attempts).
		Msg("Reconnecting after backoff")

	if err := c.sleep(ctx, delay); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	return nil
}

// replayJoin re-issues join_room for the last room so server-side membership
// survives a reconnect transparently.
func (c *Client) replayJoin() {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	if room == "" {
		return
	}

	if err := c.write(chat.Envelope{
		Type:     chat.TypeJoinRoom,
		Room:     room,
		Username: c.cfg.Username,
	}); err != nil {
		c.logger.Warn().Err(err).Str("room", room).Msg("Failed to replay join")
	}
}

// readLoop delivers inbound envelopes until the transport fails. Heartbeat
// pings are answered immediately and never surfaced.
func (c *Client) readLoop(conn wsConn) error {
	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		if env.Type == chat.TypePing {
			if err := c.write(chat.Envelope{
				Type:   chat.TypePong,
				PingID: env.PingID,
			}); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to answer ping")
			}
			continue
		}

		if c.cfg.OnEnvelope != nil {
			c.cfg.OnEnvelope(env)
		}
	}
}

// write serializes access to the transport; the read loop's pong answers and
// callers' sends would otherwise interleave.
func (c *Client) write(env chat.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.New("client: not connected")
	}
	return c.conn.WriteJSON(env)
}

// connectedWriteLocked sends env while Connected and silently no-ops
// otherwise, matching the protocol's behavior for mid-room operations
// attempted while disconnected. The state check and the transport check sit
// under the same mutex hold, so a read loop tearing the connection down
// between them cannot surface as a spurious error. Callers hold c.mu.
func (c *Client) connectedWriteLocked(env chat.Envelope) error {
	if c.State() != StateConnected || c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(env)
}

// JoinRoom switches the client into a room and remembers it for replay.
func (c *Client) JoinRoom(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateConnected || c.conn == nil {
		return nil
	}

	c.room = room
	return c.conn.WriteJSON(chat.Envelope{
		Type:     chat.TypeJoinRoom,
		Room:     room,
		Username: c.cfg.Username,
	})
}

// SendChat sends a chat message to the current room.
func (c *Client) SendChat(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == "" {
		return nil
	}

	return c.connectedWriteLocked(chat.Envelope{
		Type:     chat.TypeChatMessage,
		Username: c.cfg.Username,
		Message:  message,
		Room:     c.room,
	})
}

// SetTyping reports the typing indicator for the current room.
func (c *Client) SetTyping(typing bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == "" {
		return nil
	}

	return c.connectedWriteLocked(chat.Envelope{
		Type:     chat.TypeUserTyping,
		Username: c.cfg.Username,
		Room:     c.room,
		Typing:   &typing,
	})
}

// AskAI relays a question to the server's AI responder.
func (c *Client) AskAI(question string, useContext bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectedWriteLocked(chat.Envelope{
		Type:       chat.TypeAIRequest,
		Username:   c.cfg.Username,
		Question:   question,
		UseContext: useContext,
	})
}

// Close ends the session cleanly; Run returns without reconnecting.
func (c *Client) Close() error {
	c.userClosed.Store(true)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

/*
Package chat contains the realtime core.

This file defines the Conn struct, one live WebSocket connection. The read
pump forwards raw frames to the hub; the write pump owns all socket writes,
including the heartbeat ping envelopes. All other Conn fields are owned by
the hub goroutine.
*/
package chat

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

const (
	// timeout for a single write to the WebSocket connection.
	writeWait = 10 * time.Second

	// interval between heartbeat ping envelopes.
	defaultPingInterval = 30 * time.Second

	// time allowed for the matching pong before the connection is
	// considered half-open.
	defaultPongTimeout = 10 * time.Second

	// maximum allowed size in bytes of an inbound frame.
	maxMessageSize = 8192

	// MaxContentBytes bounds chat message content.
	MaxContentBytes = 4000

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256
)

// ConnState models the per-connection lifecycle.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Close reasons reported when a connection is torn down.
const (
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonClientGone       = "client_disconnect"
	ReasonReadError        = "read_error"
	ReasonSendQueueFull    = "send_queue_full"
	ReasonShutdown         = "server_shutdown"
)

// Conn represents one admitted connection. The hub owns name, room, and
// lastActive; the pumps own the socket; enqueue/releaseQueue are safe from
// any goroutine.
type Conn struct {
	id  string
	ws  *websocket.Conn
	hub *Hub

	// name is the display name resolved before admission; mutable via
	// join_room. Hub goroutine only.
	name string

	// room is the current room id, "" when not in a room. Hub goroutine only.
	room string

	// lastActive is stamped on every dispatched frame. Hub goroutine only.
	lastActive time.Time

	state atomic.Int32

	// lastPong is the unix-nano receipt time of the latest pong, read by the
	// write pump to enforce the heartbeat deadline.
	lastPong atomic.Int64

	// pingInterval and pongTimeout govern the heartbeat. Set before the
	// pumps start; tests shorten them to avoid wall-clock waits.
	pingInterval time.Duration
	pongTimeout  time.Duration

	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte

	logger zerolog.Logger
}

// NewConn constructs a Conn in the Connecting state. ws may be nil in tests;
// the hub never touches the socket directly.
func NewConn(hub *Hub, ws *websocket.Conn, name string) *Conn {
	id := randx.ConnectionID()

	connLogger := logx.Logger().With().
		Str("conn_id", id).
		Str("username", name).
		Logger()

	return &Conn{
		id:           id,
		ws:           ws,
		hub:          hub,
		name:         name,
		pingInterval: defaultPingInterval,
		pongTimeout:  defaultPongTimeout,
		send:         make(chan []byte, sendQueueSize),
		logger:       connLogger,
	}
}

// ID returns the opaque connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// enqueue places an encoded envelope on the outbound queue without blocking.
// A full or released queue returns an error; the caller decides whether that
// costs the connection its life.
func (c *Conn) enqueue(payload []byte) *errs.CustomError {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return errs.NewError(errs.ErrSendQueueFull)
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// releaseQueue closes the outbound queue exactly once, which lets the write
// pump drain and exit.
func (c *Conn) releaseQueue() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// notePong records a heartbeat acknowledgement. Called from the hub on pong.
func (c *Conn) notePong() {
	c.lastPong.Store(time.Now().UnixNano())
}

// ReadPump reads frames from the socket and hands them to the hub. It exits
// on any read error and requests its own close with an appropriate reason.
func (c *Conn) ReadPump() {
	reason := ReasonReadError

	defer func() {
		c.hub.requestClose(c, reason)
	}()

	c.ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = ReasonClientGone
			} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				reason = ReasonHeartbeatTimeout
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Err(err).Msg("Unexpected close while reading")
			}
			return
		}

		c.hub.forward(c, data)
	}
}

// WritePump writes queued envelopes and heartbeat pings to the socket. A
// missed pong deadline closes the connection with reason heartbeat_timeout.
func (c *Conn) WritePump() {
	pingTicker := time.NewTicker(c.pingInterval)
	pongCheck := time.NewTimer(c.pongTimeout)
	if !pongCheck.Stop() {
		<-pongCheck.C
	}

	var pingSentAt time.Time

	defer func() {
		pingTicker.Stop()
		pongCheck.Stop()

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				// Queue released by the hub: graceful close.
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing message")
				return
			}

		case <-pingTicker.C:
			payload, err := encodeStamped(Envelope{
				Type:   TypePing,
				PingID: randx.PingID(),
			}, time.Now())
			if err != nil {
				c.logger.Error().Err(err).Msg("Failed to encode ping envelope")
				continue
			}

			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing ping")
				return
			}

			pingSentAt = time.Now()
			pongCheck.Reset(c.pongTimeout)

		case <-pongCheck.C:
			if c.lastPong.Load() < pingSentAt.UnixNano() {
				cerr := errs.NewError(errs.ErrHeartbeatTimeout)
				c.logger.Warn().
					Time("ping_sent_at", pingSentAt).
					Int("code", cerr.Code).
					Msg("Heartbeat pong missed, closing connection")

				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, cerr.Message)); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing heartbeat close message")
				}

				c.hub.requestClose(c, ReasonHeartbeatTimeout)
				return
			}
		}
	}
}

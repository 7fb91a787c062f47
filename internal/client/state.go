/*
Package client implements the connecting side of the wire protocol: a
reconnection state machine with exponential backoff, room membership replay
after reconnects, and automatic heartbeat acknowledgement.

It depends only on the wire protocol, never on server internals.
*/
package client

// State models the connection lifecycle of the client.
type State int32

const (
	// StateDisconnected is the initial state and the terminal state after a
	// clean closure.
	StateDisconnected State = iota

	// StateConnecting covers the dial and handshake.
	StateConnecting

	// StateConnected means envelopes flow.
	StateConnected

	// StateBackoff is the delay between reconnection attempts after an
	// abnormal closure. User-visible as "disconnected, retrying".
	StateBackoff

	// StateGaveUp is terminal: the attempt budget is spent and the client
	// will not retry. User-visible as "connection failed".
	StateGaveUp
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

/*
Package errs provides custom error types and application-level error code constants.

These codes identify specific failures both internally and in `error` envelopes
sent to connected clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON is malformed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate exceeded the limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Room and Content Errors
const (
	// ErrRoomIDInvalid indicates a room identifier that fails validation.
	ErrRoomIDInvalid = 2101

	// ErrRoomNameInvalid indicates an empty or oversized room name.
	ErrRoomNameInvalid = 2102

	// ErrMessageContentTooLong indicates a chat message over the size limit.
	ErrMessageContentTooLong = 2201
)

// 4xxx: Connection and Wire Protocol Errors
const (
	// ErrHandshakeFailed indicates the WebSocket upgrade failed; the
	// connection was never admitted.
	ErrHandshakeFailed = 4001

	// ErrMalformedEnvelope indicates inbound bytes that are not valid JSON.
	ErrMalformedEnvelope = 4002

	// ErrMissingField indicates a decoded envelope missing a required field
	// for its message type.
	ErrMissingField = 4003

	// ErrHeartbeatTimeout indicates a connection closed for missing its
	// heartbeat pong deadline.
	ErrHeartbeatTimeout = 4004

	// ErrSendQueueFull indicates an outbound queue overflow; the slow
	// connection is closed rather than allowed to block fan-out.
	ErrSendQueueFull = 4005

	// ErrAIUnavailable indicates no AI responder is configured.
	ErrAIUnavailable = 4101

	// ErrAIRequestFailed indicates the AI responder returned an error or
	// exceeded its bounded timeout.
	ErrAIRequestFailed = 4102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)

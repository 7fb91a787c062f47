/*
Package errs provides custom error types and application-level error code constants.

This file maps error codes to their CustomError template, standardizing both
HTTP responses and wire `error` envelopes.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room and Content Errors
	ErrRoomIDInvalid:         {Code: ErrRoomIDInvalid, Message: "Invalid room identifier."},
	ErrRoomNameInvalid:       {Code: ErrRoomNameInvalid, Message: "Invalid room name."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},

	// 4xxx: Connection and Wire Protocol Errors
	ErrHandshakeFailed:   {Code: ErrHandshakeFailed, Message: "Connection handshake failed."},
	ErrMalformedEnvelope: {Code: ErrMalformedEnvelope, Message: "Message is not valid JSON."},
	ErrMissingField:      {Code: ErrMissingField, Message: "Message is missing a required field: %s."},
	ErrHeartbeatTimeout:  {Code: ErrHeartbeatTimeout, Message: "Connection timed out."},
	ErrSendQueueFull:     {Code: ErrSendQueueFull, Message: "Connection is too slow to keep up."},
	ErrAIUnavailable:     {Code: ErrAIUnavailable, Message: "AI assistant is not available."},
	ErrAIRequestFailed:   {Code: ErrAIRequestFailed, Message: "AI assistant could not answer. Please try again."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}

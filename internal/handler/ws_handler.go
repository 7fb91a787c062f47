/*
Package handler provides the HTTP handlers and routing setup for the chatrelay
server.

This file contains the WebSocket admission handler: rate limiting, identity
validation, the protocol upgrade, and the start of the connection lifecycle.
Identity is assumed already resolved upstream; a display name arrives as a
query parameter.
*/
package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

const maxUsernameLength = 64

// HandleWebSocket returns the HandlerFunc that admits WebSocket connections.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		username := strings.TrimSpace(r.URL.Query().Get("username"))
		if username == "" || len(username) > maxUsernameLength {
			logx.Warn("WebSocket request rejected: Missing or invalid username")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Handshake failure: the connection was never admitted. The
			// upgrader has already written its error response.
			logx.Error(err, "Failed to upgrade connection to WebSocket",
				"code", errs.ErrHandshakeFailed)
			return
		}

		client := chat.NewConn(deps.Hub, conn, username)
		deps.Hub.Register(client)

		logx.Info("WebSocket connection established",
			"conn_id", client.ID(), "username", username)

		go client.WritePump()
		client.ReadPump()
	}
}

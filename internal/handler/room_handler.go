/*
Package handler provides the HTTP handlers and routing setup for the chatrelay
server.

This file contains the room REST handlers: explicit creation (with a
discovery broadcast to every connected client) and listing.
*/
package handler

import (
	"net/http"
	"strings"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/req"
	"chatrelay/internal/pkg/resp"
)

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// HandleCreateRoom allocates a new empty room.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateRoomRequest
		if cerr := req.BindJSON(r, &body); cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		name := strings.TrimSpace(body.Name)
		if name == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNameInvalid))
			return
		}

		info, cerr := deps.Hub.CreateRoom(name)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		resp.RespondSuccess(w, r, info)
	}
}

// HandleListRooms returns a snapshot of all rooms.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Hub.Rooms())
	}
}

/*
Package chat contains the realtime core.

This file implements the broadcaster: best-effort fan-out of one encoded
envelope to a snapshot of connections. A single slow or dead recipient is
closed and counted, never allowed to abort delivery to the rest or to block
the hub.
*/
package chat

// sendEach delivers a payload to every target connection. Targets that are
// no longer open hit the already-closed no-op path; targets with a full
// queue are closed with reason send_queue_full.
func (h *Hub) sendEach(targets []*Conn, payload []byte) {
	for _, c := range targets {
		if c.State() != StateOpen {
			continue
		}

		if err := c.enqueue(payload); err != nil {
			h.droppedSends.Add(1)
			h.logger.Warn().
				Str("conn_id", c.id).
				Int64("dropped_total", h.droppedSends.Load()).
				Msg("Send queue full, closing slow connection")
			h.handleClose(c, ReasonSendQueueFull)
		}
	}
}

// broadcastRoom fans an envelope out to a room's current members, optionally
// excluding one connection (the typing sender never receives its own
// indicator; chat messages are echoed by passing no exclusion).
func (h *Hub) broadcastRoom(roomID string, env Envelope, excludeID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	targets := make([]*Conn, 0, room.memberCount())
	for _, id := range room.memberIDs() {
		if id == excludeID {
			continue
		}
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}

	payload, err := encodeStamped(env, h.now())
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("Failed to encode broadcast envelope")
		return
	}

	h.sendEach(targets, payload)
}

// broadcastAll fans an envelope out to every connection regardless of room.
// Used for room_created discovery broadcasts.
func (h *Hub) broadcastAll(env Envelope) {
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}

	payload, err := encodeStamped(env, h.now())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode discovery envelope")
		return
	}

	h.sendEach(targets, payload)
}

// sendEnvelope delivers an envelope to a single connection, closing it on
// queue overflow just like fan-out does.
func (h *Hub) sendEnvelope(c *Conn, env Envelope) {
	payload, err := encodeStamped(env, h.now())
	if err != nil {
		h.logger.Error().Err(err).Str("conn_id", c.id).Msg("Failed to encode envelope")
		return
	}

	h.sendEach([]*Conn{c}, payload)
}

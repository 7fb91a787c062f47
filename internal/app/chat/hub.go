/*
Package chat contains the realtime core.

This file defines the Hub, the single goroutine that owns every piece of
shared mutable state: the connection registry, room membership, the presence
table, and the typing aggregator. Connections, the HTTP layer, and the async
collaborators all talk to it over channels, so no mutation ever races and
every room observes single-writer broadcast ordering.
*/
package chat

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/ai"
	"chatrelay/internal/app/history"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

const (
	// capacity of the inbound frame queue feeding the hub loop.
	inboundQueueSize = 1024

	// number of stored messages replayed to a joining connection.
	historyReplayLimit = 50

	// bound on a single fire-and-forget store call.
	historyTimeout = 5 * time.Second

	// MaxRoomNameLength bounds explicit room creation names.
	MaxRoomNameLength = 100
)

type inboundFrame struct {
	conn *Conn
	data []byte
}

type closeRequest struct {
	conn   *Conn
	reason string
}

type aiResult struct {
	connID   string
	username string
	question string
	answer   string
	err      error
}

type historyReplay struct {
	connID   string
	roomID   string
	messages []history.Message
}

type createRoomRequest struct {
	name  string
	reply chan createRoomResult
}

type createRoomResult struct {
	info RoomInfo
	cerr *errs.CustomError
}

type listRoomsRequest struct {
	reply chan []RoomInfo
}

// RoomInfo is the read-only room view exposed to the HTTP layer.
type RoomInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Hub owns all connections and rooms and serializes every mutation through
// its Run loop.
type Hub struct {
	conns    map[string]*Conn
	rooms    map[string]*Room
	presence *PresenceTable
	typing   *TypingTracker

	register       chan *Conn
	closing        chan closeRequest
	inbound        chan inboundFrame
	aiResults      chan aiResult
	historyReplays chan historyReplay
	roomCreates    chan createRoomRequest
	roomLists      chan listRoomsRequest

	// store persists chat messages fire-and-forget; nil disables history.
	store history.Store

	// responder answers relayed ai_request envelopes; nil disables the relay.
	responder ai.Responder

	// now is injectable for tests.
	now func() time.Time

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// wg tracks in-flight store and responder goroutines.
	wg sync.WaitGroup

	droppedSends atomic.Int64

	logger zerolog.Logger
}

// NewHub constructs a Hub. Either collaborator may be nil.
func NewHub(store history.Store, responder ai.Responder) *Hub {
	hubLogger := logx.Logger().With().Str("component", "hub").Logger()

	return &Hub{
		conns:          make(map[string]*Conn),
		rooms:          make(map[string]*Room),
		presence:       NewPresenceTable(),
		typing:         NewTypingTracker(TypingTTL),
		register:       make(chan *Conn),
		closing:        make(chan closeRequest),
		inbound:        make(chan inboundFrame, inboundQueueSize),
		aiResults:      make(chan aiResult),
		historyReplays: make(chan historyReplay),
		roomCreates:    make(chan createRoomRequest),
		roomLists:      make(chan listRoomsRequest),
		store:          store,
		responder:      responder,
		now:            time.Now,
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		logger:         hubLogger,
	}
}

// Run is the hub's event loop. It must run before any connection is admitted
// and exits only on Shutdown.
func (h *Hub) Run() {
	sweep := time.NewTicker(TypingSweepInterval)

	defer func() {
		sweep.Stop()

		for _, c := range h.conns {
			c.setState(StateClosed)
			c.releaseQueue()
		}
		h.conns = make(map[string]*Conn)

		close(h.done)
		h.logger.Info().Msg("Hub loop stopped")
	}()

	h.logger.Info().Msg("Hub loop started")

	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)

		case req := <-h.closing:
			h.handleClose(req.conn, req.reason)

		case frame := <-h.inbound:
			h.dispatch(frame.conn, frame.data)

		case res := <-h.aiResults:
			h.handleAIResult(res)

		case rep := <-h.historyReplays:
			h.handleHistoryReplay(rep)

		case req := <-h.roomCreates:
			h.handleCreateRoom(req)

		case req := <-h.roomLists:
			h.handleListRooms(req)

		case <-sweep.C:
			h.sweepTyping()

		case <-h.quit:
			return
		}
	}
}

// Shutdown stops the loop, waits for it to drain, and then waits for any
// in-flight collaborator calls.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
	<-h.done
	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete")
}

// Register admits a connection into the registry. The caller starts the
// pumps after Register returns.
func (h *Hub) Register(c *Conn) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.setState(StateClosed)
		c.releaseQueue()
	}
}

// requestClose asks the hub to tear a connection down. Safe from any
// goroutine and idempotent once the connection is closed.
func (h *Hub) requestClose(c *Conn, reason string) {
	select {
	case h.closing <- closeRequest{conn: c, reason: reason}:
	case <-h.quit:
	}
}

// forward hands an inbound frame to the hub loop. Blocking here is the
// designed backpressure on a connection that outruns the hub.
func (h *Hub) forward(c *Conn, data []byte) {
	select {
	case h.inbound <- inboundFrame{conn: c, data: data}:
	case <-h.quit:
	}
}

// CreateRoom allocates a new empty room and broadcasts its existence to
// every connection. Called from the HTTP layer.
func (h *Hub) CreateRoom(name string) (RoomInfo, *errs.CustomError) {
	if name == "" || len(name) > MaxRoomNameLength {
		return RoomInfo{}, errs.NewError(errs.ErrRoomNameInvalid)
	}

	req := createRoomRequest{name: name, reply: make(chan createRoomResult, 1)}

	select {
	case h.roomCreates <- req:
	case <-h.quit:
		return RoomInfo{}, errs.NewError(errs.ErrUnknown)
	}

	res := <-req.reply
	return res.info, res.cerr
}

// Rooms returns a snapshot of all rooms. Called from the HTTP layer.
func (h *Hub) Rooms() []RoomInfo {
	req := listRoomsRequest{reply: make(chan []RoomInfo, 1)}

	select {
	case h.roomLists <- req:
	case <-h.quit:
		return nil
	}

	return <-req.reply
}

// DroppedSends reports how many outbound envelopes were dropped on full
// queues since start.
func (h *Hub) DroppedSends() int64 {
	return h.droppedSends.Load()
}

func (h *Hub) handleRegister(c *Conn) {
	h.conns[c.id] = c
	h.presence.Track(c.id, c.name)
	c.lastActive = h.now()
	c.setState(StateOpen)

	h.logger.Info().
		Str("conn_id", c.id).
		Str("username", c.name).
		Int("total_conns", len(h.conns)).
		Msg("Connection admitted")
}

// dispatch decodes one inbound frame and routes it. Application messages are
// only dispatched for Open connections; anything else is discarded.
func (h *Hub) dispatch(c *Conn, data []byte) {
	if c.State() != StateOpen {
		return
	}

	c.lastActive = h.now()

	env, cerr := Decode(data)
	if cerr != nil {
		h.logger.Warn().
			Str("conn_id", c.id).
			Int("code", cerr.Code).
			Msg("Rejected inbound envelope")
		h.sendEnvelope(c, errorEnvelope(cerr))
		return
	}

	switch env.Type {
	case TypeChatMessage:
		h.handleChat(c, env)
	case TypeUserTyping:
		h.handleTyping(c, env)
	case TypeJoinRoom:
		h.handleJoin(c, env)
	case TypeAIRequest:
		h.handleAIRequest(c, env)
	case TypePong:
		c.notePong()
	default:
		// Unknown types are dropped without closing the connection so newer
		// clients keep working against this server.
		h.logger.Warn().
			Str("conn_id", c.id).
			Str("msg_type", string(env.Type)).
			Msg("Dropping envelope with unknown type")
	}
}

func (h *Hub) handleChat(c *Conn, env Envelope) {
	if env.Room != c.room {
		h.sendEnvelope(c, errorEnvelope(errs.NewError(errs.ErrRoomIDInvalid)))
		return
	}

	if len(env.Message) > MaxContentBytes {
		h.sendEnvelope(c, errorEnvelope(errs.NewError(errs.ErrMessageContentTooLong)))
		return
	}

	out := Envelope{
		Type:     TypeChatMessage,
		Username: env.Username,
		Message:  env.Message,
		Room:     env.Room,
	}

	// Chat messages are echoed back to the sender for UI consistency with
	// the client's optimistic send.
	h.broadcastRoom(env.Room, out, "")

	h.appendHistory(history.Message{
		ID:        randx.MessageID(),
		RoomID:    env.Room,
		Username:  env.Username,
		Body:      env.Message,
		CreatedAt: h.now(),
	})
}

// appendHistory writes a chat event to the external store fire-and-forget.
// Delivery has already happened; a store failure is logged and dropped.
func (h *Hub) appendHistory(msg history.Message) {
	if h.store == nil {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		if err := h.store.Append(ctx, msg); err != nil {
			logx.Error(err, "Failed to append chat message to history store",
				"room_id", msg.RoomID)
		}
	}()
}

func (h *Hub) handleTyping(c *Conn, env Envelope) {
	if env.Room != c.room {
		h.sendEnvelope(c, errorEnvelope(errs.NewError(errs.ErrRoomIDInvalid)))
		return
	}

	changed := h.typing.Set(env.Room, env.Username, *env.Typing, h.now())
	if !changed {
		return
	}

	// The sender is excluded from its own typing indicator.
	h.broadcastRoom(env.Room, h.typingAggregate(env.Room), c.id)
}

// typingAggregate builds the full-set user_typing envelope for a room.
// Clients always receive the complete current set, never a delta.
func (h *Hub) typingAggregate(roomID string) Envelope {
	return Envelope{
		Type:        TypeUserTyping,
		Room:        roomID,
		TypingUsers: h.typing.Names(roomID, h.now()),
	}
}

func (h *Hub) handleJoin(c *Conn, env Envelope) {
	if !randx.IsValidRoomID(env.Room) {
		h.sendEnvelope(c, errorEnvelope(errs.NewError(errs.ErrRoomIDInvalid)))
		return
	}

	if env.Username != "" && env.Username != c.name {
		c.name = env.Username
		h.presence.Rename(c.id, env.Username)
	}

	if c.room == env.Room {
		// Re-join of the current room is a client-requested resync.
		h.sendRoomJoined(c, h.rooms[env.Room])
		return
	}

	h.leaveRoom(c)

	room, ok := h.rooms[env.Room]
	if !ok {
		// Joining an unknown room id creates it.
		room = newRoom(env.Room, env.Room, h.now())
		h.rooms[env.Room] = room
		h.logger.Info().Str("room_id", room.ID).Msg("Room created on first join")
	}

	room.addMember(c.id)
	c.room = room.ID
	h.presence.SetRoom(c.id, room.ID)

	h.sendRoomJoined(c, room)
	h.broadcastRoom(room.ID, Envelope{
		Type:     TypeUserJoined,
		Username: c.name,
		Room:     room.ID,
	}, c.id)

	h.fetchHistory(c.id, room.ID)

	h.logger.Info().
		Str("conn_id", c.id).
		Str("room_id", room.ID).
		Int("member_count", room.memberCount()).
		Msg("Connection joined room")
}

func (h *Hub) sendRoomJoined(c *Conn, room *Room) {
	h.sendEnvelope(c, Envelope{
		Type:        TypeRoomJoined,
		Room:        room.ID,
		RoomName:    room.Name,
		Members:     h.presence.NamesInRoom(room.ID),
		MemberCount: room.memberCount(),
	})
}

// fetchHistory asynchronously loads recent messages for a room and hands
// them back to the loop for replay to the joining connection.
func (h *Hub) fetchHistory(connID, roomID string) {
	if h.store == nil {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		messages, err := h.store.Recent(ctx, roomID, historyReplayLimit)
		if err != nil {
			logx.Error(err, "Failed to load room history", "room_id", roomID)
			return
		}
		if len(messages) == 0 {
			return
		}

		select {
		case h.historyReplays <- historyReplay{connID: connID, roomID: roomID, messages: messages}:
		case <-h.quit:
		}
	}()
}

// handleHistoryReplay delivers stored messages to the joiner as ordinary
// chat_message envelopes stamped with their original times. The connection
// may have moved on or closed in the meantime; then the replay is dropped.
func (h *Hub) handleHistoryReplay(rep historyReplay) {
	c, ok := h.conns[rep.connID]
	if !ok || c.room != rep.roomID {
		return
	}

	for _, msg := range rep.messages {
		payload, err := encodeStamped(Envelope{
			Type:     TypeChatMessage,
			Username: msg.Username,
			Message:  msg.Body,
			Room:     msg.RoomID,
		}, msg.CreatedAt)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to encode history replay envelope")
			return
		}
		h.sendEach([]*Conn{c}, payload)
	}
}

func (h *Hub) handleAIRequest(c *Conn, env Envelope) {
	if h.responder == nil {
		h.sendEnvelope(c, errorEnvelope(errs.NewError(errs.ErrAIUnavailable)))
		return
	}

	req := ai.Request{
		Question:   env.Question,
		Username:   env.Username,
		UseContext: env.UseContext,
	}

	h.wg.Add(1)
	go func(connID string) {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), ai.RequestTimeout)
		defer cancel()

		answer, err := h.responder.Answer(ctx, req)

		select {
		case h.aiResults <- aiResult{
			connID:   connID,
			username: req.Username,
			question: req.Question,
			answer:   answer,
			err:      err,
		}:
		case <-h.quit:
		}
	}(c.id)
}

// handleAIResult relays the responder's answer back to the requesting
// connection only. A closed connection drops the answer.
func (h *Hub) handleAIResult(res aiResult) {
	c, ok := h.conns[res.connID]
	if !ok {
		return
	}

	if res.err != nil {
		h.logger.Warn().Err(res.err).Str("conn_id", res.connID).Msg("AI request failed")
		h.sendEnvelope(c, errorEnvelope(errs.NewError(errs.ErrAIRequestFailed)))
		return
	}

	h.sendEnvelope(c, Envelope{
		Type:     TypeAIResponse,
		Username: res.username,
		Question: res.question,
		Answer:   res.answer,
	})
}

// handleClose tears a connection down: membership, presence, typing, queue.
// Terminal and idempotent; a second close is a no-op.
func (h *Hub) handleClose(c *Conn, reason string) {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateClosing)

	h.leaveRoom(c)
	h.presence.Remove(c.id)
	delete(h.conns, c.id)

	c.releaseQueue()
	c.setState(StateClosed)

	h.logger.Info().
		Str("conn_id", c.id).
		Str("reason", reason).
		Int("total_conns", len(h.conns)).
		Msg("Connection closed")
}

// leaveRoom removes a connection from its current room, if any, emitting
// user_left and pruning its typing entry when no namesake remains. Safe to
// call on a roomless connection.
func (h *Hub) leaveRoom(c *Conn) {
	if c.room == "" {
		return
	}

	roomID := c.room
	name := c.name

	if room, ok := h.rooms[roomID]; ok {
		room.removeMember(c.id)
	}

	c.room = ""
	h.presence.SetRoom(c.id, "")

	h.broadcastRoom(roomID, Envelope{
		Type:     TypeUserLeft,
		Username: name,
		Room:     roomID,
	}, "")

	if !h.presence.RoomHasName(roomID, name) {
		if h.typing.Remove(roomID, name) {
			h.broadcastRoom(roomID, h.typingAggregate(roomID), "")
		}
	}
}

func (h *Hub) handleCreateRoom(req createRoomRequest) {
	var id string
	for {
		generated, err := randx.RoomID()
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to generate room id")
			req.reply <- createRoomResult{cerr: errs.NewError(errs.ErrUnknown)}
			return
		}
		if _, exists := h.rooms[generated]; !exists {
			id = generated
			break
		}
	}

	room := newRoom(id, req.name, h.now())
	h.rooms[id] = room

	// Discovery broadcast: every connection learns about the new room
	// without polling, regardless of its current room.
	h.broadcastAll(Envelope{
		Type:     TypeRoomCreated,
		Room:     id,
		RoomName: req.name,
	})

	h.logger.Info().Str("room_id", id).Str("room_name", req.name).Msg("Room created")

	req.reply <- createRoomResult{info: h.roomInfo(room)}
}

func (h *Hub) handleListRooms(req listRoomsRequest) {
	infos := make([]RoomInfo, 0, len(h.rooms))
	for _, room := range h.rooms {
		infos = append(infos, h.roomInfo(room))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	req.reply <- infos
}

func (h *Hub) roomInfo(room *Room) RoomInfo {
	return RoomInfo{
		ID:          room.ID,
		Name:        room.Name,
		MemberCount: room.memberCount(),
		CreatedAt:   room.CreatedAt,
	}
}

// sweepTyping prunes expired typing entries and re-broadcasts the aggregate
// for every room whose set changed, covering clients that stopped typing
// without saying so.
func (h *Hub) sweepTyping() {
	for _, roomID := range h.typing.Sweep(h.now()) {
		h.broadcastRoom(roomID, h.typingAggregate(roomID), "")
	}
}

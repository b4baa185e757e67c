package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"

	"boardsync-backend/internal/model"
	"boardsync-backend/internal/protocol"
)

// =============================================================================
// Board Hub - per-board websocket rooms
// =============================================================================

// wsConn is the slice of websocket.Conn the hub writes through.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// BoardHub manages all board rooms and their connections.
type BoardHub struct {
	rooms map[string]*BoardRoom
	mu    sync.RWMutex
}

// BoardRoom is one board's logical room: the connected clients and a
// single outbound broadcast queue, so room delivery has one owner
// instead of ad hoc socket iteration at every call site.
type BoardRoom struct {
	BoardID   string
	clients   map[string]*RoomClient // socketID -> client
	broadcast chan *outboundMessage
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	hub       *BoardHub
	isRunning bool
}

// RoomClient is one connected participant's transport-side state.
type RoomClient struct {
	SocketID    string
	UserID      int64
	DisplayName string
	Role        model.Role
	CanDraw     bool
	Conn        wsConn
	writeMu     sync.Mutex
}

type outboundMessage struct {
	data         []byte
	exceptSocket string // empty broadcasts to everyone
}

func NewBoardHub() *BoardHub {
	return &BoardHub{rooms: make(map[string]*BoardRoom)}
}

// GetOrCreateRoom gets an existing room or creates a new one.
func (h *BoardHub) GetOrCreateRoom(boardID string) *BoardRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[boardID]; exists {
		return room
	}

	ctx, cancel := context.WithCancel(context.Background())
	room := &BoardRoom{
		BoardID:   boardID,
		clients:   make(map[string]*RoomClient),
		broadcast: make(chan *outboundMessage, 100),
		ctx:       ctx,
		cancel:    cancel,
		hub:       h,
	}

	h.rooms[boardID] = room
	log.Info().Str("board", boardID).Msg("room created")

	return room
}

// Room returns the room for a board without creating it.
func (h *BoardHub) Room(boardID string) (*BoardRoom, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[boardID]
	return room, ok
}

// RemoveRoom shuts down and drops an empty room.
func (h *BoardHub) RemoveRoom(boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[boardID]; exists {
		room.mu.Lock()
		room.shutdown()
		room.mu.Unlock()
		delete(h.rooms, boardID)
		log.Info().Str("board", boardID).Msg("room removed")
	}
}

// CleanupEmptyRooms drops rooms with no connected clients. Maintenance
// op; clients reconnecting later simply get a fresh room.
func (h *BoardHub) CleanupEmptyRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for boardID, room := range h.rooms {
		// Emptiness check and shutdown in one critical section, so a join
		// racing the sweep either lands before it (room kept) or observes
		// the cancelled context and re-registers.
		room.mu.Lock()
		if len(room.clients) == 0 {
			room.shutdown()
			delete(h.rooms, boardID)
			removed++
		}
		room.mu.Unlock()
	}
	if removed > 0 {
		log.Info().Int("rooms", removed).Msg("empty rooms cleaned up")
	}
	return removed
}

// =============================================================================
// Room methods
// =============================================================================

// AddClient registers a client and starts the broadcaster on first use.
// A room swept between lookup and join is already dead, so joining it
// re-registers through the hub; callers must keep using the returned room.
func (r *BoardRoom) AddClient(client *RoomClient) *BoardRoom {
	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return r.hub.GetOrCreateRoom(r.BoardID).AddClient(client)
	}

	r.clients[client.SocketID] = client
	total := len(r.clients)
	if !r.isRunning {
		r.isRunning = true
		go r.runBroadcaster()
	}
	r.mu.Unlock()

	log.Info().
		Str("board", r.BoardID).
		Int64("user", client.UserID).
		Str("role", client.Role.String()).
		Int("total", total).
		Msg("client joined room")
	return r
}

// RemoveClient drops a client; the room itself is reclaimed by the
// maintenance sweep, not here, so a quick reconnect finds it again.
func (r *BoardRoom) RemoveClient(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[socketID]; !ok {
		return
	}
	delete(r.clients, socketID)
	log.Info().Str("board", r.BoardID).Str("socket", socketID).Int("remaining", len(r.clients)).Msg("client left room")
}

// Client returns the client for a socket id.
func (r *BoardRoom) Client(socketID string) (*RoomClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[socketID]
	return c, ok
}

// Clients returns a snapshot of the connected clients.
func (r *BoardRoom) Clients() []*RoomClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RoomClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast queues a frame for every client in the room.
func (r *BoardRoom) Broadcast(msgType string, payload any) {
	r.enqueue(msgType, payload, "")
}

// BroadcastExcept queues a frame for every client except the sender.
func (r *BoardRoom) BroadcastExcept(msgType string, payload any, exceptSocket string) {
	r.enqueue(msgType, payload, exceptSocket)
}

func (r *BoardRoom) enqueue(msgType string, payload any, exceptSocket string) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Error().Str("board", r.BoardID).Str("type", msgType).Err(err).Msg("encode failed")
		return
	}
	select {
	case r.broadcast <- &outboundMessage{data: data, exceptSocket: exceptSocket}:
	default:
		log.Warn().Str("board", r.BoardID).Str("type", msgType).Msg("broadcast buffer full, frame dropped")
	}
}

// Send writes a frame to a single client.
func (r *BoardRoom) Send(client *RoomClient, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Error().Str("board", r.BoardID).Str("type", msgType).Err(err).Msg("encode failed")
		return
	}
	r.sendToClient(client, data)
}

// shutdown cancels the room. Callers must hold r.mu.
func (r *BoardRoom) shutdown() {
	r.isRunning = false
	r.cancel()
}

// =============================================================================
// Room goroutine
// =============================================================================

func (r *BoardRoom) runBroadcaster() {
	log.Debug().Str("board", r.BoardID).Msg("broadcaster started")
	defer log.Debug().Str("board", r.BoardID).Msg("broadcaster stopped")

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-r.broadcast:
			if !ok {
				return
			}
			r.deliver(msg)
		}
	}
}

func (r *BoardRoom) deliver(msg *outboundMessage) {
	r.mu.RLock()
	clients := make([]*RoomClient, 0, len(r.clients))
	for _, c := range r.clients {
		if msg.exceptSocket != "" && c.SocketID == msg.exceptSocket {
			continue
		}
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		r.sendToClient(client, msg.data)
	}
}

func (r *BoardRoom) sendToClient(client *RoomClient, data []byte) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Str("board", r.BoardID).Int64("user", client.UserID).Err(err).Msg("send failed")
	}
}

// WaitDrained blocks briefly until queued broadcasts are flushed. Test
// helper for the asynchronous delivery path.
func (r *BoardRoom) WaitDrained(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.broadcast) == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"boardsync-backend/internal/cache"
	"boardsync-backend/internal/metrics"
	"boardsync-backend/internal/model"
	"boardsync-backend/internal/protocol"
	"boardsync-backend/internal/store"
)

// BoardWSHandler drives the whiteboard socket protocol: join handshake,
// stroke lifecycle relay, authoritative canvas broadcasts, presence
// gossip and soft-leave cleanup.
type BoardWSHandler struct {
	store    *store.BoardStore
	registry *store.SessionRegistry
	hub      *BoardHub
	cache    *cache.BoardCache
}

func NewBoardWSHandler(boardStore *store.BoardStore, registry *store.SessionRegistry, hub *BoardHub, boardCache *cache.BoardCache) *BoardWSHandler {
	return &BoardWSHandler{
		store:    boardStore,
		registry: registry,
		hub:      hub,
		cache:    boardCache,
	}
}

// HandleWebSocket runs one connection's read loop. The first message must
// be a join; everything else is dropped until the handshake completes.
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	metrics.ConnectedClients.Inc()
	defer metrics.ConnectedClients.Dec()

	var (
		room     *BoardRoom
		client   *RoomClient
		socketID = uuid.New().String()
	)

	defer func() {
		if room != nil && client != nil {
			h.disconnect(room, client)
		}
		c.Close()
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msgBytes, &env); err != nil {
			continue
		}

		if room == nil {
			if env.Type != protocol.TypeJoin {
				continue
			}
			room, client = h.handleJoin(c, &env, socketID)
			if room == nil {
				return
			}
			continue
		}

		switch env.Type {
		case protocol.TypeDrawingStart:
			h.handleDrawingStart(room, client, &env)
		case protocol.TypeDrawing:
			h.handleDrawing(room, client, &env)
		case protocol.TypeDrawingEnd:
			h.handleDrawingEnd(room, client, &env)
		case protocol.TypeClearCanvas:
			h.handleClear(room, client)
		case protocol.TypeCanvasAction:
			h.handleCanvasAction(room, client, &env)
		case protocol.TypeCursorMove:
			h.handleCursorMove(room, client, &env)
		case protocol.TypeToolChange:
			h.handleToolChange(room, client, &env)
		case protocol.TypeLeave:
			return
		default:
			room.Send(client, protocol.TypeError, protocol.ErrorPayload{
				Code:    "BAD_MESSAGE",
				Message: "unknown message type " + env.Type,
			})
		}
	}
}

// handleJoin resolves the board (creating it on first request), derives
// role and draw permission, registers presence and replies with the
// authoritative state. Join succeeds even when persistence is down: the
// store degrades to empty defaults internally.
func (h *BoardWSHandler) handleJoin(c *websocket.Conn, env *protocol.Envelope, socketID string) (*BoardRoom, *RoomClient) {
	ctx := context.Background()

	var payload protocol.JoinPayload
	if err := env.DecodePayload(&payload); err != nil {
		h.rejectJoin(c, "BAD_MESSAGE", "malformed join payload")
		return nil, nil
	}
	// The middleware-authenticated identity wins over the payload.
	if v := c.Locals("userID"); v != nil {
		if id, ok := v.(int64); ok && id != 0 {
			payload.UserID = id
		}
	}
	if err := payload.Validate(); err != nil {
		h.rejectJoin(c, "BAD_MESSAGE", err.Error())
		return nil, nil
	}

	board, err := h.resolveBoard(ctx, &payload)
	if err != nil {
		code := "JOIN_FAILED"
		if errors.Is(err, store.ErrNotFound) {
			code = "NOT_FOUND"
		} else if errors.Is(err, store.ErrPermissionDenied) {
			code = "PERMISSION_DENIED"
		}
		h.rejectJoin(c, code, "unable to join board")
		return nil, nil
	}

	role, canDraw := h.store.ResolveAccess(ctx, board, payload.UserID)

	sess := h.registry.FindOrCreate(board.BoardID)
	h.registry.Join(board.BoardID, payload.UserID, payload.DisplayName, socketID, role)

	room := h.hub.GetOrCreateRoom(board.BoardID)
	client := &RoomClient{
		SocketID:    socketID,
		UserID:      payload.UserID,
		DisplayName: payload.DisplayName,
		Role:        role,
		CanDraw:     canDraw,
		Conn:        c,
	}
	// AddClient may hand back a fresh room when the maintenance sweep
	// reclaimed this one mid-join.
	room = room.AddClient(client)

	room.Send(client, protocol.TypeJoined, protocol.JoinedPayload{
		SessionID:   sess.SessionID,
		BoardID:     board.BoardID,
		Role:        role,
		CanDraw:     canDraw,
		Permissions: board.Permissions,
		Settings:    board.Settings,
		Version:     board.Version,
	})
	room.Send(client, protocol.TypeState, h.stateFor(ctx, board))
	room.Send(client, protocol.TypeRoster, protocol.RosterPayload{
		Participants: h.registry.Roster(board.BoardID),
	})
	room.BroadcastExcept(protocol.TypeUserJoined, protocol.PresencePayload{
		UserID:      payload.UserID,
		DisplayName: payload.DisplayName,
		Role:        role,
	}, socketID)

	return room, client
}

func (h *BoardWSHandler) rejectJoin(c *websocket.Conn, code, message string) {
	if data, err := protocol.Encode(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message}); err == nil {
		c.WriteMessage(websocket.TextMessage, data)
	}
}

func (h *BoardWSHandler) resolveBoard(ctx context.Context, payload *protocol.JoinPayload) (*model.Board, error) {
	if payload.BoardID != "" {
		board, err := h.store.GetBoard(ctx, payload.BoardID)
		if err == nil {
			return board, nil
		}
		if !errors.Is(err, store.ErrNotFound) || payload.MeetingID == 0 {
			return nil, err
		}
	}
	board, _, err := h.store.CreateBoard(ctx, payload.MeetingID, payload.UserID)
	return board, err
}

// stateFor picks the authoritative canvas representation: the cached
// raster when it matches the current version, then the latest raster
// element, then the raw element log as fallback. Raster wins because
// replaying the log client-side is lossy once elements have degenerated
// into raster captures.
func (h *BoardWSHandler) stateFor(ctx context.Context, board *model.Board) protocol.StatePayload {
	if cached := h.cache.LatestRaster(ctx, board.BoardID); cached != nil && cached.Version == board.Version {
		return protocol.StatePayload{Image: cached.Image, Version: board.Version}
	}
	elems, err := h.store.Elements(ctx, board.BoardID)
	if err != nil {
		log.Warn().Str("board", board.BoardID).Err(err).Msg("element log unavailable, sending empty state")
		return protocol.StatePayload{Version: board.Version}
	}
	if raster := model.LatestRaster(elems); raster != nil {
		return protocol.StatePayload{Image: raster.Image, Version: board.Version}
	}
	return protocol.StatePayload{Elements: elems, Version: board.Version}
}

// Start/move messages are ephemeral live feedback: relayed to the rest of
// the room, never persisted, and silently dropped for non-drawers.
func (h *BoardWSHandler) handleDrawingStart(room *BoardRoom, client *RoomClient, env *protocol.Envelope) {
	if !client.CanDraw {
		return
	}
	var payload protocol.DrawingStartPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	payload.SenderID = client.UserID
	room.BroadcastExcept(protocol.TypeDrawingStart, payload, client.SocketID)
	h.registry.RecordDrawEvent(room.BoardID)
	metrics.DrawEvents.WithLabelValues(room.BoardID).Inc()
}

func (h *BoardWSHandler) handleDrawing(room *BoardRoom, client *RoomClient, env *protocol.Envelope) {
	if !client.CanDraw {
		return
	}
	var payload protocol.DrawingPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	payload.SenderID = client.UserID
	room.BroadcastExcept(protocol.TypeDrawing, payload, client.SocketID)
	h.registry.RecordDrawEvent(room.BoardID)
	metrics.DrawEvents.WithLabelValues(room.BoardID).Inc()
}

// handleDrawingEnd commits the stroke's final raster as the durable
// element and swaps every client to it. The broadcast is deliberately not
// conditioned on the persistence write: durability is traded for
// liveness.
func (h *BoardWSHandler) handleDrawingEnd(room *BoardRoom, client *RoomClient, env *protocol.Envelope) {
	if !client.CanDraw {
		return
	}
	var payload protocol.DrawingEndPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	if err := payload.Validate(); err != nil {
		return
	}

	ctx := context.Background()
	data := model.ElementData{Kind: model.ElementKindCanvasRaster, Image: payload.Image}
	_, version, err := h.store.AppendElement(ctx, room.BoardID, data, client.UserID)
	if err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			// Permissions changed underneath the stroke; drop it.
			return
		}
		log.Warn().Str("board", room.BoardID).Int64("user", client.UserID).Err(err).Msg("element append failed, broadcasting anyway")
	}

	payload.SenderID = client.UserID
	room.BroadcastExcept(protocol.TypeDrawingEnd, payload, client.SocketID)
	room.Broadcast(protocol.TypeCanvasBroadcast, protocol.CanvasBroadcastPayload{
		Image:    payload.Image,
		AuthorID: client.UserID,
		Version:  version,
	})

	h.cache.SetLatestRaster(ctx, room.BoardID, &cache.CachedRaster{
		Image:    payload.Image,
		AuthorID: client.UserID,
		Version:  version,
	})
	h.cache.AppendHistory(ctx, room.BoardID, model.HistoryEntry{
		Action:    model.ActionElementAdded,
		ActorID:   client.UserID,
		Timestamp: time.Now(),
	})
	h.registry.RecordElementCreated(room.BoardID)
	metrics.ElementsCreated.WithLabelValues(room.BoardID).Inc()
	metrics.CanvasBroadcasts.WithLabelValues(room.BoardID).Inc()
}

// handleClear is a gated, explicit action: denials surface to the sender,
// success is rebroadcast to the whole room, sender included.
func (h *BoardWSHandler) handleClear(room *BoardRoom, client *RoomClient) {
	ctx := context.Background()
	board, err := h.store.Clear(ctx, room.BoardID, client.UserID)
	if err != nil {
		code := "CLEAR_FAILED"
		if errors.Is(err, store.ErrPermissionDenied) {
			code = "PERMISSION_DENIED"
		} else if errors.Is(err, store.ErrNotFound) {
			code = "NOT_FOUND"
		}
		room.Send(client, protocol.TypeError, protocol.ErrorPayload{Code: code, Message: "clear rejected"})
		return
	}

	h.cache.DeleteBoard(ctx, room.BoardID)
	h.cache.AppendHistory(ctx, room.BoardID, model.HistoryEntry{
		Action:    model.ActionCanvasCleared,
		ActorID:   client.UserID,
		Timestamp: time.Now(),
	})
	room.Broadcast(protocol.TypeCanvasCleared, protocol.CanvasClearedPayload{
		ActorID: client.UserID,
		Version: board.Version,
	})
}

// handleCanvasAction persists a client-local undo/redo raster as the new
// authoritative state. The server holds no undo log: an undo is a write
// of a previous raster.
func (h *BoardWSHandler) handleCanvasAction(room *BoardRoom, client *RoomClient, env *protocol.Envelope) {
	var payload protocol.CanvasActionPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	if err := payload.Validate(); err != nil {
		room.Send(client, protocol.TypeError, protocol.ErrorPayload{Code: "BAD_MESSAGE", Message: err.Error()})
		return
	}

	ctx := context.Background()
	_, version, err := h.store.ReplaceCanvas(ctx, room.BoardID, payload.Image, client.UserID, payload.Kind)
	if err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			room.Send(client, protocol.TypeError, protocol.ErrorPayload{Code: "PERMISSION_DENIED", Message: payload.Kind + " rejected"})
		}
		return
	}

	room.Broadcast(protocol.TypeCanvasBroadcast, protocol.CanvasBroadcastPayload{
		Image:    payload.Image,
		AuthorID: client.UserID,
		Version:  version,
	})
	h.cache.SetLatestRaster(ctx, room.BoardID, &cache.CachedRaster{
		Image:    payload.Image,
		AuthorID: client.UserID,
		Version:  version,
	})
	metrics.CanvasBroadcasts.WithLabelValues(room.BoardID).Inc()
}

// Cursor and tool gossip is read-only presence data: never gated, never
// persisted, relayed verbatim with the sender attached.
func (h *BoardWSHandler) handleCursorMove(room *BoardRoom, client *RoomClient, env *protocol.Envelope) {
	var payload protocol.CursorPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	h.registry.UpdateCursor(room.BoardID, client.SocketID, payload.Cursor)
	payload.SenderID = client.UserID
	room.BroadcastExcept(protocol.TypeCursorMove, payload, client.SocketID)
}

func (h *BoardWSHandler) handleToolChange(room *BoardRoom, client *RoomClient, env *protocol.Envelope) {
	var payload protocol.ToolPayload
	if err := env.DecodePayload(&payload); err != nil {
		return
	}
	h.registry.UpdateTool(room.BoardID, client.SocketID, payload.Tool)
	payload.SenderID = client.UserID
	room.BroadcastExcept(protocol.TypeToolChange, payload, client.SocketID)
}

// disconnect soft-leaves the registry and tells the room. Drawn content
// stays.
func (h *BoardWSHandler) disconnect(room *BoardRoom, client *RoomClient) {
	left := h.registry.Leave(room.BoardID, client.SocketID)
	room.RemoveClient(client.SocketID)
	if left != nil {
		room.Broadcast(protocol.TypeUserLeft, protocol.PresencePayload{
			UserID:      left.UserID,
			DisplayName: left.DisplayName,
		})
	}
}

// NotifyPermissionsChanged recomputes role/canDraw for every connected
// client of the board and pushes each its own view of the change. Called
// by the HTTP surface after a permission update so connected clients
// don't wait for a rejoin.
func (h *BoardWSHandler) NotifyPermissionsChanged(ctx context.Context, boardID string) {
	room, ok := h.hub.Room(boardID)
	if !ok {
		return
	}
	board, err := h.store.GetBoard(ctx, boardID)
	if err != nil {
		return
	}
	for _, client := range room.Clients() {
		role, canDraw := h.store.ResolveAccess(ctx, board, client.UserID)
		client.Role = role
		client.CanDraw = canDraw
		room.Send(client, protocol.TypePermissionsUpdated, protocol.PermissionsUpdatedPayload{
			Permissions: board.Permissions,
			Role:        role,
			CanDraw:     canDraw,
			Version:     board.Version,
		})
	}
}

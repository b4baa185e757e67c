package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"boardsync-backend/internal/model"
	"boardsync-backend/internal/protocol"
)

// Options configures a BoardClient connection.
type Options struct {
	// ServerURL is the ws:// or wss:// base, e.g. ws://localhost:8080.
	ServerURL   string
	Token       string
	BoardID     string
	MeetingID   int64
	UserID      int64
	DisplayName string

	// Cache enables crash recovery. Optional.
	Cache *RecoveryCache
}

// BoardClient is a websocket client for one board. Callbacks are invoked
// from the read loop; they must not block.
type BoardClient struct {
	opts Options

	conn    *websocket.Conn
	writeMu sync.Mutex

	// Joined state, set after the server acks the join.
	mu      sync.Mutex
	boardID string
	role    model.Role
	canDraw bool
	version int64

	OnJoined      func(protocol.JoinedPayload)
	OnCanvas      func(image string, version int64)
	OnElements    func(elements []model.BoardElement, version int64)
	OnRoster      func([]model.SessionParticipant)
	OnPeerJoined  func(protocol.PresencePayload)
	OnPeerLeft    func(protocol.PresencePayload)
	OnPeerDrawing func(protocol.DrawingPayload)
	OnCleared     func(protocol.CanvasClearedPayload)
	OnPermissions func(protocol.PermissionsUpdatedPayload)
	OnError       func(code, message string)
}

func New(opts Options) *BoardClient {
	return &BoardClient{opts: opts, boardID: opts.BoardID}
}

// Connect paints the locally cached canvas first, then dials and joins.
// The cached paint gives the user their board back before the network
// answers; the server's state frame reconciles it moments later.
func (c *BoardClient) Connect(ctx context.Context) error {
	if c.opts.Cache != nil && c.OnCanvas != nil && c.opts.BoardID != "" {
		if entry, err := c.opts.Cache.Load(c.opts.BoardID, c.opts.UserID); err == nil && entry.Image != "" {
			c.OnCanvas(entry.Image, entry.Version)
		}
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	c.conn = conn

	if err := c.send(protocol.TypeJoin, protocol.JoinPayload{
		BoardID:     c.opts.BoardID,
		MeetingID:   c.opts.MeetingID,
		UserID:      c.opts.UserID,
		DisplayName: c.opts.DisplayName,
	}); err != nil {
		conn.Close()
		return err
	}

	go c.readLoop()
	return nil
}

func (c *BoardClient) endpoint() (string, error) {
	u, err := url.Parse(c.opts.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	boardPath := c.opts.BoardID
	if boardPath == "" {
		// Joining by meeting: the path segment is advisory, the join
		// payload decides.
		boardPath = model.BoardIDForMeeting(c.opts.MeetingID)
	}
	u.Path = "/ws/board/" + boardPath
	if c.opts.Token != "" {
		q := u.Query()
		q.Set("token", c.opts.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *BoardClient) send(msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *BoardClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.dispatch(&env)
	}
}

func (c *BoardClient) dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoined:
		var p protocol.JoinedPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		c.mu.Lock()
		c.boardID = p.BoardID
		c.role = p.Role
		c.canDraw = p.CanDraw
		c.version = p.Version
		c.mu.Unlock()
		if c.OnJoined != nil {
			c.OnJoined(p)
		}
	case protocol.TypeState:
		var p protocol.StatePayload
		if env.DecodePayload(&p) != nil {
			return
		}
		c.setVersion(p.Version)
		if p.Image != "" {
			c.cacheCanvas(p.Image, p.Version)
			if c.OnCanvas != nil {
				c.OnCanvas(p.Image, p.Version)
			}
		} else if c.OnElements != nil {
			c.OnElements(p.Elements, p.Version)
		}
	case protocol.TypeCanvasBroadcast:
		var p protocol.CanvasBroadcastPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		c.setVersion(p.Version)
		c.cacheCanvas(p.Image, p.Version)
		if c.OnCanvas != nil {
			c.OnCanvas(p.Image, p.Version)
		}
	case protocol.TypeCanvasCleared:
		var p protocol.CanvasClearedPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		c.setVersion(p.Version)
		if c.opts.Cache != nil {
			c.opts.Cache.Drop(c.BoardID(), c.opts.UserID)
		}
		if c.OnCleared != nil {
			c.OnCleared(p)
		}
	case protocol.TypeRoster:
		var p protocol.RosterPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		if c.OnRoster != nil {
			c.OnRoster(p.Participants)
		}
	case protocol.TypeUserJoined:
		var p protocol.PresencePayload
		if env.DecodePayload(&p) != nil {
			return
		}
		if c.OnPeerJoined != nil {
			c.OnPeerJoined(p)
		}
	case protocol.TypeUserLeft:
		var p protocol.PresencePayload
		if env.DecodePayload(&p) != nil {
			return
		}
		if c.OnPeerLeft != nil {
			c.OnPeerLeft(p)
		}
	case protocol.TypeDrawing, protocol.TypeDrawingStart:
		var p protocol.DrawingPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		if c.OnPeerDrawing != nil {
			c.OnPeerDrawing(p)
		}
	case protocol.TypePermissionsUpdated:
		var p protocol.PermissionsUpdatedPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		c.mu.Lock()
		c.role = p.Role
		c.canDraw = p.CanDraw
		c.version = p.Version
		c.mu.Unlock()
		if c.OnPermissions != nil {
			c.OnPermissions(p)
		}
	case protocol.TypeError:
		var p protocol.ErrorPayload
		if env.DecodePayload(&p) != nil {
			return
		}
		if c.OnError != nil {
			c.OnError(p.Code, p.Message)
		}
	}
}

func (c *BoardClient) setVersion(v int64) {
	c.mu.Lock()
	if v > c.version {
		c.version = v
	}
	c.mu.Unlock()
}

func (c *BoardClient) cacheCanvas(image string, version int64) {
	if c.opts.Cache == nil || image == "" {
		return
	}
	c.opts.Cache.Save(RecoveryEntry{
		BoardID: c.BoardID(),
		UserID:  c.opts.UserID,
		Image:   image,
		Version: version,
	})
}

// BoardID returns the server-assigned board id once joined, the
// configured one before.
func (c *BoardClient) BoardID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boardID
}

// Role returns the role the server derived for this user.
func (c *BoardClient) Role() model.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// CanDraw reports whether the server grants this user draw permission.
func (c *BoardClient) CanDraw() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canDraw
}

// Version returns the latest board version seen.
func (c *BoardClient) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *BoardClient) DrawingStart(point protocol.Point, tool, color string, width float64) error {
	return c.send(protocol.TypeDrawingStart, protocol.DrawingStartPayload{
		Point: point, Tool: tool, Color: color, Width: width,
	})
}

func (c *BoardClient) Drawing(point protocol.Point) error {
	return c.send(protocol.TypeDrawing, protocol.DrawingPayload{Point: point})
}

// DrawingEnd commits the final rendered canvas. The authoritative version
// comes back in the canvas-broadcast.
func (c *BoardClient) DrawingEnd(image string) error {
	return c.send(protocol.TypeDrawingEnd, protocol.DrawingEndPayload{Image: image})
}

func (c *BoardClient) ClearCanvas() error {
	return c.send(protocol.TypeClearCanvas, nil)
}

// Undo replays a canvas from the local undo stack as the new shared state.
func (c *BoardClient) Undo(image string) error {
	return c.send(protocol.TypeCanvasAction, protocol.CanvasActionPayload{
		Kind: model.CanvasActionUndo, Image: image,
	})
}

// Redo replays a canvas from the local redo stack as the new shared state.
func (c *BoardClient) Redo(image string) error {
	return c.send(protocol.TypeCanvasAction, protocol.CanvasActionPayload{
		Kind: model.CanvasActionRedo, Image: image,
	})
}

func (c *BoardClient) CursorMove(cursor model.CursorPosition) error {
	return c.send(protocol.TypeCursorMove, protocol.CursorPayload{Cursor: cursor})
}

func (c *BoardClient) ToolChange(tool string) error {
	return c.send(protocol.TypeToolChange, protocol.ToolPayload{Tool: tool})
}

// Leave announces departure and closes the connection.
func (c *BoardClient) Leave() error {
	c.send(protocol.TypeLeave, nil)
	return c.conn.Close()
}

func (c *BoardClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Package protocol defines the whiteboard socket message set. Every
// message is an Envelope with a closed type tag and a typed payload,
// validated at the boundary instead of by convention.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"boardsync-backend/internal/model"
)

// Client -> server message types
const (
	TypeJoin         = "join"
	TypeDrawingStart = "drawing-start"
	TypeDrawing      = "drawing"
	TypeDrawingEnd   = "drawing-end"
	TypeClearCanvas  = "clear-canvas"
	TypeCanvasAction = "canvas-action"
	TypeCursorMove   = "cursor-move"
	TypeToolChange   = "tool-change"
	TypeLeave        = "leave"
)

// Server -> client message types
const (
	TypeJoined             = "joined"
	TypeState              = "state"
	TypeRoster             = "roster"
	TypeUserJoined         = "user-joined"
	TypeUserLeft           = "user-left"
	TypeCanvasBroadcast    = "canvas-broadcast"
	TypeCanvasCleared      = "canvas-cleared"
	TypePermissionsUpdated = "permissions-updated"
	TypeError              = "error"
)

var ErrUnknownType = errors.New("unknown message type")

// Envelope wraps every socket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals a typed payload into a wire frame.
func Encode(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// DecodePayload unmarshals the envelope payload into out, rejecting an
// absent payload.
func (e *Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	return json.Unmarshal(e.Payload, out)
}

// Point is a single sampled canvas coordinate within a stroke.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// JoinPayload opens a session on a board room.
type JoinPayload struct {
	BoardID     string `json:"board_id"`
	UserID      int64  `json:"user_id"`
	MeetingID   int64  `json:"meeting_id"`
	DisplayName string `json:"display_name"`
}

func (p JoinPayload) Validate() error {
	if p.MeetingID == 0 && p.BoardID == "" {
		return errors.New("join: board_id or meeting_id required")
	}
	if p.UserID == 0 {
		return errors.New("join: user_id required")
	}
	return nil
}

// JoinedPayload acknowledges a join with the resolved role and
// permissions.
type JoinedPayload struct {
	SessionID   string                 `json:"session_id"`
	BoardID     string                 `json:"board_id"`
	Role        model.Role             `json:"role"`
	CanDraw     bool                   `json:"can_draw"`
	Permissions model.BoardPermissions `json:"permissions"`
	Settings    model.BoardSettings    `json:"settings"`
	Version     int64                  `json:"version"`
}

// StatePayload carries the authoritative canvas: the latest raster when
// one exists, the raw element log as fallback.
type StatePayload struct {
	Image    string               `json:"image,omitempty"`
	Elements []model.BoardElement `json:"elements,omitempty"`
	Version  int64                `json:"version"`
}

// RosterPayload is the current presence list.
type RosterPayload struct {
	Participants []model.SessionParticipant `json:"participants"`
}

// PresencePayload announces a join or leave to the room.
type PresencePayload struct {
	UserID      int64      `json:"user_id"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        model.Role `json:"role,omitempty"`
}

// DrawingStartPayload begins a stroke. Relayed, never persisted.
type DrawingStartPayload struct {
	Point    Point   `json:"point"`
	Tool     string  `json:"tool"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
	SenderID int64   `json:"sender_id,omitempty"` // set by the server on relay
}

// DrawingPayload is one incremental stroke point. Relayed, never
// persisted; out-of-order arrival is tolerated.
type DrawingPayload struct {
	Point    Point `json:"point"`
	SenderID int64 `json:"sender_id,omitempty"`
}

// DrawingEndPayload completes a stroke with the full rendered canvas,
// which becomes the durable element.
type DrawingEndPayload struct {
	Image    string `json:"image"`
	SenderID int64  `json:"sender_id,omitempty"`
}

func (p DrawingEndPayload) Validate() error {
	if p.Image == "" {
		return errors.New("drawing-end: image required")
	}
	return nil
}

// CanvasBroadcastPayload is the authoritative full-canvas swap every
// client adopts verbatim.
type CanvasBroadcastPayload struct {
	Image    string `json:"image"`
	AuthorID int64  `json:"author_id"`
	Version  int64  `json:"version"`
}

// CanvasClearedPayload announces a gated clear.
type CanvasClearedPayload struct {
	ActorID int64 `json:"actor_id"`
	Version int64 `json:"version"`
}

// CanvasActionPayload replays a client-local undo/redo raster.
type CanvasActionPayload struct {
	Kind  string `json:"kind"` // undo | redo
	Image string `json:"image"`
}

func (p CanvasActionPayload) Validate() error {
	if p.Kind != model.CanvasActionUndo && p.Kind != model.CanvasActionRedo {
		return fmt.Errorf("canvas-action: invalid kind %q", p.Kind)
	}
	if p.Image == "" {
		return errors.New("canvas-action: image required")
	}
	return nil
}

// CursorPayload is best-effort presence gossip, relayed verbatim with the
// sender attached.
type CursorPayload struct {
	Cursor   model.CursorPosition `json:"cursor"`
	SenderID int64                `json:"sender_id,omitempty"`
}

// ToolPayload announces a tool selection. Never gated.
type ToolPayload struct {
	Tool     string `json:"tool"`
	SenderID int64  `json:"sender_id,omitempty"`
}

// PermissionsUpdatedPayload pushes a permission change with the
// receiver's recomputed role and draw flag.
type PermissionsUpdatedPayload struct {
	Permissions model.BoardPermissions `json:"permissions"`
	Role        model.Role             `json:"role"`
	CanDraw     bool                   `json:"can_draw"`
	Version     int64                  `json:"version"`
}

// ErrorPayload reports an explicit rejection to the sender.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

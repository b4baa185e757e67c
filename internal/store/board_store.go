package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"boardsync-backend/internal/auth"
	"boardsync-backend/internal/model"
)

// BoardStore owns the persisted whiteboard document: element log,
// permissions, version counter and the bounded side-logs. When the
// persistence layer is unreachable it degrades to an in-memory fallback so
// live collaboration keeps working without durability.
type BoardStore struct {
	persist  BoardPersistence
	fallback *MemoryPersistence
	meetings MeetingGateway
	mu       sync.Mutex // serializes read-modify-write of board documents
}

func NewBoardStore(persist BoardPersistence, meetings MeetingGateway) *BoardStore {
	return &BoardStore{
		persist:  persist,
		fallback: NewMemoryPersistence(),
		meetings: meetings,
	}
}

func (s *BoardStore) noteDegraded(op string, err error) {
	log.Warn().Str("op", op).Err(err).Msg("persistence unavailable, using in-memory fallback")
}

func (s *BoardStore) findBoard(ctx context.Context, boardID string) (*model.Board, error) {
	b, err := s.persist.FindBoard(ctx, boardID)
	if errors.Is(err, ErrPersistenceUnavailable) {
		s.noteDegraded("find_board", err)
		return s.fallback.FindBoard(ctx, boardID)
	}
	if err == nil {
		return s.reconcile(ctx, b), nil
	}
	return b, err
}

func (s *BoardStore) findBoardByMeeting(ctx context.Context, meetingID int64) (*model.Board, error) {
	b, err := s.persist.FindBoardByMeeting(ctx, meetingID)
	if errors.Is(err, ErrPersistenceUnavailable) {
		s.noteDegraded("find_board_by_meeting", err)
		return s.fallback.FindBoardByMeeting(ctx, meetingID)
	}
	if err == nil {
		return s.reconcile(ctx, b), nil
	}
	return b, err
}

// reconcile picks the newer of the durable copy and the in-memory fallback.
// Mutations made during an outage advance only the fallback; the version
// never moves backwards, so the higher-versioned copy wins and is written
// through to the side that fell behind.
func (s *BoardStore) reconcile(ctx context.Context, durable *model.Board) *model.Board {
	cached, err := s.fallback.FindBoard(ctx, durable.BoardID)
	if err == nil && cached.Version > durable.Version {
		if serr := s.persist.SaveBoard(ctx, cached); serr != nil {
			s.noteDegraded("reconcile_board", serr)
		} else {
			log.Info().Str("board", durable.BoardID).Int64("version", cached.Version).Msg("outage mutations written back to persistence")
		}
		return cached
	}
	_ = s.fallback.SaveBoard(ctx, durable)
	return durable
}

func (s *BoardStore) saveBoard(ctx context.Context, board *model.Board) error {
	_ = s.fallback.SaveBoard(ctx, board)
	if err := s.persist.SaveBoard(ctx, board); err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			s.noteDegraded("save_board", err)
			return nil
		}
		return err
	}
	return nil
}

func (s *BoardStore) appendElement(ctx context.Context, elem *model.BoardElement) error {
	if err := s.persist.AppendElement(ctx, elem); err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			s.noteDegraded("append_element", err)
			return s.fallback.AppendElement(ctx, elem)
		}
		return err
	}
	_ = s.fallback.AppendElement(ctx, &model.BoardElement{
		ID: elem.ID, BoardID: elem.BoardID, AuthorID: elem.AuthorID, Kind: elem.Kind,
		Tool: elem.Tool, Color: elem.Color, Width: elem.Width, Opacity: elem.Opacity,
		Geometry: elem.Geometry, Image: elem.Image, CreatedAt: elem.CreatedAt,
	})
	return nil
}

func (s *BoardStore) loadElements(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	elems, err := s.persist.Elements(ctx, boardID)
	if errors.Is(err, ErrPersistenceUnavailable) {
		s.noteDegraded("elements", err)
		return s.fallback.Elements(ctx, boardID)
	}
	return elems, err
}

func (s *BoardStore) deleteElements(ctx context.Context, boardID string) error {
	_ = s.fallback.DeleteElements(ctx, boardID)
	if err := s.persist.DeleteElements(ctx, boardID); err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			s.noteDegraded("delete_elements", err)
			return nil
		}
		return err
	}
	return nil
}

// hostID resolves the meeting host, treating gateway outages as
// "host unknown" so presence-level flows keep working.
func (s *BoardStore) hostID(ctx context.Context, meetingID int64) int64 {
	host, err := s.meetings.HostID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			s.noteDegraded("meeting_host", err)
			return 0
		}
		return 0
	}
	return host
}

// ResolveAccess derives the caller's role and draw permission for a board.
// Both the HTTP surface and the socket surface go through here so the two
// never disagree.
func (s *BoardStore) ResolveAccess(ctx context.Context, board *model.Board, userID int64) (model.Role, bool) {
	host := s.hostID(ctx, board.MeetingID)
	role := auth.DeriveRole(host, board.Permissions, userID)
	return role, auth.CanDraw(role, board.Permissions)
}

// CreateBoard creates the board for a meeting, or returns the existing one
// unchanged (idempotent create). The requester must be the meeting host or
// an existing participant; membership-check outages degrade to allow so
// drawing keeps working without the meeting service.
func (s *BoardStore) CreateBoard(ctx context.Context, meetingID, requesterID int64) (*model.Board, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, err := s.meetings.HostID(ctx, meetingID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, false, ErrNotFound
	case errors.Is(err, ErrPersistenceUnavailable):
		s.noteDegraded("meeting_host", err)
		host = 0
	case err != nil:
		return nil, false, err
	}

	if host != 0 && requesterID != host {
		member, err := s.meetings.IsMember(ctx, meetingID, requesterID)
		if errors.Is(err, ErrPersistenceUnavailable) {
			s.noteDegraded("meeting_member", err)
			member = true
		} else if err != nil {
			return nil, false, err
		}
		if !member {
			return nil, false, ErrPermissionDenied
		}
	}

	if existing, err := s.findBoardByMeeting(ctx, meetingID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	board := &model.Board{
		BoardID:   model.BoardIDForMeeting(meetingID),
		MeetingID: meetingID,
		Permissions: model.BoardPermissions{
			AllowedDrawers: []int64{},
			PublicDrawing:  true,
			RestrictToHost: false,
		},
		Settings:     model.DefaultBoardSettings(),
		Version:      1,
		Snapshots:    []model.BoardSnapshot{},
		History:      []model.HistoryEntry{},
		Exports:      []model.BoardExport{},
		IsActive:     true,
		LastModified: now,
	}

	if err := s.saveBoard(ctx, board); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a create race, the winner's board is the board.
			if existing, ferr := s.findBoardByMeeting(ctx, meetingID); ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	log.Info().Str("board", board.BoardID).Int64("meeting", meetingID).Int64("requester", requesterID).Msg("board created")
	return board, true, nil
}

// GetBoard returns the board document without its element log.
func (s *BoardStore) GetBoard(ctx context.Context, boardID string) (*model.Board, error) {
	return s.findBoard(ctx, boardID)
}

// GetBoardByMeeting returns the board for a meeting, if one exists.
func (s *BoardStore) GetBoardByMeeting(ctx context.Context, meetingID int64) (*model.Board, error) {
	return s.findBoardByMeeting(ctx, meetingID)
}

// GetState returns the board together with its ordered element log.
func (s *BoardStore) GetState(ctx context.Context, boardID string) (*model.BoardState, error) {
	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	elems, err := s.loadElements(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return &model.BoardState{Board: board, Elements: elems}, nil
}

// Elements returns the board's element log in insertion order.
func (s *BoardStore) Elements(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	return s.loadElements(ctx, boardID)
}

// AppendElement validates the author's draw permission, appends the
// element and bumps the version. Elements are appended in arrival order;
// concurrent authors are never rejected.
func (s *BoardStore) AppendElement(ctx context.Context, boardID string, data model.ElementData, authorID int64) (*model.BoardElement, int64, error) {
	return s.appendWithAction(ctx, boardID, data, authorID, model.ActionElementAdded)
}

// ReplaceCanvas persists a client's undo/redo raster as the new
// authoritative state. The server keeps no undo log of its own; an undo is
// just a write of a previous raster.
func (s *BoardStore) ReplaceCanvas(ctx context.Context, boardID string, image string, actorID int64, kind string) (*model.BoardElement, int64, error) {
	action := model.ActionUndo
	if kind == model.CanvasActionRedo {
		action = model.ActionRedo
	}
	data := model.ElementData{Kind: model.ElementKindCanvasRaster, Image: image}
	return s.appendWithAction(ctx, boardID, data, actorID, action)
}

func (s *BoardStore) appendWithAction(ctx context.Context, boardID string, data model.ElementData, authorID int64, action string) (*model.BoardElement, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return nil, 0, err
	}
	if _, canDraw := s.ResolveAccess(ctx, board, authorID); !canDraw {
		return nil, 0, ErrPermissionDenied
	}

	elem := &model.BoardElement{
		BoardID:   boardID,
		AuthorID:  authorID,
		Kind:      data.Kind,
		Tool:      data.Tool,
		Color:     data.Color,
		Width:     data.Width,
		Opacity:   data.Opacity,
		Geometry:  data.Geometry,
		Image:     data.Image,
		CreatedAt: time.Now(),
	}
	if err := s.appendElement(ctx, elem); err != nil {
		return nil, 0, err
	}

	board.Version++
	board.LastModified = elem.CreatedAt
	appendHistory(board, action, authorID)
	if err := s.saveBoard(ctx, board); err != nil {
		return nil, 0, err
	}
	return elem, board.Version, nil
}

// Clear empties the element log and the snapshot ring. Irreversible
// server-side: client undo stacks are independent.
func (s *BoardStore) Clear(ctx context.Context, boardID string, actorID int64) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	role, canDraw := s.ResolveAccess(ctx, board, actorID)
	if !canDraw || (role != model.RoleHost && role != model.RoleAdmin) {
		return nil, ErrPermissionDenied
	}

	if err := s.deleteElements(ctx, boardID); err != nil {
		return nil, err
	}
	board.Snapshots = []model.BoardSnapshot{}
	board.Version++
	board.LastModified = time.Now()
	appendHistory(board, model.ActionCanvasCleared, actorID)
	if err := s.saveBoard(ctx, board); err != nil {
		return nil, err
	}
	log.Info().Str("board", boardID).Int64("actor", actorID).Int64("version", board.Version).Msg("canvas cleared")
	return board, nil
}

// AddSnapshot records a raster capture in the bounded ring. Side-log only,
// the version is untouched.
func (s *BoardStore) AddSnapshot(ctx context.Context, boardID string, authorID int64, image string) (*model.BoardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	snap := model.BoardSnapshot{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		Image:     image,
		CreatedAt: time.Now(),
	}
	board.Snapshots = append(board.Snapshots, snap)
	if len(board.Snapshots) > model.MaxSnapshots {
		board.Snapshots = board.Snapshots[len(board.Snapshots)-model.MaxSnapshots:]
	}
	appendHistory(board, model.ActionSnapshotSaved, authorID)
	if err := s.saveBoard(ctx, board); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AddExport records an export in the side-log. Never affects the version.
func (s *BoardStore) AddExport(ctx context.Context, boardID string, authorID int64, format string) (*model.BoardExport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	export := model.BoardExport{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		Format:    format,
		CreatedAt: time.Now(),
	}
	board.Exports = append(board.Exports, export)
	appendHistory(board, model.ActionExported, authorID)
	if err := s.saveBoard(ctx, board); err != nil {
		return nil, err
	}
	return &export, nil
}

// UpdatePermissions applies a partial permission update. Host only.
func (s *BoardStore) UpdatePermissions(ctx context.Context, boardID string, actorID int64, patch model.PermissionsPatch) (*model.BoardPermissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	host := s.hostID(ctx, board.MeetingID)
	if host == 0 || actorID != host {
		return nil, ErrPermissionDenied
	}

	if patch.AllowedDrawers != nil {
		board.Permissions.AllowedDrawers = *patch.AllowedDrawers
	}
	if patch.PublicDrawing != nil {
		board.Permissions.PublicDrawing = *patch.PublicDrawing
	}
	if patch.RestrictToHost != nil {
		board.Permissions.RestrictToHost = *patch.RestrictToHost
	}
	board.Version++
	board.LastModified = time.Now()
	appendHistory(board, model.ActionPermissionsUpdated, actorID)
	if err := s.saveBoard(ctx, board); err != nil {
		return nil, err
	}
	perms := board.Permissions
	return &perms, nil
}

// Deactivate logically deactivates a board (administrative cleanup, never
// a hard delete).
func (s *BoardStore) Deactivate(ctx context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, err := s.findBoard(ctx, boardID)
	if err != nil {
		return err
	}
	board.IsActive = false
	return s.saveBoard(ctx, board)
}

func appendHistory(board *model.Board, action string, actorID int64) {
	board.History = append(board.History, model.HistoryEntry{
		Action:    action,
		ActorID:   actorID,
		Timestamp: time.Now(),
	})
	if len(board.History) > model.MaxHistoryEntries {
		board.History = board.History[len(board.History)-model.MaxHistoryEntries:]
	}
}

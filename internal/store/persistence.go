package store

import (
	"context"

	"boardsync-backend/internal/model"
)

// BoardPersistence is the narrow CRUD contract the board store consumes.
// Implementations translate their infrastructure failures into
// ErrPersistenceUnavailable so the store can degrade instead of failing
// the caller.
type BoardPersistence interface {
	FindBoard(ctx context.Context, boardID string) (*model.Board, error)
	FindBoardByMeeting(ctx context.Context, meetingID int64) (*model.Board, error)
	SaveBoard(ctx context.Context, board *model.Board) error
	AppendElement(ctx context.Context, elem *model.BoardElement) error
	Elements(ctx context.Context, boardID string) ([]model.BoardElement, error)
	DeleteElements(ctx context.Context, boardID string) error
}

// MeetingGateway exposes the two facts the core needs from meeting
// lifecycle: who hosts a meeting, and whether a user belongs to it.
type MeetingGateway interface {
	HostID(ctx context.Context, meetingID int64) (int64, error)
	IsMember(ctx context.Context, meetingID, userID int64) (bool, error)
}

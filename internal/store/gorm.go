package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"boardsync-backend/internal/model"
)

// GormPersistence is the PostgreSQL-backed BoardPersistence.
type GormPersistence struct {
	db *gorm.DB
}

func NewGormPersistence(db *gorm.DB) *GormPersistence {
	return &GormPersistence{db: db}
}

// classify maps gorm errors onto the store taxonomy. Anything that is not
// a record-level condition is treated as the persistence layer being
// unavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
}

func (p *GormPersistence) FindBoard(ctx context.Context, boardID string) (*model.Board, error) {
	var board model.Board
	if err := p.db.WithContext(ctx).Where("board_id = ?", boardID).First(&board).Error; err != nil {
		return nil, classify(err)
	}
	return &board, nil
}

func (p *GormPersistence) FindBoardByMeeting(ctx context.Context, meetingID int64) (*model.Board, error) {
	var board model.Board
	if err := p.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&board).Error; err != nil {
		return nil, classify(err)
	}
	return &board, nil
}

func (p *GormPersistence) SaveBoard(ctx context.Context, board *model.Board) error {
	return classify(p.db.WithContext(ctx).Save(board).Error)
}

func (p *GormPersistence) AppendElement(ctx context.Context, elem *model.BoardElement) error {
	return classify(p.db.WithContext(ctx).Create(elem).Error)
}

func (p *GormPersistence) Elements(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	var elems []model.BoardElement
	err := p.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("id ASC").
		Find(&elems).Error
	if err != nil {
		return nil, classify(err)
	}
	return elems, nil
}

func (p *GormPersistence) DeleteElements(ctx context.Context, boardID string) error {
	return classify(p.db.WithContext(ctx).Where("board_id = ?", boardID).Delete(&model.BoardElement{}).Error)
}

// GormMeetingGateway reads host and membership facts from the meeting
// service's tables.
type GormMeetingGateway struct {
	db *gorm.DB
}

func NewGormMeetingGateway(db *gorm.DB) *GormMeetingGateway {
	return &GormMeetingGateway{db: db}
}

func (g *GormMeetingGateway) HostID(ctx context.Context, meetingID int64) (int64, error) {
	var meeting model.Meeting
	err := g.db.WithContext(ctx).Select("id", "host_id").Where("id = ?", meetingID).First(&meeting).Error
	if err != nil {
		return 0, classify(err)
	}
	return meeting.HostID, nil
}

func (g *GormMeetingGateway) IsMember(ctx context.Context, meetingID, userID int64) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.MeetingParticipant{}).
		Where("meeting_id = ? AND user_id = ?", meetingID, userID).
		Count(&count).Error
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}

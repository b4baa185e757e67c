package store

import (
	"context"
	"sync"
	"time"

	"boardsync-backend/internal/model"
)

// MemoryPersistence is an in-memory BoardPersistence. It backs unit tests
// and the degraded ("demo") mode the store falls into when the database
// is unreachable.
type MemoryPersistence struct {
	mu       sync.RWMutex
	boards   map[string]*model.Board
	elements map[string][]model.BoardElement
	nextID   int64
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		boards:   make(map[string]*model.Board),
		elements: make(map[string][]model.BoardElement),
	}
}

func (m *MemoryPersistence) FindBoard(_ context.Context, boardID string) (*model.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.boards[boardID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryPersistence) FindBoardByMeeting(_ context.Context, meetingID int64) (*model.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.boards {
		if b.MeetingID == meetingID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryPersistence) SaveBoard(_ context.Context, board *model.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *board
	m.boards[board.BoardID] = &cp
	return nil
}

func (m *MemoryPersistence) AppendElement(_ context.Context, elem *model.BoardElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	elem.ID = m.nextID
	if elem.CreatedAt.IsZero() {
		elem.CreatedAt = time.Now()
	}
	m.elements[elem.BoardID] = append(m.elements[elem.BoardID], *elem)
	return nil
}

func (m *MemoryPersistence) Elements(_ context.Context, boardID string) ([]model.BoardElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	elems := m.elements[boardID]
	out := make([]model.BoardElement, len(elems))
	copy(out, elems)
	return out, nil
}

func (m *MemoryPersistence) DeleteElements(_ context.Context, boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.elements, boardID)
	return nil
}

// StaticMeetingGateway is the degraded-mode MeetingGateway: hosts are
// whatever was registered in-process and everyone is a member. Used when
// the meeting service's tables are unreachable and in tests.
type StaticMeetingGateway struct {
	mu    sync.RWMutex
	hosts map[int64]int64
}

func NewStaticMeetingGateway() *StaticMeetingGateway {
	return &StaticMeetingGateway{hosts: make(map[int64]int64)}
}

// RegisterHost records meetingID's host. Subsequent calls keep the first
// registration so the host identity stays stable for the meeting.
func (g *StaticMeetingGateway) RegisterHost(meetingID, hostID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.hosts[meetingID]; !ok {
		g.hosts[meetingID] = hostID
	}
}

func (g *StaticMeetingGateway) HostID(_ context.Context, meetingID int64) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hosts[meetingID], nil
}

func (g *StaticMeetingGateway) IsMember(_ context.Context, _ int64, _ int64) (bool, error) {
	return true, nil
}

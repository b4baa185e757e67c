package model

import (
	"time"
)

// CursorPosition 캔버스 좌표
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SessionParticipant 세션 내 한 유저의 presence 레코드
type SessionParticipant struct {
	UserID      int64          `json:"user_id"`
	DisplayName string         `json:"display_name"`
	SocketID    string         `json:"socket_id"`
	Role        Role           `json:"role"`
	JoinedAt    time.Time      `json:"joined_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	IsActive    bool           `json:"is_active"`
	Cursor      CursorPosition `json:"cursor"`
	CurrentTool string         `json:"current_tool"`
}

// SessionMetrics 단조 증가 카운터
type SessionMetrics struct {
	DrawEvents             int64 `json:"draw_events"`
	ElementsCreated        int64 `json:"elements_created"`
	PeakActiveParticipants int   `json:"peak_active_participants"`
}

// BoardSession 보드당 하나의 라이브 협업 컨텍스트.
// Presence/메트릭 상태는 Session Registry가 단독 소유하며
// 보드 문서와는 boardId로만 연결된다 (audit을 위해 물리 삭제 없음).
type BoardSession struct {
	SessionID    string                        `json:"session_id"`
	BoardID      string                        `json:"board_id"`
	Participants map[int64]*SessionParticipant `json:"participants"`
	Metrics      SessionMetrics                `json:"metrics"`
	IsActive     bool                          `json:"is_active"`
	CreatedAt    time.Time                     `json:"created_at"`
	LastSyncAt   time.Time                     `json:"last_sync_at"`
}

// ActiveParticipants returns the currently active entries.
func (s *BoardSession) ActiveParticipants() []*SessionParticipant {
	out := make([]*SessionParticipant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

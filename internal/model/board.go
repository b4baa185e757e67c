package model

import (
	"fmt"
	"time"
)

// BoardIDForMeeting 미팅 ID에서 안정적인 보드 ID 파생
func BoardIDForMeeting(meetingID int64) string {
	return fmt.Sprintf("board-%d", meetingID)
}

// BoardPermissions 보드 그리기 권한 플래그
type BoardPermissions struct {
	AllowedDrawers []int64 `json:"allowed_drawers"`
	PublicDrawing  bool    `json:"public_drawing"`
	RestrictToHost bool    `json:"restrict_to_host"`
}

// IsAllowedDrawer reports whether userID is in the explicit drawer allow-list.
func (p BoardPermissions) IsAllowedDrawer(userID int64) bool {
	for _, id := range p.AllowedDrawers {
		if id == userID {
			return true
		}
	}
	return false
}

// BoardSettings 보드 표시 설정 (생성 시 고정)
type BoardSettings struct {
	Background string `json:"background"`
}

// DefaultBoardSettings 새 보드 기본 설정
func DefaultBoardSettings() BoardSettings {
	return BoardSettings{Background: "#FFFFFF"}
}

// PermissionsPatch 권한 부분 업데이트 (nil 필드는 유지)
type PermissionsPatch struct {
	AllowedDrawers *[]int64 `json:"allowed_drawers,omitempty"`
	PublicDrawing  *bool    `json:"public_drawing,omitempty"`
	RestrictToHost *bool    `json:"restrict_to_host,omitempty"`
}

// BoardSnapshot 래스터 캡처 (bounded ring, cap 20)
type BoardSnapshot struct {
	ID        string    `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Image     string    `json:"image"` // opaque encoded raster
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry 협업 이력 항목 (bounded log, cap 100)
type HistoryEntry struct {
	Action    string    `json:"action"`
	ActorID   int64     `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BoardExport export 기록 (side-log, version에 영향 없음)
type BoardExport struct {
	ID        string    `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

// Board 미팅당 하나의 화이트보드 문서
type Board struct {
	BoardID      string           `gorm:"primaryKey;type:varchar(64)" json:"board_id"`
	MeetingID    int64            `gorm:"uniqueIndex;not null" json:"meeting_id"`
	Permissions  BoardPermissions `gorm:"serializer:json;type:jsonb" json:"permissions"`
	Settings     BoardSettings    `gorm:"serializer:json;type:jsonb" json:"settings"`
	Version      int64            `gorm:"not null;default:1" json:"version"`
	Snapshots    []BoardSnapshot  `gorm:"serializer:json;type:jsonb" json:"snapshots"`
	History      []HistoryEntry   `gorm:"serializer:json;type:jsonb" json:"history"`
	Exports      []BoardExport    `gorm:"serializer:json;type:jsonb" json:"exports"`
	IsActive     bool             `gorm:"default:true;index" json:"is_active"`
	LastModified time.Time        `json:"last_modified"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (Board) TableName() string {
	return "boards"
}

// LatestRaster returns the most recent full-canvas raster element, if any.
// Joiners prefer it over replaying the element log: replay is lossy once
// elements have degenerated into raster captures.
func LatestRaster(elements []BoardElement) *BoardElement {
	for i := len(elements) - 1; i >= 0; i-- {
		if elements[i].Kind == ElementKindCanvasRaster {
			return &elements[i]
		}
	}
	return nil
}

// BoardElement 보드에 append된 그리기 요소 (append 후 불변)
type BoardElement struct {
	ID       int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID  string      `gorm:"type:varchar(64);not null;index:idx_board_elements_board" json:"board_id"`
	AuthorID int64       `gorm:"not null" json:"author_id"`
	Kind     ElementKind `gorm:"type:varchar(30);not null" json:"kind"`

	// Tool metadata
	Tool    string  `gorm:"type:varchar(30)" json:"tool,omitempty"`
	Color   string  `gorm:"type:varchar(20)" json:"color,omitempty"`
	Width   float64 `json:"width,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`

	// Geometry relevant to the kind (points, bounds, text), opaque JSON
	Geometry string `gorm:"type:jsonb" json:"geometry,omitempty"`

	// Raster payload for CANVAS_RASTER elements (opaque encoded image)
	Image string `gorm:"type:text" json:"image,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_board_elements_board" json:"created_at"`
}

func (BoardElement) TableName() string {
	return "board_elements"
}

// ElementData appendElement 입력 (저장 전 요소 데이터)
type ElementData struct {
	Kind     ElementKind `json:"kind"`
	Tool     string      `json:"tool,omitempty"`
	Color    string      `json:"color,omitempty"`
	Width    float64     `json:"width,omitempty"`
	Opacity  float64     `json:"opacity,omitempty"`
	Geometry string      `json:"geometry,omitempty"`
	Image    string      `json:"image,omitempty"`
}

// BoardState 보드 + 요소 로그 (join 응답과 HTTP 스냅샷에 사용)
type BoardState struct {
	Board    *Board         `json:"board"`
	Elements []BoardElement `json:"elements"`
}

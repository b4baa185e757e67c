package model

import (
	"time"
)

// Meeting 회의 (외부 라이프사이클 소유 — 코어는 host 식별과 멤버 여부만 소비)
type Meeting struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	HostID    int64     `gorm:"not null" json:"host_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	Code      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Status    string    `gorm:"type:varchar(20);default:'SCHEDULED'" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Meeting) TableName() string {
	return "meetings"
}

// MeetingParticipant 회의 참가자 (멤버십 체크용)
type MeetingParticipant struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MeetingID int64      `gorm:"not null;index" json:"meeting_id"`
	UserID    int64      `gorm:"not null" json:"user_id"`
	JoinedAt  time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

func (MeetingParticipant) TableName() string {
	return "meeting_participants"
}

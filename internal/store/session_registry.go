package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"boardsync-backend/internal/model"
)

// SessionRegistry owns the live session per board: who is (or was)
// connected, their cursor and tool, and the aggregate counters. Sessions
// are deactivated by sweeps but never removed, the entries are the audit
// trail.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*model.BoardSession // boardID -> session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*model.BoardSession)}
}

// FindOrCreate returns the session for a board, creating it lazily.
func (r *SessionRegistry) FindOrCreate(boardID string) *model.BoardSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOrCreateLocked(boardID)
}

func (r *SessionRegistry) findOrCreateLocked(boardID string) *model.BoardSession {
	if sess, ok := r.sessions[boardID]; ok {
		return sess
	}
	now := time.Now()
	sess := &model.BoardSession{
		SessionID:    uuid.New().String(),
		BoardID:      boardID,
		Participants: make(map[int64]*model.SessionParticipant),
		IsActive:     true,
		CreatedAt:    now,
		LastSyncAt:   now,
	}
	r.sessions[boardID] = sess
	log.Info().Str("board", boardID).Str("session", sess.SessionID).Msg("session created")
	return sess
}

// Join registers a participant. A known userID is reactivated on its
// existing entry with the new socket id rather than duplicated, so the
// session holds at most one active entry per user.
func (r *SessionRegistry) Join(boardID string, userID int64, displayName, socketID string, role model.Role) model.SessionParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.findOrCreateLocked(boardID)
	now := time.Now()

	p, ok := sess.Participants[userID]
	if ok {
		p.SocketID = socketID
		p.Role = role
		p.IsActive = true
		p.LastSeenAt = now
		if displayName != "" {
			p.DisplayName = displayName
		}
	} else {
		p = &model.SessionParticipant{
			UserID:      userID,
			DisplayName: displayName,
			SocketID:    socketID,
			Role:        role,
			JoinedAt:    now,
			LastSeenAt:  now,
			IsActive:    true,
		}
		sess.Participants[userID] = p
	}

	sess.IsActive = true
	sess.LastSyncAt = now
	if active := len(sess.ActiveParticipants()); active > sess.Metrics.PeakActiveParticipants {
		sess.Metrics.PeakActiveParticipants = active
	}
	return *p
}

// Leave marks the entry with the given socket id inactive (soft-leave).
// Returns nil if no active entry matches: the transport may have already
// left.
func (r *SessionRegistry) Leave(boardID, socketID string) *model.SessionParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[boardID]
	if !ok {
		return nil
	}
	for _, p := range sess.Participants {
		if p.SocketID == socketID && p.IsActive {
			p.IsActive = false
			p.LastSeenAt = time.Now()
			cp := *p
			return &cp
		}
	}
	return nil
}

// UpdateCursor mutates the participant's cursor in place. No-op when the
// socket is unknown.
func (r *SessionRegistry) UpdateCursor(boardID, socketID string, cursor model.CursorPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.bySocketLocked(boardID, socketID); p != nil {
		p.Cursor = cursor
		p.LastSeenAt = time.Now()
	}
}

// UpdateTool mutates the participant's selected tool in place. No-op when
// the socket is unknown.
func (r *SessionRegistry) UpdateTool(boardID, socketID, tool string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.bySocketLocked(boardID, socketID); p != nil {
		p.CurrentTool = tool
		p.LastSeenAt = time.Now()
	}
}

func (r *SessionRegistry) bySocketLocked(boardID, socketID string) *model.SessionParticipant {
	sess, ok := r.sessions[boardID]
	if !ok {
		return nil
	}
	for _, p := range sess.Participants {
		if p.SocketID == socketID {
			return p
		}
	}
	return nil
}

// RecordDrawEvent bumps the draw counter and the sync timestamp.
func (r *SessionRegistry) RecordDrawEvent(boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[boardID]; ok {
		sess.Metrics.DrawEvents++
		sess.LastSyncAt = time.Now()
	}
}

// RecordElementCreated bumps the element counter and the sync timestamp.
func (r *SessionRegistry) RecordElementCreated(boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[boardID]; ok {
		sess.Metrics.ElementsCreated++
		sess.LastSyncAt = time.Now()
	}
}

// Roster returns copies of the currently active participants.
func (r *SessionRegistry) Roster(boardID string) []model.SessionParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[boardID]
	if !ok {
		return nil
	}
	out := make([]model.SessionParticipant, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out
}

// Snapshot returns a copy of the full session for the HTTP surface.
func (r *SessionRegistry) Snapshot(boardID string) (*model.BoardSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[boardID]
	if !ok {
		return nil, false
	}
	cp := *sess
	cp.Participants = make(map[int64]*model.SessionParticipant, len(sess.Participants))
	for id, p := range sess.Participants {
		pc := *p
		cp.Participants[id] = &pc
	}
	return &cp, true
}

// SweepIdle marks active participants idle past the threshold as
// inactive. Maintenance op, not part of the hot path.
func (r *SessionRegistry) SweepIdle(threshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	affected := 0
	for _, sess := range r.sessions {
		for _, p := range sess.Participants {
			if p.IsActive && p.LastSeenAt.Before(cutoff) {
				p.IsActive = false
				affected++
			}
		}
	}
	if affected > 0 {
		log.Info().Int("participants", affected).Dur("threshold", threshold).Msg("idle participants swept")
	}
	return affected
}

// SweepInactiveSessions deactivates sessions whose last accepted mutation
// exceeds the age threshold.
func (r *SessionRegistry) SweepInactiveSessions(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	affected := 0
	for _, sess := range r.sessions {
		if sess.IsActive && sess.LastSyncAt.Before(cutoff) {
			sess.IsActive = false
			affected++
		}
	}
	if affected > 0 {
		log.Info().Int("sessions", affected).Dur("max_age", maxAge).Msg("stale sessions deactivated")
	}
	return affected
}

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardsync-backend/internal/model"
)

func TestJoinReusesEntryPerUser(t *testing.T) {
	r := NewSessionRegistry()

	first := r.Join("board-1", 7, "alice", "sock-1", model.RoleParticipant)
	assert.Equal(t, "sock-1", first.SocketID)

	// Same user on a new socket: the entry is reused, not duplicated.
	second := r.Join("board-1", 7, "", "sock-2", model.RoleAdmin)
	assert.Equal(t, "sock-2", second.SocketID)
	assert.Equal(t, model.RoleAdmin, second.Role)
	assert.Equal(t, "alice", second.DisplayName)

	roster := r.Roster("board-1")
	require.Len(t, roster, 1)
	assert.Equal(t, "sock-2", roster[0].SocketID)
}

func TestLeaveIsSoft(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 7, "alice", "sock-1", model.RoleParticipant)

	left := r.Leave("board-1", "sock-1")
	require.NotNil(t, left)
	assert.Equal(t, int64(7), left.UserID)
	assert.Empty(t, r.Roster("board-1"))

	// The entry survives as audit trail.
	sess, ok := r.Snapshot("board-1")
	require.True(t, ok)
	assert.Len(t, sess.Participants, 1)
	assert.False(t, sess.Participants[7].IsActive)

	// Leaving twice, or with a stale socket, is a no-op.
	assert.Nil(t, r.Leave("board-1", "sock-1"))
	assert.Nil(t, r.Leave("board-1", "sock-unknown"))
	assert.Nil(t, r.Leave("board-unknown", "sock-1"))
}

func TestPeakActiveParticipants(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 1, "a", "s1", model.RoleHost)
	r.Join("board-1", 2, "b", "s2", model.RoleParticipant)
	r.Join("board-1", 3, "c", "s3", model.RoleParticipant)
	r.Leave("board-1", "s3")
	r.Join("board-1", 2, "b", "s2b", model.RoleParticipant)

	sess, ok := r.Snapshot("board-1")
	require.True(t, ok)
	assert.Equal(t, 3, sess.Metrics.PeakActiveParticipants)
}

func TestCursorAndToolUpdates(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 7, "alice", "sock-1", model.RoleParticipant)

	r.UpdateCursor("board-1", "sock-1", model.CursorPosition{X: 10, Y: 20})
	r.UpdateTool("board-1", "sock-1", "eraser")

	// Unknown sockets never panic or create entries.
	r.UpdateCursor("board-1", "sock-ghost", model.CursorPosition{X: 1})
	r.UpdateTool("board-ghost", "sock-1", "pen")

	sess, _ := r.Snapshot("board-1")
	p := sess.Participants[7]
	assert.Equal(t, model.CursorPosition{X: 10, Y: 20}, p.Cursor)
	assert.Equal(t, "eraser", p.CurrentTool)
}

func TestCounters(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 7, "alice", "sock-1", model.RoleParticipant)

	r.RecordDrawEvent("board-1")
	r.RecordDrawEvent("board-1")
	r.RecordElementCreated("board-1")

	sess, _ := r.Snapshot("board-1")
	assert.Equal(t, int64(2), sess.Metrics.DrawEvents)
	assert.Equal(t, int64(1), sess.Metrics.ElementsCreated)
}

func TestSweepIdle(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 1, "a", "s1", model.RoleHost)
	r.Join("board-1", 2, "b", "s2", model.RoleParticipant)

	// Nothing is older than an hour yet.
	assert.Equal(t, 0, r.SweepIdle(time.Hour))

	// With a zero threshold everyone active is past the cutoff.
	swept := r.SweepIdle(0)
	assert.Equal(t, 2, swept)
	assert.Empty(t, r.Roster("board-1"))
}

func TestSweepInactiveSessions(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 1, "a", "s1", model.RoleHost)

	assert.Equal(t, 0, r.SweepInactiveSessions(time.Hour))
	assert.Equal(t, 1, r.SweepInactiveSessions(0))

	sess, ok := r.Snapshot("board-1")
	require.True(t, ok)
	assert.False(t, sess.IsActive)

	// A rejoin reactivates the session.
	r.Join("board-1", 1, "a", "s1b", model.RoleHost)
	sess, _ = r.Snapshot("board-1")
	assert.True(t, sess.IsActive)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewSessionRegistry()
	r.Join("board-1", 7, "alice", "sock-1", model.RoleParticipant)

	sess, _ := r.Snapshot("board-1")
	sess.Participants[7].DisplayName = "mutated"

	fresh, _ := r.Snapshot("board-1")
	assert.Equal(t, "alice", fresh.Participants[7].DisplayName)
}

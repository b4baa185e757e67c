package handler

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardsync-backend/internal/model"
	"boardsync-backend/internal/protocol"
)

// fakeConn records written frames in place of a websocket connection.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeConn) last(t *testing.T) protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &env))
	return env
}

func addFakeClient(room *BoardRoom, socketID string, userID int64) (*RoomClient, *fakeConn) {
	conn := &fakeConn{}
	client := &RoomClient{
		SocketID: socketID,
		UserID:   userID,
		Role:     model.RoleParticipant,
		CanDraw:  true,
		Conn:     conn,
	}
	room.AddClient(client)
	return client, conn
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := NewBoardHub()
	room := hub.GetOrCreateRoom("board-1")
	_, conn1 := addFakeClient(room, "s1", 1)
	_, conn2 := addFakeClient(room, "s2", 2)

	room.Broadcast(protocol.TypeCanvasBroadcast, protocol.CanvasBroadcastPayload{
		Image: "raster", AuthorID: 1, Version: 2,
	})

	assert.Eventually(t, func() bool {
		return conn1.count() == 1 && conn2.count() == 1
	}, time.Second, 5*time.Millisecond)

	env := conn2.last(t)
	assert.Equal(t, protocol.TypeCanvasBroadcast, env.Type)

	var payload protocol.CanvasBroadcastPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "raster", payload.Image)
	assert.Equal(t, int64(2), payload.Version)
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewBoardHub()
	room := hub.GetOrCreateRoom("board-1")
	_, sender := addFakeClient(room, "s1", 1)
	_, other := addFakeClient(room, "s2", 2)

	room.BroadcastExcept(protocol.TypeDrawing, protocol.DrawingPayload{SenderID: 1}, "s1")

	assert.Eventually(t, func() bool {
		return other.count() == 1
	}, time.Second, 5*time.Millisecond)
	room.WaitDrained(time.Second)
	assert.Zero(t, sender.count())
}

func TestSendTargetsOneClient(t *testing.T) {
	hub := NewBoardHub()
	room := hub.GetOrCreateRoom("board-1")
	client, conn := addFakeClient(room, "s1", 1)
	_, bystander := addFakeClient(room, "s2", 2)

	room.Send(client, protocol.TypeError, protocol.ErrorPayload{Code: "PERMISSION_DENIED"})

	assert.Equal(t, 1, conn.count())
	assert.Zero(t, bystander.count())
	assert.Equal(t, protocol.TypeError, conn.last(t).Type)
}

func TestRemoveClientStopsDelivery(t *testing.T) {
	hub := NewBoardHub()
	room := hub.GetOrCreateRoom("board-1")
	_, conn1 := addFakeClient(room, "s1", 1)
	_, conn2 := addFakeClient(room, "s2", 2)

	room.RemoveClient("s2")
	room.Broadcast(protocol.TypeCanvasCleared, protocol.CanvasClearedPayload{ActorID: 1, Version: 2})

	assert.Eventually(t, func() bool {
		return conn1.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, conn2.count())
}

func TestGetOrCreateRoomIsStable(t *testing.T) {
	hub := NewBoardHub()
	a := hub.GetOrCreateRoom("board-1")
	b := hub.GetOrCreateRoom("board-1")
	assert.Same(t, a, b)

	got, ok := hub.Room("board-1")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = hub.Room("board-2")
	assert.False(t, ok)
}

func TestCleanupEmptyRooms(t *testing.T) {
	hub := NewBoardHub()
	occupied := hub.GetOrCreateRoom("board-1")
	addFakeClient(occupied, "s1", 1)
	hub.GetOrCreateRoom("board-2")
	hub.GetOrCreateRoom("board-3")

	removed := hub.CleanupEmptyRooms()
	assert.Equal(t, 2, removed)

	_, ok := hub.Room("board-1")
	assert.True(t, ok)
	_, ok = hub.Room("board-2")
	assert.False(t, ok)
}

func TestJoinDuringSweepLandsInLiveRoom(t *testing.T) {
	hub := NewBoardHub()
	stale := hub.GetOrCreateRoom("board-1")

	// Sweep reclaims the empty room after the join resolved its pointer
	// but before the client registered.
	hub.CleanupEmptyRooms()

	conn := &fakeConn{}
	client := &RoomClient{
		SocketID: "s1",
		UserID:   1,
		Role:     model.RoleParticipant,
		CanDraw:  true,
		Conn:     conn,
	}
	room := stale.AddClient(client)
	require.NotSame(t, stale, room)

	live, ok := hub.Room("board-1")
	require.True(t, ok)
	assert.Same(t, room, live)

	room.Broadcast(protocol.TypeCanvasBroadcast, protocol.CanvasBroadcastPayload{
		Image: "raster", AuthorID: 1, Version: 2,
	})
	assert.Eventually(t, func() bool {
		return conn.count() == 1
	}, time.Second, 5*time.Millisecond)
}

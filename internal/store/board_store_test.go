package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardsync-backend/internal/model"
)

const (
	hostUser        = int64(1)
	participantUser = int64(2)
)

func newTestStore() *BoardStore {
	gateway := NewStaticMeetingGateway()
	gateway.RegisterHost(100, hostUser)
	return NewBoardStore(NewMemoryPersistence(), gateway)
}

// stubGateway answers membership checks with a fixed verdict.
type stubGateway struct {
	host   int64
	member bool
}

func (g stubGateway) HostID(context.Context, int64) (int64, error) { return g.host, nil }
func (g stubGateway) IsMember(context.Context, int64, int64) (bool, error) { return g.member, nil }

// failingPersistence simulates a database outage on every call.
type failingPersistence struct{}

func (failingPersistence) FindBoard(context.Context, string) (*model.Board, error) {
	return nil, ErrPersistenceUnavailable
}
func (failingPersistence) FindBoardByMeeting(context.Context, int64) (*model.Board, error) {
	return nil, ErrPersistenceUnavailable
}
func (failingPersistence) SaveBoard(context.Context, *model.Board) error {
	return ErrPersistenceUnavailable
}
func (failingPersistence) AppendElement(context.Context, *model.BoardElement) error {
	return ErrPersistenceUnavailable
}
func (failingPersistence) Elements(context.Context, string) ([]model.BoardElement, error) {
	return nil, ErrPersistenceUnavailable
}
func (failingPersistence) DeleteElements(context.Context, string) error {
	return ErrPersistenceUnavailable
}

// flakyPersistence wraps a working persistence with an availability
// switch, simulating an outage that later recovers.
type flakyPersistence struct {
	inner *MemoryPersistence
	down  bool
}

func (p *flakyPersistence) FindBoard(ctx context.Context, boardID string) (*model.Board, error) {
	if p.down {
		return nil, ErrPersistenceUnavailable
	}
	return p.inner.FindBoard(ctx, boardID)
}

func (p *flakyPersistence) FindBoardByMeeting(ctx context.Context, meetingID int64) (*model.Board, error) {
	if p.down {
		return nil, ErrPersistenceUnavailable
	}
	return p.inner.FindBoardByMeeting(ctx, meetingID)
}

func (p *flakyPersistence) SaveBoard(ctx context.Context, board *model.Board) error {
	if p.down {
		return ErrPersistenceUnavailable
	}
	return p.inner.SaveBoard(ctx, board)
}

func (p *flakyPersistence) AppendElement(ctx context.Context, elem *model.BoardElement) error {
	if p.down {
		return ErrPersistenceUnavailable
	}
	return p.inner.AppendElement(ctx, elem)
}

func (p *flakyPersistence) Elements(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	if p.down {
		return nil, ErrPersistenceUnavailable
	}
	return p.inner.Elements(ctx, boardID)
}

func (p *flakyPersistence) DeleteElements(ctx context.Context, boardID string) error {
	if p.down {
		return ErrPersistenceUnavailable
	}
	return p.inner.DeleteElements(ctx, boardID)
}

func TestCreateBoardIdempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, created, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "board-100", board.BoardID)
	assert.Equal(t, int64(1), board.Version)
	assert.True(t, board.Permissions.PublicDrawing)

	again, created, err := s.CreateBoard(ctx, 100, participantUser)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, board.BoardID, again.BoardID)
	assert.Equal(t, board.Version, again.Version)
}

func TestCreateBoardDeniedForNonMember(t *testing.T) {
	s := NewBoardStore(NewMemoryPersistence(), stubGateway{host: hostUser, member: false})
	ctx := context.Background()

	_, _, err := s.CreateBoard(ctx, 100, participantUser)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The host never needs a membership check.
	_, created, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestAppendElementBumpsVersion(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	data := model.ElementData{Kind: model.ElementKindStroke, Tool: "pen", Color: "#000"}
	_, v1, err := s.AppendElement(ctx, board.BoardID, data, participantUser)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v1)

	_, v2, err := s.AppendElement(ctx, board.BoardID, data, hostUser)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v2)

	elems, err := s.Elements(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Len(t, elems, 2)
}

func TestAppendElementRespectsRestrictToHost(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	restrict := true
	_, err = s.UpdatePermissions(ctx, board.BoardID, hostUser, model.PermissionsPatch{RestrictToHost: &restrict})
	require.NoError(t, err)

	data := model.ElementData{Kind: model.ElementKindStroke}
	_, _, err = s.AppendElement(ctx, board.BoardID, data, participantUser)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The host draws regardless of the restriction.
	_, _, err = s.AppendElement(ctx, board.BoardID, data, hostUser)
	assert.NoError(t, err)
}

func TestClear(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	data := model.ElementData{Kind: model.ElementKindStroke}
	_, _, err = s.AppendElement(ctx, board.BoardID, data, participantUser)
	require.NoError(t, err)
	_, err = s.AddSnapshot(ctx, board.BoardID, hostUser, "raster")
	require.NoError(t, err)

	_, err = s.Clear(ctx, board.BoardID, participantUser)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	cleared, err := s.Clear(ctx, board.BoardID, hostUser)
	require.NoError(t, err)
	assert.Empty(t, cleared.Snapshots)
	assert.Equal(t, int64(3), cleared.Version)

	elems, err := s.Elements(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Empty(t, elems)
}

func TestUpdatePermissionsHostOnly(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	public := false
	_, err = s.UpdatePermissions(ctx, board.BoardID, participantUser, model.PermissionsPatch{PublicDrawing: &public})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	perms, err := s.UpdatePermissions(ctx, board.BoardID, hostUser, model.PermissionsPatch{
		PublicDrawing:  &public,
		AllowedDrawers: &[]int64{participantUser},
	})
	require.NoError(t, err)
	assert.False(t, perms.PublicDrawing)
	assert.Equal(t, []int64{participantUser}, perms.AllowedDrawers)

	// The allow-listed user draws as ADMIN even with public drawing off.
	role, canDraw := s.ResolveAccess(ctx, mustBoard(t, s, board.BoardID), participantUser)
	assert.Equal(t, model.RoleAdmin, role)
	assert.True(t, canDraw)
}

func TestSnapshotRingBounded(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	for i := 0; i < model.MaxSnapshots+5; i++ {
		_, err := s.AddSnapshot(ctx, board.BoardID, hostUser, "raster")
		require.NoError(t, err)
	}

	got := mustBoard(t, s, board.BoardID)
	assert.Len(t, got.Snapshots, model.MaxSnapshots)
	// Snapshots never touch the version counter.
	assert.Equal(t, int64(1), got.Version)
}

func TestHistoryBounded(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	data := model.ElementData{Kind: model.ElementKindStroke}
	for i := 0; i < model.MaxHistoryEntries+10; i++ {
		_, _, err := s.AppendElement(ctx, board.BoardID, data, hostUser)
		require.NoError(t, err)
	}

	got := mustBoard(t, s, board.BoardID)
	assert.Len(t, got.History, model.MaxHistoryEntries)
}

func TestReplaceCanvasRecordsUndo(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	_, version, err := s.ReplaceCanvas(ctx, board.BoardID, "raster", hostUser, model.CanvasActionUndo)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	got := mustBoard(t, s, board.BoardID)
	last := got.History[len(got.History)-1]
	assert.Equal(t, model.ActionUndo, last.Action)

	elems, err := s.Elements(ctx, board.BoardID)
	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, model.ElementKindCanvasRaster, elems[0].Kind)
}

func TestAddExportLeavesVersionAlone(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	export, err := s.AddExport(ctx, board.BoardID, hostUser, "png")
	require.NoError(t, err)
	assert.Equal(t, "png", export.Format)

	got := mustBoard(t, s, board.BoardID)
	assert.Equal(t, int64(1), got.Version)
	assert.Len(t, got.Exports, 1)
}

func TestDegradedPersistenceKeepsBoardAlive(t *testing.T) {
	// Every persistence call fails; the store must keep collaborating
	// through the in-memory fallback.
	s := NewBoardStore(failingPersistence{}, stubGateway{host: hostUser, member: true})
	ctx := context.Background()

	board, created, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)
	assert.True(t, created)

	data := model.ElementData{Kind: model.ElementKindCanvasRaster, Image: "raster"}
	_, version, err := s.AppendElement(ctx, board.BoardID, data, participantUser)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	state, err := s.GetState(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Len(t, state.Elements, 1)
	assert.Equal(t, int64(2), state.Board.Version)
}

func TestRecoveredPersistenceNeverRegressesVersion(t *testing.T) {
	flaky := &flakyPersistence{inner: NewMemoryPersistence()}
	s := NewBoardStore(flaky, stubGateway{host: hostUser, member: true})
	ctx := context.Background()

	board, _, err := s.CreateBoard(ctx, 100, hostUser)
	require.NoError(t, err)

	data := model.ElementData{Kind: model.ElementKindStroke}
	_, v, err := s.AppendElement(ctx, board.BoardID, data, hostUser)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	// Outage: mutations keep landing, on the fallback only.
	flaky.down = true
	_, _, err = s.AppendElement(ctx, board.BoardID, data, hostUser)
	require.NoError(t, err)
	_, v, err = s.AppendElement(ctx, board.BoardID, data, hostUser)
	require.NoError(t, err)
	require.Equal(t, int64(4), v)

	// Recovery: the stale durable copy must not win over the fallback,
	// so a fresh joiner sees the last broadcast version.
	flaky.down = false
	got := mustBoard(t, s, board.BoardID)
	assert.Equal(t, int64(4), got.Version)

	// And the outage mutations were written back to the durable store.
	durable, err := flaky.inner.FindBoard(ctx, board.BoardID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), durable.Version)
}

func mustBoard(t *testing.T, s *BoardStore, boardID string) *model.Board {
	t.Helper()
	board, err := s.GetBoard(context.Background(), boardID)
	require.NoError(t, err)
	return board
}

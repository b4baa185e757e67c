package client

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecoveryCache(t *testing.T) *RecoveryCache {
	t.Helper()
	c, err := NewRecoveryCache(t.TempDir())
	require.NoError(t, err)
	return c
}

func TestRecoveryRoundTrip(t *testing.T) {
	c := newTestRecoveryCache(t)

	_, err := c.Load("board-1", 7)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, c.Save(RecoveryEntry{
		BoardID: "board-1",
		UserID:  7,
		Image:   "raster",
		Version: 3,
	}))

	entry, err := c.Load("board-1", 7)
	require.NoError(t, err)
	assert.Equal(t, "raster", entry.Image)
	assert.Equal(t, int64(3), entry.Version)
	assert.False(t, entry.SavedAt.IsZero())
}

func TestRecoveryIsPerBoardAndUser(t *testing.T) {
	c := newTestRecoveryCache(t)

	require.NoError(t, c.Save(RecoveryEntry{BoardID: "board-1", UserID: 7, Image: "a", Version: 1}))
	require.NoError(t, c.Save(RecoveryEntry{BoardID: "board-1", UserID: 8, Image: "b", Version: 1}))
	require.NoError(t, c.Save(RecoveryEntry{BoardID: "board-2", UserID: 7, Image: "c", Version: 1}))

	entry, err := c.Load("board-1", 7)
	require.NoError(t, err)
	assert.Equal(t, "a", entry.Image)

	entry, err = c.Load("board-2", 7)
	require.NoError(t, err)
	assert.Equal(t, "c", entry.Image)
}

func TestSaveNeverRegresses(t *testing.T) {
	c := newTestRecoveryCache(t)

	require.NoError(t, c.Save(RecoveryEntry{BoardID: "board-1", UserID: 7, Image: "new", Version: 5}))
	// A stale frame arriving late must not clobber the newer canvas.
	require.NoError(t, c.Save(RecoveryEntry{BoardID: "board-1", UserID: 7, Image: "old", Version: 2}))

	entry, err := c.Load("board-1", 7)
	require.NoError(t, err)
	assert.Equal(t, "new", entry.Image)
	assert.Equal(t, int64(5), entry.Version)
}

func TestDrop(t *testing.T) {
	c := newTestRecoveryCache(t)

	require.NoError(t, c.Save(RecoveryEntry{BoardID: "board-1", UserID: 7, Image: "x", Version: 1}))
	require.NoError(t, c.Drop("board-1", 7))

	_, err := c.Load("board-1", 7)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Dropping a missing entry is fine.
	assert.NoError(t, c.Drop("board-1", 7))
}

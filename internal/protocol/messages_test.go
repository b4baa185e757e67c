package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardsync-backend/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(TypeDrawingEnd, DrawingEndPayload{Image: "raster", SenderID: 7})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeDrawingEnd, env.Type)

	var payload DrawingEndPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "raster", payload.Image)
	assert.Equal(t, int64(7), payload.SenderID)
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode(TypeLeave, nil)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeLeave, env.Type)

	var out struct{}
	assert.Error(t, env.DecodePayload(&out))
}

func TestJoinValidate(t *testing.T) {
	assert.NoError(t, JoinPayload{BoardID: "board-1", UserID: 7}.Validate())
	assert.NoError(t, JoinPayload{MeetingID: 100, UserID: 7}.Validate())

	assert.Error(t, JoinPayload{UserID: 7}.Validate())
	assert.Error(t, JoinPayload{BoardID: "board-1"}.Validate())
}

func TestDrawingEndValidate(t *testing.T) {
	assert.NoError(t, DrawingEndPayload{Image: "raster"}.Validate())
	assert.Error(t, DrawingEndPayload{}.Validate())
}

func TestCanvasActionValidate(t *testing.T) {
	assert.NoError(t, CanvasActionPayload{Kind: model.CanvasActionUndo, Image: "raster"}.Validate())
	assert.NoError(t, CanvasActionPayload{Kind: model.CanvasActionRedo, Image: "raster"}.Validate())

	assert.Error(t, CanvasActionPayload{Kind: "repeat", Image: "raster"}.Validate())
	assert.Error(t, CanvasActionPayload{Kind: model.CanvasActionUndo}.Validate())
}

func TestUnknownFieldsAreIgnored(t *testing.T) {
	// Frames from newer clients carry fields this server doesn't know;
	// decoding must not reject them.
	raw := []byte(`{"type":"drawing","payload":{"point":{"x":1,"y":2},"pressure":0.5}}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	var payload DrawingPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, Point{X: 1, Y: 2}, payload.Point)
}

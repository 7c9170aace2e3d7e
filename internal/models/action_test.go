package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	prev := int64(1)
	encoded, err := EncodePayload(NextPayload{PrevActiveID: &prev})
	require.NoError(t, err)

	action := QueueAction{ActionType: ActionNext, Payload: encoded}
	decoded, err := action.DecodePayload()
	require.NoError(t, err)

	next, ok := decoded.(NextPayload)
	require.True(t, ok)
	require.NotNil(t, next.PrevActiveID)
	assert.Equal(t, int64(1), *next.PrevActiveID)
	assert.Nil(t, next.NewActiveID)
}

func TestDecodePayloadUnknownType(t *testing.T) {
	action := QueueAction{ActionType: "teleport", Payload: "{}"}
	_, err := action.DecodePayload()
	assert.Error(t, err)
}

func TestDecodePayloadMalformedJSON(t *testing.T) {
	action := QueueAction{ActionType: ActionReset, Payload: "{broken"}
	_, err := action.DecodePayload()
	assert.Error(t, err)
}

func TestResetPayloadKeepsStatuses(t *testing.T) {
	encoded, err := EncodePayload(ResetPayload{
		IDs:              []int64{1, 2},
		PreviousStatuses: map[int64]string{1: StatusActive, 2: StatusWaiting},
	})
	require.NoError(t, err)

	action := QueueAction{ActionType: ActionReset, Payload: encoded}
	decoded, err := action.DecodePayload()
	require.NoError(t, err)

	reset, ok := decoded.(ResetPayload)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, reset.IDs)
	assert.Equal(t, StatusActive, reset.PreviousStatuses[1])
}

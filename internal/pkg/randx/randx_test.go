package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomID(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		id, err := RoomID()
		require.NoError(t, err)
		assert.Len(t, id, RoomIDLength)
		assert.True(t, IsValidRoomID(id))
		seen[id] = struct{}{}
	}

	assert.Greater(t, len(seen), 90, "ids should be effectively unique")
}

func TestIsValidRoomID(t *testing.T) {
	assert.True(t, IsValidRoomID("general"))
	assert.True(t, IsValidRoomID("dev-team_2"))
	assert.True(t, IsValidRoomID("A1b2C3"))

	assert.False(t, IsValidRoomID(""))
	assert.False(t, IsValidRoomID("has space"))
	assert.False(t, IsValidRoomID("emoji😀"))
	assert.False(t, IsValidRoomID(strings.Repeat("a", MaxRoomIDLength+1)))
}

func TestConnectionIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, ConnectionID(), ConnectionID())
	assert.NotEmpty(t, MessageID())
	assert.NotEmpty(t, PingID())
}

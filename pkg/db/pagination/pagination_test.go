package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1789", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	c, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1789", c.ID)

	_, err = DecodeCursor("not a token")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestBuildCursorPageInfo(t *testing.T) {
	ids := []string{"a", "b", "c"}
	rows := make([]*string, len(ids))
	for i := range ids {
		rows[i] = &ids[i]
	}
	cursorOf := func(s *string) string { return *s }

	info := BuildCursorPageInfo(rows, 2, cursorOf)
	assert.True(t, info.HasMore)
	assert.Equal(t, "b", info.NextPageToken)

	info = BuildCursorPageInfo(rows, 3, cursorOf)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

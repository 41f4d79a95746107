package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultLimit, -4: DefaultLimit, 10: 10, MaxLimit + 50: MaxLimit} {
		assert.Equal(t, want, NormalizeLimit(in), "limit %d", in)
	}
}

func TestCursorEncoding(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC), ID: "B:042"}
	parsed, err := ParseCursor(EncodeCursor(c))
	require.NoError(t, err)
	assert.True(t, parsed.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, "B:042", parsed.ID)

	blank, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, blank)

	for _, bad := range []string{"not-base64!", EncodeCursor(Cursor{})[:2], "MTIz"} {
		_, err := ParseCursor(bad)
		assert.Error(t, err, "cursor %q", bad)
	}
}

func TestTrim(t *testing.T) {
	key := func(n int) Cursor { return Cursor{ID: string(rune('a' + n))} }

	rows, next := Trim([]int{0, 1, 2}, 2, key)
	assert.Equal(t, []int{0, 1}, rows)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)

	rows, next = Trim([]int{0, 1}, 2, key)
	assert.Len(t, rows, 2)
	assert.Nil(t, next)
}

package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, New())
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, ids, sorted)
}

func TestAtEncodesTime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	s := At(ts)
	require.Len(t, s, 26)

	got, ok := Time(s)
	require.True(t, ok)
	assert.Equal(t, ts, got)
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, ok := Time("not-an-id")
	assert.False(t, ok)
}

package journal

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "effects.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)

	ctx := context.Background()
	p := samplePosition("P1")
	h := sampleHistory("P1")

	require.NoError(t, j.CreatePosition(ctx, p))
	require.NoError(t, j.CreatePosition(ctx, p))
	require.NoError(t, j.DeductFee(ctx, p.ID, d("2.5"), openT))
	require.NoError(t, j.ClosePosition(ctx, p.ID, closeT))
	require.NoError(t, j.RecordHistory(ctx, h))
	require.NoError(t, j.RecordHistory(ctx, h))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"2024-01-02T03:04:05Z", "create_position", "P1", "EURUSD", "BUY", "1.5", "1.10002", "1650.03", ""}, rows[1])
	assert.Equal(t, "deduct_fee", rows[2][1])
	assert.Equal(t, "2.5", rows[2][7])
	assert.Equal(t, "close_position", rows[3][1])
	assert.Equal(t, []string{"2024-01-02T04:04:05Z", "record_history", "P1", "EURUSD", "BUY", "1.5", "1.10102", "150", "MANUAL"}, rows[4])
}

package feed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/marginledger/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const script = `time,symbol,bid,ask,event,args
# warmup
2024-01-02T10:00:00Z,EURUSD,1.1000,1.1002
2024-01-02T10:00:01Z,eur/usd,1.1001,1.1003,open,EURUSD,BUY,0.1
1704189602000,GBPUSD,1.2700,1.2702
2024-01-02T10:00:03Z,EURUSD,1.1010,1.1012,CLOSE_ALL
`

func TestReplayTicksThenEvents(t *testing.T) {
	var order []string
	r := &Replay{OnEvent: func(ctx context.Context, ev Event) error {
		order = append(order, "event:"+ev.Name+":"+strings.Join(ev.Args, "|"))
		return nil
	}}
	err := r.RunReader(context.Background(), strings.NewReader(script), nil, func(ctx context.Context, tk market.Tick) error {
		order = append(order, "tick:"+tk.Symbol+":"+tk.Bid.String())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"tick:EURUSD:1.1",
		"tick:EURUSD:1.1001",
		"event:OPEN:EURUSD|BUY|0.1",
		"tick:GBPUSD:1.27",
		"tick:EURUSD:1.101",
		"event:CLOSE_ALL:",
	}, order)
}

func TestReplayFiltersSymbolsButKeepsEvents(t *testing.T) {
	var ticks []market.Tick
	events := 0
	r := &Replay{OnEvent: func(ctx context.Context, ev Event) error { events++; return nil }}
	err := r.RunReader(context.Background(), strings.NewReader(script), []string{"GBPUSD"}, collect(0, &ticks))
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "GBPUSD", ticks[0].Symbol)
	assert.Equal(t, time.UnixMilli(1704189602000).UTC(), ticks[0].Time)
	assert.Equal(t, 2, events)
}

func TestReplayBadRow(t *testing.T) {
	r := &Replay{}
	err := r.RunReader(context.Background(), strings.NewReader("2024-01-02T10:00:00Z,EURUSD,abc,1.1\n"), nil, collect(0, new([]market.Tick)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "bad bid")

	err = r.RunReader(context.Background(), strings.NewReader("yesterday,EURUSD,1.1,1.1\n"), nil, collect(0, new([]market.Tick)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad time")

	err = r.RunReader(context.Background(), strings.NewReader("2024-01-02T10:00:00Z,EURUSD,1.1\n"), nil, collect(0, new([]market.Tick)))
	require.Error(t, err)
}

func TestReplayErrorNamesFileLine(t *testing.T) {
	in := `time,symbol,bid,ask
# opening
# quiet session
2024-01-02T10:00:00Z,EURUSD,1.1000,1.1002
2024-01-02T10:00:01Z,EURUSD,oops,1.1003
`
	err := (&Replay{}).RunReader(context.Background(), strings.NewReader(in), nil, collect(0, new([]market.Tick)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay line 5:")

	r := &Replay{OnEvent: func(ctx context.Context, ev Event) error { return errStop }}
	err = r.RunReader(context.Background(), strings.NewReader("# warmup\n\n2024-01-02T10:00:00Z,EURUSD,1.1,1.1,OPEN\n"), nil, collect(0, new([]market.Tick)))
	assert.ErrorIs(t, err, errStop)
	assert.Contains(t, err.Error(), "replay line 3 OPEN")
}

func TestReplayHandlerErrorStops(t *testing.T) {
	var ticks []market.Tick
	err := (&Replay{}).RunReader(context.Background(), strings.NewReader(script), nil, collect(2, &ticks))
	assert.ErrorIs(t, err, errStop)
	assert.Len(t, ticks, 2)
}

func TestReplayFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	var ticks []market.Tick
	require.NoError(t, (&Replay{Path: path}).Run(context.Background(), nil, collect(0, &ticks)))
	assert.Len(t, ticks, 4)

	err := (&Replay{Path: filepath.Join(t.TempDir(), "missing.csv")}).Run(context.Background(), nil, collect(0, &ticks))
	assert.Error(t, err)
}

package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/marginledger/ledger"
	"github.com/shopspring/decimal"
)

// Memory is a Store that keeps everything in maps. It backs dry runs and
// tests.
type Memory struct {
	mu        sync.Mutex
	positions map[string]ledger.Position
	closed    map[string]time.Time
	history   map[string]ledger.HistoryRecord
	fees      map[string]Fee
}

func NewMemory() *Memory {
	return &Memory{
		positions: make(map[string]ledger.Position),
		closed:    make(map[string]time.Time),
		history:   make(map[string]ledger.HistoryRecord),
		fees:      make(map[string]Fee),
	}
}

func (m *Memory) CreatePosition(_ context.Context, p ledger.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.ID]; !ok {
		m.positions[p.ID] = p
	}
	return nil
}

func (m *Memory) ClosePosition(_ context.Context, positionID string, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.closed[positionID]; !ok {
		m.closed[positionID] = closedAt
	}
	return nil
}

func (m *Memory) RecordHistory(_ context.Context, h ledger.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[h.PositionID]; !ok {
		m.history[h.PositionID] = h
	}
	return nil
}

func (m *Memory) DeductFee(_ context.Context, positionID string, amount decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fees[positionID]; !ok {
		m.fees[positionID] = Fee{PositionID: positionID, Amount: amount, Time: at}
	}
	return nil
}

// OpenPositions lists positions created and not yet closed, by id.
func (m *Memory) OpenPositions(_ context.Context) ([]ledger.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Position
	for id, p := range m.positions {
		if _, ok := m.closed[id]; !ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// History lists closed trades ordered by close time.
func (m *Memory) History(_ context.Context) ([]ledger.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.HistoryRecord, 0, len(m.history))
	for _, h := range m.history {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CloseTime.Equal(out[j].CloseTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].CloseTime.Before(out[j].CloseTime)
	})
	return out, nil
}

func (m *Memory) Fees(_ context.Context) ([]Fee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Fee, 0, len(m.fees))
	for _, f := range m.fees {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out, nil
}

func (m *Memory) Close() error { return nil }

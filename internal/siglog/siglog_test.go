package siglog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListByRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sig := &backtest.TradeSignal{
		Strategy: "inplay_breakout",
		Symbol:   "BTCUSDT",
		Side:     backtest.SideLong,
		Entry:    100, SL: 90, TP: 120,
	}
	require.NoError(t, store.Record(ctx, "run-1", 2000, 7, sig, backtest.VerdictAccepted, ""))
	require.NoError(t, store.Record(ctx, "run-1", 1000, 3, nil, backtest.VerdictCooldown, "BTCUSDT"))
	require.NoError(t, store.Record(ctx, "run-2", 1000, 0, sig, backtest.VerdictInvalid, ""))

	rows, err := store.ListByRun(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// bar_index 升序
	assert.Equal(t, 3, rows[0].BarIndex)
	assert.Equal(t, backtest.VerdictCooldown, rows[0].Verdict)
	assert.Empty(t, rows[0].Strategy)
	assert.Empty(t, rows[0].Signal)

	assert.Equal(t, 7, rows[1].BarIndex)
	assert.Equal(t, "inplay_breakout", rows[1].Strategy)
	assert.Equal(t, "BTCUSDT", rows[1].Symbol)
	assert.Contains(t, string(rows[1].Signal), `"Entry":100`)
}

func TestCountByVerdict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, "run-1", int64(i), i, nil, backtest.VerdictCooldown, ""))
	}
	require.NoError(t, store.Record(ctx, "run-1", 9, 9, nil, backtest.VerdictZeroQty, ""))

	counts, err := store.CountByVerdict(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[backtest.VerdictCooldown])
	assert.Equal(t, int64(1), counts[backtest.VerdictZeroQty])
	assert.Zero(t, counts[backtest.VerdictAccepted])
}

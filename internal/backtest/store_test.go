package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridCandles(start int64, step int64, n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		open := start + int64(i)*step
		out[i] = Candle{
			OpenTime:  open,
			CloseTime: open + step - 1,
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return out
}

func TestStoreInsertAndRange(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	tf, _ := ParseTimeframe("5m")
	step := int64(300_000)
	candles := gridCandles(0, step, 10)

	n, err := store.InsertCandles(ctx, "BTCUSDT", tf.Key, candles)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	t.Run("range is inclusive on open_time", func(t *testing.T) {
		got, err := store.RangeCandles(ctx, "BTCUSDT", tf.Key, step, 3*step)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, step, got[0].OpenTime)
	})

	t.Run("upsert does not duplicate", func(t *testing.T) {
		_, err := store.InsertCandles(ctx, "BTCUSDT", tf.Key, candles[:5])
		require.NoError(t, err)
		all, err := store.ListAllCandles(ctx, "BTCUSDT", tf.Key)
		require.NoError(t, err)
		assert.Len(t, all, 10)
	})

	t.Run("manifest tracks bounds", func(t *testing.T) {
		m, err := store.Manifest(ctx, "BTCUSDT", tf.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(0), m.MinTime)
		assert.Equal(t, int64(9)*step, m.MaxTime)
		assert.Equal(t, int64(10), m.Rows)
	})
}

func TestStoreCheckIntegrity(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	tf, _ := ParseTimeframe("5m")
	step := int64(300_000)

	// 写入 0..4 与 8..9，留一个 5..7 的洞
	full := gridCandles(0, step, 10)
	part := append(append([]Candle{}, full[:5]...), full[8:]...)
	_, err = store.InsertCandles(ctx, "ETHUSDT", tf.Key, part)
	require.NoError(t, err)

	rep, err := store.CheckIntegrity(ctx, "ETHUSDT", tf, 0, 9*step)
	require.NoError(t, err)

	assert.Equal(t, int64(10), rep.Expected)
	assert.Equal(t, int64(7), rep.Present)
	assert.False(t, rep.Complete())
	require.Len(t, rep.Gaps, 1)
	assert.Equal(t, 5*step, rep.Gaps[0].From)
	assert.Equal(t, 7*step, rep.Gaps[0].To)

	t.Run("filling the hole completes the range", func(t *testing.T) {
		_, err := store.InsertCandles(ctx, "ETHUSDT", tf.Key, full[5:8])
		require.NoError(t, err)
		rep, err := store.CheckIntegrity(ctx, "ETHUSDT", tf, 0, 9*step)
		require.NoError(t, err)
		assert.True(t, rep.Complete())
		assert.Empty(t, rep.Gaps)
	})

	t.Run("empty symbol is one big gap", func(t *testing.T) {
		rep, err := store.CheckIntegrity(ctx, "NEWUSDT", tf, 0, 2*step)
		require.NoError(t, err)
		assert.Equal(t, int64(3), rep.Expected)
		assert.Equal(t, int64(0), rep.Present)
		require.Len(t, rep.Gaps, 1)
		assert.Equal(t, int64(0), rep.Gaps[0].From)
		assert.Equal(t, 2*step, rep.Gaps[0].To)
	})
}

func TestResultStoreRoundTrip(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer rs.Close()

	ctx := context.Background()
	run := Run{
		ID:             "run-1",
		Mode:           RunModePortfolio,
		Status:         RunStatusPending,
		StartTS:        1000,
		EndTS:          2000,
		StartingEquity: 1000,
		Config: RunConfig{
			Mode:    RunModePortfolio,
			Symbols: []string{"BTCUSDT"},
		},
	}
	require.NoError(t, rs.InsertRun(ctx, run))

	t.Run("status transition", func(t *testing.T) {
		require.NoError(t, rs.UpdateRunStatus(ctx, "run-1", RunStatusRunning, ""))
		got, err := rs.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, RunStatusRunning, got.Status)
		assert.True(t, got.CompletedAt.IsZero())
	})

	t.Run("summary marks completion", func(t *testing.T) {
		stats := RunStats{
			StartingEquity: 1000,
			FinalEquity:    1100,
			Profit:         100,
			ReturnPct:      10,
			Trades:         4,
		}
		require.NoError(t, rs.UpdateRunSummary(ctx, "run-1", RunStatusDone, stats, "ok"))
		got, err := rs.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, RunStatusDone, got.Status)
		assert.InDelta(t, 1100.0, got.FinalEquity, 1e-9)
		assert.Equal(t, []string{"BTCUSDT"}, got.Config.Symbols)
		assert.False(t, got.CompletedAt.IsZero())
	})

	t.Run("trades and equity attach to run", func(t *testing.T) {
		trades := []Trade{
			{Strategy: "brk", Symbol: "BTCUSDT", Side: SideLong, EntryTS: 1100, ExitTS: 1200, PnL: 25, Outcome: OutcomeTP},
			{Strategy: "brk", Symbol: "BTCUSDT", Side: SideLong, EntryTS: 1300, ExitTS: 1400, PnL: -10, Outcome: OutcomeSL},
		}
		require.NoError(t, rs.InsertTrades(ctx, "run-1", trades))
		require.NoError(t, rs.InsertEquityCurve(ctx, "run-1", []float64{1000, 1025, 1015}))

		gotTrades, err := rs.ListTrades(ctx, "run-1", 0)
		require.NoError(t, err)
		require.Len(t, gotTrades, 2)
		assert.Equal(t, OutcomeTP, gotTrades[0].Outcome)

		curve, err := rs.ListEquityCurve(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, []float64{1000, 1025, 1015}, curve)
	})

	t.Run("list runs newest first", func(t *testing.T) {
		require.NoError(t, rs.InsertRun(ctx, Run{ID: "run-2", Mode: RunModeSymbol, Status: RunStatusPending}))
		runs, err := rs.ListRuns(ctx, 10)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(runs), 2)
	})

	t.Run("missing run", func(t *testing.T) {
		_, err := rs.GetRun(ctx, "nope")
		assert.Error(t, err)
	})
}

package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqBars 生成 n 根收盘价为 1..n 的连续 5m K 线。
func seqBars(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		px := float64(i + 1)
		out[i] = Candle{
			OpenTime:  int64(i) * 300_000,
			CloseTime: int64(i+1)*300_000 - 1,
			Open:      px, High: px + 0.5, Low: px - 0.5, Close: px,
			Volume: 1,
		}
	}
	return out
}

func TestSeriesStoreAggregatedFrames(t *testing.T) {
	store := NewSeriesStore("BTCUSDT", seqBars(48))

	assert.Equal(t, "BTCUSDT", store.Symbol())
	assert.Equal(t, 48, store.Len())

	store.SetIndex(47)
	for _, tc := range []struct {
		tf   string
		want int
	}{
		{"5m", 48}, {"15m", 16}, {"1h", 4}, {"4h", 1},
	} {
		got, err := store.Slice(tc.tf, 0)
		require.NoError(t, err, tc.tf)
		assert.Len(t, got, tc.want, tc.tf)
	}
}

func TestSeriesStoreCursor(t *testing.T) {
	store := NewSeriesStore("BTCUSDT", seqBars(48))

	t.Run("before first advance", func(t *testing.T) {
		_, ok := store.Current()
		assert.False(t, ok)
		got, err := store.Slice("15m", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("only completed buckets are visible", func(t *testing.T) {
		store.SetIndex(5)
		cur, ok := store.Current()
		require.True(t, ok)
		assert.InDelta(t, 6.0, cur.Close, 1e-12)

		m15, err := store.Slice("15m", 10)
		require.NoError(t, err)
		require.Len(t, m15, 2) // bar 0-2 与 3-5 两个完整桶
		assert.InDelta(t, 6.0, m15[1].Close, 1e-12)

		// 1h 桶要到下标 11 才收盘，此时不可见
		h1, err := store.Slice("1h", 10)
		require.NoError(t, err)
		assert.Empty(t, h1)
	})

	t.Run("hour bucket appears at its closing bar", func(t *testing.T) {
		store.SetIndex(11)
		h1, err := store.Slice("1h", 10)
		require.NoError(t, err)
		require.Len(t, h1, 1)
		assert.InDelta(t, 12.0, h1[0].Close, 1e-12)
		assert.Equal(t, int64(0), h1[0].OpenTime)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		store.SetIndex(47)
		m15, err := store.Slice("15m", 3)
		require.NoError(t, err)
		require.Len(t, m15, 3)
		assert.InDelta(t, 48.0, m15[2].Close, 1e-12)
		assert.InDelta(t, 42.0, m15[0].Close, 1e-12)
	})

	t.Run("unknown timeframe is a config error", func(t *testing.T) {
		_, err := store.Slice("2h", 10)
		assert.Error(t, err)
	})
}

func TestSeriesStoreMustSlice(t *testing.T) {
	store := NewSeriesStore("BTCUSDT", seqBars(48))
	store.SetIndex(11)

	want, err := store.Slice("15m", 10)
	require.NoError(t, err)
	assert.Equal(t, want, store.MustSlice("15m", 10))

	assert.Panics(t, func() { store.MustSlice("7m", 10) })
}

func TestTimeframeHelpers(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)
	assert.Equal(t, 12, tf.GroupSize())

	_, err = ParseTimeframe("3m")
	assert.Error(t, err)

	t.Run("align range snaps to grid", func(t *testing.T) {
		tf, _ := ParseTimeframe("5m")
		start, end := tf.AlignRange(301_000, 899_000)
		assert.Equal(t, int64(300_000), start)
		assert.Equal(t, int64(600_000), end)
	})

	t.Run("align range swaps reversed bounds", func(t *testing.T) {
		tf, _ := ParseTimeframe("5m")
		start, end := tf.AlignRange(900_000, 300_000)
		assert.LessOrEqual(t, start, end)
	})

	t.Run("expected candles inclusive", func(t *testing.T) {
		tf, _ := ParseTimeframe("5m")
		assert.Equal(t, int64(3), tf.ExpectedCandles(0, 600_000))
	})
}

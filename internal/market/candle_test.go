package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	base := []Candle{
		{OpenTime: 0, CloseTime: 299_999, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1, Trades: 5},
		{OpenTime: 300_000, CloseTime: 599_999, Open: 11, High: 15, Low: 10, Close: 14, Volume: 2, Trades: 7},
		{OpenTime: 600_000, CloseTime: 899_999, Open: 14, High: 14, Low: 8, Close: 9, Volume: 3, Trades: 2},
		// 不足一组的尾部
		{OpenTime: 900_000, CloseTime: 1_199_999, Open: 9, High: 10, Low: 7, Close: 8, Volume: 4, Trades: 1},
	}

	out := Aggregate(base, 3)
	require.Len(t, out, 1)

	agg := out[0]
	assert.Equal(t, int64(0), agg.OpenTime)
	assert.Equal(t, int64(899_999), agg.CloseTime)
	assert.InDelta(t, 10.0, agg.Open, 1e-12)
	assert.InDelta(t, 15.0, agg.High, 1e-12)
	assert.InDelta(t, 8.0, agg.Low, 1e-12)
	assert.InDelta(t, 9.0, agg.Close, 1e-12)
	assert.InDelta(t, 6.0, agg.Volume, 1e-12)
	assert.Equal(t, int64(14), agg.Trades)
}

func TestAggregateGroupOfOneCopies(t *testing.T) {
	base := []Candle{{Open: 1, Close: 2}, {Open: 2, Close: 3}}
	out := Aggregate(base, 1)
	require.Len(t, out, 2)
	assert.Equal(t, base, out)

	out[0].Close = 99
	assert.InDelta(t, 2.0, base[0].Close, 1e-12) // 返回的是副本
}

func TestAggregateShortInput(t *testing.T) {
	base := []Candle{{Open: 1}, {Open: 2}}
	assert.Empty(t, Aggregate(base, 3))
}

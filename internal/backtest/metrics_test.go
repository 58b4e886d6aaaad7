package backtest

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	trades := []Trade{
		{PnL: 10}, {PnL: -5}, {PnL: 20}, {PnL: 0},
	}
	s := Summarize("mix", trades, []float64{1000, 1010, 1005, 1025, 1025})

	assert.Equal(t, "mix", s.Strategy)
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 25.0, s.NetPnL, 1e-12)
	assert.InDelta(t, 0.5, s.Winrate, 1e-12)
	assert.InDelta(t, 6.0, s.ProfitFactor, 1e-12) // 30 / 5
	assert.InDelta(t, 6.25, s.AvgPnL, 1e-12)
}

func TestSummarizeProfitFactorEdges(t *testing.T) {
	t.Run("no losses and some profit is infinite", func(t *testing.T) {
		s := Summarize("wins", []Trade{{PnL: 3}, {PnL: 7}}, nil)
		assert.True(t, math.IsInf(s.ProfitFactor, 1))
	})
	t.Run("no trades", func(t *testing.T) {
		s := Summarize("empty", nil, nil)
		assert.Zero(t, s.ProfitFactor)
		assert.Zero(t, s.Winrate)
		assert.Zero(t, s.AvgPnL)
	})
	t.Run("only losses", func(t *testing.T) {
		s := Summarize("losses", []Trade{{PnL: -4}}, nil)
		assert.Zero(t, s.ProfitFactor)
		assert.Equal(t, 1, s.Losses)
	})
}

func TestMaxDrawdownPct(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		curve := []float64{100, 120, 90, 110, 80}
		assert.InDelta(t, (120.0-80.0)/120.0*100.0, MaxDrawdownPct(curve), 1e-9)
	})
	t.Run("monotone up has no drawdown", func(t *testing.T) {
		assert.Zero(t, MaxDrawdownPct([]float64{1, 2, 3}))
	})
	t.Run("empty curve", func(t *testing.T) {
		assert.Zero(t, MaxDrawdownPct(nil))
	})
	t.Run("peak tracks forward only", func(t *testing.T) {
		// 回撤相对滚动峰值，而不是全局最高点之后的最低点
		curve := []float64{100, 50, 200, 180}
		assert.InDelta(t, 50.0, MaxDrawdownPct(curve), 1e-9)
	})
}

func TestSummaryJSONHandlesInfinity(t *testing.T) {
	s := Summarize("wins", []Trade{{PnL: 5}}, nil)
	require.True(t, math.IsInf(s.ProfitFactor, 1))

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"profit_factor":null`)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["profit_factor"])
}

package backtest

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/Brokenbass90/by-bot-sub000/internal/market"
)

// ATRCache 对单个 symbol 的基础序列按 period 惰性计算并缓存 ATR 序列
// （Wilder 平滑）。序列与 K 线下标对齐，warmup 之前的值为 NaN，
// 调用方以 “有限且 > 0” 作为可用判据。
type ATRCache struct {
	candles []market.Candle
	series  map[int][]float64
}

// NewATRCache 绑定一段不再变化的基础序列。
func NewATRCache(candles []market.Candle) *ATRCache {
	return &ATRCache{candles: candles, series: make(map[int][]float64)}
}

// Series 返回指定 period 的 ATR 序列；period 最小取 2。
func (c *ATRCache) Series(period int) []float64 {
	if period < 2 {
		period = 2
	}
	if s, ok := c.series[period]; ok {
		return s
	}
	s := computeATRSeries(c.candles, period)
	c.series[period] = s
	return s
}

// At 返回下标 i 处的 ATR；越界或 warmup 之内返回 NaN。
func (c *ATRCache) At(period, i int) float64 {
	s := c.Series(period)
	if i < 0 || i >= len(s) {
		return math.NaN()
	}
	return s[i]
}

func computeATRSeries(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	// 历史不足：整条序列不可用（数据不足属于局部降级，不是错误）。
	if period <= 0 || n < period+2 {
		return out
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	raw := talib.Atr(highs, lows, closes, period)
	// talib 在 warmup 区间填 0；引擎约定 warmup 为 NaN，首个有效值在下标 period。
	for i := period; i < n && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

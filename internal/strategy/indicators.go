package strategy

import (
	"github.com/markcheno/go-talib"

	"github.com/Brokenbass90/by-bot-sub000/internal/market"
)

// 中文说明：
// 技术指标计算统一走 talib，输入为 K 线切片，返回最新值。
// 数据不足时一律返回 0，由调用方决定是否跳过信号。

func closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// EMA 返回收盘价 EMA 的最新值（len(candles) >= period）。
func EMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	series := talib.Ema(closes(candles), period)
	return series[len(series)-1]
}

// RSI（Wilder）最新值。
func RSI(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) <= period {
		return 0
	}
	series := talib.Rsi(closes(candles), period)
	return series[len(series)-1]
}

// ATR（Wilder）最新值；数据不足返回 0。
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	cls := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		cls[i] = c.Close
	}
	series := talib.Atr(highs, lows, cls, period)
	return series[len(series)-1]
}

// HighestHigh 返回最近 n 根（不含最后一根）的最高价。
func HighestHigh(candles []market.Candle, n int) float64 {
	if n <= 0 || len(candles) < n+1 {
		return 0
	}
	window := candles[len(candles)-1-n : len(candles)-1]
	hh := window[0].High
	for _, c := range window[1:] {
		if c.High > hh {
			hh = c.High
		}
	}
	return hh
}

// LowestLow 返回最近 n 根（不含最后一根）的最低价。
func LowestLow(candles []market.Candle, n int) float64 {
	if n <= 0 || len(candles) < n+1 {
		return 0
	}
	window := candles[len(candles)-1-n : len(candles)-1]
	ll := window[0].Low
	for _, c := range window[1:] {
		if c.Low < ll {
			ll = c.Low
		}
	}
	return ll
}

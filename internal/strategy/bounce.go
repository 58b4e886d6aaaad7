package strategy

import (
	"fmt"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

const bounceSchema = `{
  "type": "object",
  "properties": {
    "timeframe": {"type": "string"},
    "rsi_period": {"type": "integer", "minimum": 2},
    "oversold": {"type": "number", "minimum": 1, "maximum": 50},
    "overbought": {"type": "number", "minimum": 50, "maximum": 99},
    "range_lookback": {"type": "integer", "minimum": 5},
    "atr_period": {"type": "integer", "minimum": 2},
    "sl_atr_mult": {"type": "number", "exclusiveMinimum": 0},
    "rr": {"type": "number", "exclusiveMinimum": 0},
    "time_stop_bars": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`

func init() {
	RegisterBuilder("bounce", bounceSchema, buildBounce)
}

// buildBounce 构建区间回落反弹策略：RSI 超卖且贴近区间下沿时做多，
// 超买且贴近上沿时做空；单目标 TP 按固定盈亏比给出。
func buildBounce(def Definition) (backtest.SignalFunc, error) {
	p := def.Params
	timeframe := "1h"
	if v, ok := p["timeframe"].(string); ok && v != "" {
		timeframe = v
	}
	if _, err := backtest.ParseTimeframe(timeframe); err != nil {
		return nil, fmt.Errorf("bounce timeframe: %w", err)
	}
	rsiPeriod := p.Int("rsi_period", 14)
	oversold := p.Float("oversold", 30)
	overbought := p.Float("overbought", 70)
	lookback := p.Int("range_lookback", 24)
	atrPeriod := p.Int("atr_period", 14)
	slMult := p.Float("sl_atr_mult", 1.0)
	rr := p.Float("rr", 1.5)
	timeStop := p.Int("time_stop_bars", 144)
	name := def.Name

	return func(store *backtest.SeriesStore, bar backtest.Candle) *backtest.TradeSignal {
		need := lookback + atrPeriod + rsiPeriod + 2
		frame := store.MustSlice(timeframe, need)
		if len(frame) < lookback+rsiPeriod+2 {
			return nil
		}
		atr := ATR(frame, atrPeriod)
		if atr <= 0 {
			return nil
		}
		rsi := RSI(frame, rsiPeriod)
		ll := LowestLow(frame, lookback)
		hh := HighestHigh(frame, lookback)
		if ll <= 0 || hh <= ll {
			return nil
		}
		entry := bar.Close

		if rsi > 0 && rsi < oversold && entry <= ll+atr {
			sl := entry - slMult*atr
			tp := entry + rr*slMult*atr
			if sl <= 0 {
				return nil
			}
			return &backtest.TradeSignal{
				Strategy:     name,
				Symbol:       store.Symbol(),
				Side:         backtest.SideLong,
				Entry:        entry,
				SL:           sl,
				TP:           tp,
				TimeStopBars: timeStop,
				Reason:       fmt.Sprintf("%s RSI=%.1f 触及区间下沿 %.4f", timeframe, rsi, ll),
			}
		}
		if rsi > overbought && entry >= hh-atr {
			sl := entry + slMult*atr
			tp := entry - rr*slMult*atr
			if tp <= 0 {
				return nil
			}
			return &backtest.TradeSignal{
				Strategy:     name,
				Symbol:       store.Symbol(),
				Side:         backtest.SideShort,
				Entry:        entry,
				SL:           sl,
				TP:           tp,
				TimeStopBars: timeStop,
				Reason:       fmt.Sprintf("%s RSI=%.1f 触及区间上沿 %.4f", timeframe, rsi, hh),
			}
		}
		return nil
	}, nil
}

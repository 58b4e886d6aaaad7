package strategy

import (
	"fmt"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

const breakoutSchema = `{
  "type": "object",
  "properties": {
    "timeframe": {"type": "string"},
    "lookback": {"type": "integer", "minimum": 5},
    "atr_period": {"type": "integer", "minimum": 2},
    "ema_period": {"type": "integer", "minimum": 0},
    "sl_atr_mult": {"type": "number", "exclusiveMinimum": 0},
    "tp_atr_mults": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}, "minItems": 1},
    "tp_fracs": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}},
    "trail_atr_mult": {"type": "number", "minimum": 0},
    "time_stop_bars": {"type": "integer", "minimum": 0},
    "min_atr_pct": {"type": "number", "minimum": 0}
  },
  "additionalProperties": false
}`

func init() {
	RegisterBuilder("breakout", breakoutSchema, buildBreakout)
}

// buildBreakout 构建区间突破做多策略：
// 收盘价突破 lookback 根内最高价且波动充分时进场，止损挂在 ATR 距离之下。
// ema_period > 0 时附加趋势过滤：收盘价须在 EMA 之上才入场。
func buildBreakout(def Definition) (backtest.SignalFunc, error) {
	p := def.Params
	timeframe := "15m"
	if v, ok := p["timeframe"].(string); ok && v != "" {
		timeframe = v
	}
	if _, err := backtest.ParseTimeframe(timeframe); err != nil {
		return nil, fmt.Errorf("breakout timeframe: %w", err)
	}
	lookback := p.Int("lookback", 48)
	atrPeriod := p.Int("atr_period", 14)
	emaPeriod := p.Int("ema_period", 0)
	slMult := p.Float("sl_atr_mult", 1.5)
	tpMults := p.Floats("tp_atr_mults")
	if len(tpMults) == 0 {
		tpMults = []float64{1.0, 2.0, 3.0}
	}
	tpFracs := p.Floats("tp_fracs")
	trailMult := p.Float("trail_atr_mult", 1.0)
	timeStop := p.Int("time_stop_bars", 96)
	minATRPct := p.Float("min_atr_pct", 0.001)
	name := def.Name

	need := lookback + atrPeriod + 2
	if emaPeriod+2 > need {
		need = emaPeriod + 2
	}

	return func(store *backtest.SeriesStore, bar backtest.Candle) *backtest.TradeSignal {
		frame := store.MustSlice(timeframe, need)
		if len(frame) < lookback+2 {
			return nil
		}
		atr := ATR(frame, atrPeriod)
		if atr <= 0 || atr < bar.Close*minATRPct {
			return nil
		}
		hh := HighestHigh(frame, lookback)
		if hh <= 0 || bar.Close <= hh {
			return nil
		}
		if emaPeriod > 0 {
			// 趋势过滤：EMA 数据不足（返回 0）时同样不入场。
			ema := EMA(frame, emaPeriod)
			if ema <= 0 || bar.Close < ema {
				return nil
			}
		}
		entry := bar.Close
		sl := entry - slMult*atr
		if sl <= 0 {
			return nil
		}
		tps := make([]float64, len(tpMults))
		for i, m := range tpMults {
			tps[i] = entry + m*atr
		}
		return &backtest.TradeSignal{
			Strategy:          name,
			Symbol:            store.Symbol(),
			Side:              backtest.SideLong,
			Entry:             entry,
			SL:                sl,
			TPs:               tps,
			TPFracs:           append([]float64(nil), tpFracs...),
			TrailingATRMult:   trailMult,
			TrailingATRPeriod: atrPeriod,
			TimeStopBars:      timeStop,
			Reason:            fmt.Sprintf("%s 突破 %d 根高点 %.4f", timeframe, lookback, hh),
		}
	}, nil
}

package backtest

import (
	"encoding/json"
	"math"
)

// Trade 是一条已关闭交易的不可变记录；在 RemainingQty 归零时生成一次。
type Trade struct {
	Strategy     string  `json:"strategy"`
	Symbol       string  `json:"symbol"`
	Side         Side    `json:"side"`
	EntryTS      int64   `json:"entry_ts"`
	ExitTS       int64   `json:"exit_ts"`
	EntryPrice   float64 `json:"entry_price"`
	ExitPrice    float64 `json:"exit_price"` // 各次部分平仓的成交量加权均价
	Qty          float64 `json:"qty"`
	PnL          float64 `json:"pnl"` // 扣除全部手续费后的净额
	PnLPctEquity float64 `json:"pnl_pct_equity"`
	Fees         float64 `json:"fees"`
	Outcome      Outcome `json:"outcome"`
	Reason       string  `json:"reason"`
}

// Summary 汇总一组交易 + 资金曲线的表现指标，供报表消费。
type Summary struct {
	Strategy     string  `json:"strategy"`
	NetPnL       float64 `json:"net_pnl"`
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Winrate      float64 `json:"winrate"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgPnL       float64 `json:"avg_pnl"`
	// MaxDrawdownPct 为资金曲线相对滚动峰值的最大回撤百分比（0..100）。
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// MarshalJSON 将非有限的 profit factor 编码为 null，保证 JSON 合法。
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	if math.IsInf(s.ProfitFactor, 0) || math.IsNaN(s.ProfitFactor) {
		return json.Marshal(struct {
			alias
			ProfitFactor interface{} `json:"profit_factor"`
		}{alias: alias(s), ProfitFactor: nil})
	}
	return json.Marshal(alias(s))
}

// MaxDrawdownPct 计算资金曲线相对滚动峰值的最大回撤百分比。
func MaxDrawdownPct(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	mdd := 0.0
	for _, x := range curve {
		if x > peak {
			peak = x
		}
		if peak > 0 {
			dd := (peak - x) / peak * 100.0
			if dd > mdd {
				mdd = dd
			}
		}
	}
	return mdd
}

// Summarize 汇总指标。profit factor 在毛亏为 0 时：有毛利 => +Inf，否则 0。
func Summarize(strategy string, trades []Trade, curve []float64) Summary {
	var net, grossWin, grossLoss float64
	wins, losses := 0, 0
	for _, t := range trades {
		net += t.PnL
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss -= t.PnL
		}
	}
	n := len(trades)
	winrate := 0.0
	avg := 0.0
	if n > 0 {
		winrate = float64(wins) / float64(n)
		avg = net / float64(n)
	}
	pf := 0.0
	if grossLoss > 0 {
		pf = grossWin / grossLoss
	} else if grossWin > 0 {
		pf = math.Inf(1)
	}
	return Summary{
		Strategy:       strategy,
		NetPnL:         net,
		Trades:         n,
		Wins:           wins,
		Losses:         losses,
		Winrate:        winrate,
		ProfitFactor:   pf,
		AvgPnL:         avg,
		MaxDrawdownPct: MaxDrawdownPct(curve),
	}
}

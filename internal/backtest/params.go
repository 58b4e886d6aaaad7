package backtest

// BacktestParams 是一次回测运行的资金与成本参数，运行期间不可变。
type BacktestParams struct {
	StartingEquity float64 `json:"starting_equity"`
	// RiskPct 为每笔按止损距离承担的资金比例。
	RiskPct float64 `json:"risk_pct"`
	// CapNotionalUSD 为单笔名义上限；<=0 表示未设置，改用
	// equity*leverage/max_positions 动态推导。
	CapNotionalUSD float64 `json:"cap_notional_usd"`
	Leverage       float64 `json:"leverage"`
	MaxPositions   int     `json:"max_positions"`
	FeeBps         float64 `json:"fee_bps"`
	SlippageBps    float64 `json:"slippage_bps"`
	// MinFillFrac：名义上限把仓位压到期望值的该比例以下时直接放弃开仓
	// （手续费/滑点会吞掉小单的期望收益）。默认 0.40，无业务依据，可调。
	MinFillFrac float64 `json:"min_fill_frac"`
}

// DefaultParams 返回与原有口径一致的缺省参数。
func DefaultParams() BacktestParams {
	return BacktestParams{
		StartingEquity: 1000,
		RiskPct:        0.01,
		CapNotionalUSD: 1000,
		Leverage:       1,
		MaxPositions:   1,
		FeeBps:         6,
		SlippageBps:    2,
		MinFillFrac:    0.40,
	}
}

func (p BacktestParams) minFillFrac() float64 {
	if p.MinFillFrac > 0 {
		return p.MinFillFrac
	}
	return 0.40
}

// effectiveCap 返回本次开仓的名义上限；未配置固定上限时按当前 equity 推导。
func (p BacktestParams) effectiveCap(equity float64) float64 {
	if p.CapNotionalUSD > 0 {
		return p.CapNotionalUSD
	}
	mp := p.MaxPositions
	if mp < 1 {
		mp = 1
	}
	return equity * p.Leverage / float64(mp)
}

// applySlippage 让成交价永远向不利方向偏移：
// 入场 long 买贵 / short 卖便宜；出场方向相反。
func applySlippage(price float64, side Side, isEntry bool, slippageBps float64) float64 {
	bps := slippageBps / 10000.0
	if side == SideLong {
		if isEntry {
			return price * (1 + bps)
		}
		return price * (1 - bps)
	}
	if isEntry {
		return price * (1 - bps)
	}
	return price * (1 + bps)
}

// feeOf 按名义金额收取双边手续费。
func feeOf(notional, feeBps float64) float64 {
	n := notional
	if n < 0 {
		n = -n
	}
	return n * (feeBps / 10000.0)
}

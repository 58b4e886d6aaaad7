package backtest

import (
	"encoding/json"
	"math"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// 回测模式：单标的串行 or 组合共享资金。
const (
	RunModeSymbol    = "symbol"
	RunModePortfolio = "portfolio"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Mode           string         `json:"mode"`
	Symbols        []string       `json:"symbols"`
	Strategies     []string       `json:"strategies"`
	StartTS        int64          `json:"start_ts"`
	EndTS          int64          `json:"end_ts"`
	Params         BacktestParams `json:"params"`
	CooldownBars   int            `json:"cooldown_bars"`
	CooldownSet    []string       `json:"cooldown_strategies,omitempty"`
	PriorityOrder  []string       `json:"priority_order,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

// RunStats 汇总收益与风控指标，供前端展示。
type RunStats struct {
	StartingEquity    float64   `json:"starting_equity"`
	FinalEquity       float64   `json:"final_equity"`
	Profit            float64   `json:"profit"`
	ReturnPct         float64   `json:"return_pct"`
	Trades            int       `json:"trades"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	WinratePct        float64   `json:"winrate_pct"`
	ProfitFactor      float64   `json:"profit_factor"`
	MaxDrawdownPct    float64   `json:"max_drawdown_pct"`
	AvgHoldingMinutes float64   `json:"avg_holding_minutes"`
	EquityPeak        float64   `json:"equity_peak"`
	EquityValley      float64   `json:"equity_valley"`
	ByStrategy        []Summary `json:"by_strategy,omitempty"`
	Notes             []string  `json:"notes,omitempty"`
	FinishedAt        time.Time `json:"finished_at"`
}

// MarshalJSON 同 Summary：非有限的 profit factor 编码为 null。
func (s RunStats) MarshalJSON() ([]byte, error) {
	type alias RunStats
	if math.IsInf(s.ProfitFactor, 0) || math.IsNaN(s.ProfitFactor) {
		return json.Marshal(struct {
			alias
			ProfitFactor interface{} `json:"profit_factor"`
		}{alias: alias(s), ProfitFactor: nil})
	}
	return json.Marshal(alias(s))
}

// Run 表示一次回测任务。
type Run struct {
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	Status         string    `json:"status"`
	StartTS        int64     `json:"start_ts"`
	EndTS          int64     `json:"end_ts"`
	StartingEquity float64   `json:"starting_equity"`
	FinalEquity    float64   `json:"final_equity"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	WinratePct     float64   `json:"winrate_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Trades         int       `json:"trades"`
	Message        string    `json:"message"`
	Config         RunConfig `json:"config"`
	Stats          RunStats  `json:"stats"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// MarshalStats 返回 stats JSON。
func (r Run) MarshalStats() ([]byte, error) {
	return json.Marshal(r.Stats)
}

// MarshalConfig 返回 config JSON。
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// EquityPoint 保存资金曲线上的一个采样点。
type EquityPoint struct {
	ID     int64   `json:"id"`
	RunID  string  `json:"run_id"`
	Seq    int     `json:"seq"`
	Equity float64 `json:"equity"`
}

// RunRequest 为 HTTP 提交使用。
type RunRequest struct {
	Mode           string   `json:"mode"`
	Symbols        []string `json:"symbols" binding:"required"`
	Strategies     []string `json:"strategies"`
	PriorityOrder  []string `json:"priority_order"`
	Notes          string   `json:"notes"`
	StartTS        int64    `json:"start_ts" binding:"required"`
	EndTS          int64    `json:"end_ts" binding:"required"`
	StartingEquity float64  `json:"starting_equity"`
	RiskPct        float64  `json:"risk_pct"`
	CapNotionalUSD float64  `json:"cap_notional_usd"`
	Leverage       float64  `json:"leverage"`
	MaxPositions   int      `json:"max_positions"`
	FeeBps         float64  `json:"fee_bps"`
	SlippageBps    float64  `json:"slippage_bps"`
	MinFillFrac    float64  `json:"min_fill_frac"`
	CooldownBars   int      `json:"cooldown_bars"`
}

package config

import (
	"strings"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

// Config 是回测服务的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Data       DataConfig       `toml:"data"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Strategies StrategiesConfig `toml:"strategies"`
	Report     ReportConfig     `toml:"report"`
	Notify     NotifyConfig     `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 管理历史 K 线的存取与补数。
type DataConfig struct {
	Root            string `toml:"root"`
	ResultsRoot     string `toml:"results_root"`
	SignalLogPath   string `toml:"signal_log_path"`
	Exchange        string `toml:"exchange"`
	RESTBase        string `toml:"rest_base"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	MaxBatch        int    `toml:"max_batch"`
	MaxConcurrent   int    `toml:"max_concurrent"`
}

// BacktestConfig 是引擎参数的配置面。
type BacktestConfig struct {
	StartingEquity     float64  `toml:"starting_equity"`
	RiskPct            float64  `toml:"risk_pct"`
	CapNotionalUSD     float64  `toml:"cap_notional_usd"`
	Leverage           float64  `toml:"leverage"`
	MaxPositions       int      `toml:"max_positions"`
	FeeBps             float64  `toml:"fee_bps"`
	SlippageBps        float64  `toml:"slippage_bps"`
	MinFillFrac        float64  `toml:"min_fill_frac"`
	CooldownBars       int      `toml:"cooldown_bars"`
	CooldownStrategies []string `toml:"cooldown_strategies"`
	MaxConcurrent      int      `toml:"max_concurrent"`
}

// Params 折算为引擎参数结构。
func (b BacktestConfig) Params() backtest.BacktestParams {
	return backtest.BacktestParams{
		StartingEquity: b.StartingEquity,
		RiskPct:        b.RiskPct,
		CapNotionalUSD: b.CapNotionalUSD,
		Leverage:       b.Leverage,
		MaxPositions:   b.MaxPositions,
		FeeBps:         b.FeeBps,
		SlippageBps:    b.SlippageBps,
		MinFillFrac:    b.MinFillFrac,
	}
}

type StrategiesConfig struct {
	Path string `toml:"path"`
}

type ReportConfig struct {
	Dir      string `toml:"dir"`
	Parallel int    `toml:"parallel"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	_, ok := k[path]
	return ok
}

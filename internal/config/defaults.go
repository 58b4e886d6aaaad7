package config

import "strings"

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultAppLogPath        = "/data/logs/bybot.log"
	defaultDataRoot          = "/data/candles"
	defaultDataResultsRoot   = "/data/results"
	defaultDataSignalLog     = "/data/results/signals.db"
	defaultDataExchange      = "binance"
	defaultDataRESTBase      = "https://fapi.binance.com"
	defaultDataRateLimit     = 480
	defaultDataMaxBatch      = 1000
	defaultDataMaxConcurrent = 2
	defaultStrategiesPath    = "configs/strategies.yaml"
	defaultReportDir         = "/data/reports"
	defaultReportParallel    = 4
	defaultCooldownBars      = 12
	defaultBacktestWorkers   = 1
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
	c.Report.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.root", &d.Root, defaultDataRoot),
		stringFieldDefault("data.results_root", &d.ResultsRoot, defaultDataResultsRoot),
		stringFieldDefault("data.signal_log_path", &d.SignalLogPath, defaultDataSignalLog),
		stringFieldDefault("data.exchange", &d.Exchange, defaultDataExchange),
		stringFieldDefault("data.rest_base", &d.RESTBase, defaultDataRESTBase),
		fieldDefault{
			key:   "data.rate_limit_per_min",
			need:  func() bool { return d.RateLimitPerMin <= 0 },
			apply: func() { d.RateLimitPerMin = defaultDataRateLimit },
		},
		fieldDefault{
			key:   "data.max_batch",
			need:  func() bool { return d.MaxBatch <= 0 },
			apply: func() { d.MaxBatch = defaultDataMaxBatch },
		},
		fieldDefault{
			key:   "data.max_concurrent",
			need:  func() bool { return d.MaxConcurrent <= 0 },
			apply: func() { d.MaxConcurrent = defaultDataMaxConcurrent },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	// 引擎参数的兜底值与 backtest.DefaultParams 对齐。
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.starting_equity",
			need:  func() bool { return b.StartingEquity <= 0 },
			apply: func() { b.StartingEquity = 1000 },
		},
		fieldDefault{
			key:   "backtest.risk_pct",
			need:  func() bool { return b.RiskPct <= 0 },
			apply: func() { b.RiskPct = 0.01 },
		},
		fieldDefault{
			key:   "backtest.cap_notional_usd",
			need:  func() bool { return b.CapNotionalUSD == 0 },
			apply: func() { b.CapNotionalUSD = 1000 },
		},
		fieldDefault{
			key:   "backtest.leverage",
			need:  func() bool { return b.Leverage <= 0 },
			apply: func() { b.Leverage = 1 },
		},
		fieldDefault{
			key:   "backtest.max_positions",
			need:  func() bool { return b.MaxPositions <= 0 },
			apply: func() { b.MaxPositions = 1 },
		},
		fieldDefault{
			key:   "backtest.fee_bps",
			need:  func() bool { return b.FeeBps == 0 },
			apply: func() { b.FeeBps = 6 },
		},
		fieldDefault{
			key:   "backtest.slippage_bps",
			need:  func() bool { return b.SlippageBps == 0 },
			apply: func() { b.SlippageBps = 2 },
		},
		fieldDefault{
			key:   "backtest.min_fill_frac",
			need:  func() bool { return b.MinFillFrac <= 0 },
			apply: func() { b.MinFillFrac = 0.40 },
		},
		fieldDefault{
			key:   "backtest.cooldown_bars",
			need:  func() bool { return b.CooldownBars <= 0 },
			apply: func() { b.CooldownBars = defaultCooldownBars },
		},
		fieldDefault{
			key:   "backtest.cooldown_strategies",
			need:  func() bool { return len(b.CooldownStrategies) == 0 },
			apply: func() { b.CooldownStrategies = []string{"inplay_breakout"} },
		},
		fieldDefault{
			key:   "backtest.max_concurrent",
			need:  func() bool { return b.MaxConcurrent <= 0 },
			apply: func() { b.MaxConcurrent = defaultBacktestWorkers },
		},
	)
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.path", &s.Path, defaultStrategiesPath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.dir", &r.Dir, defaultReportDir),
		fieldDefault{
			key:   "report.parallel",
			need:  func() bool { return r.Parallel <= 0 },
			apply: func() { r.Parallel = defaultReportParallel },
		},
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

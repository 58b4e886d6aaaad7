package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Brokenbass90/by-bot-sub000/internal/logger"

	"github.com/google/uuid"
)

// Notifier 用于运行完成后的推送（Telegram 等）。
type Notifier interface {
	SendText(text string) error
}

// StrategyProvider 按名字解析策略信号函数；由 strategy 注册表实现。
type StrategyProvider interface {
	Signal(name string) (SignalFunc, error)
	Selector(names []string) (SignalSelector, error)
	Names() []string
}

// SignalSink 接收引擎的信号审计记录；由 siglog 实现。
type SignalSink interface {
	Record(ctx context.Context, runID string, barTS int64, barIndex int, sig *TradeSignal, verdict, note string) error
}

type SimulatorConfig struct {
	CandleStore   *Store
	ResultStore   *ResultStore
	Provider      StrategyProvider
	Notifier      Notifier
	SignalLog     SignalSink
	Defaults      BacktestParams
	CooldownBars  int
	CooldownSet   []string
	MaxConcurrent int
}

// Simulator 负责将历史 K 线 + 策略信号推演为资金曲线，并持久化结果。
type Simulator struct {
	store        *Store
	results      *ResultStore
	provider     StrategyProvider
	notifier     Notifier
	signalLog    SignalSink
	defaults     BacktestParams
	cooldownBars int
	cooldownSet  []string

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("strategy provider 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	defaults := cfg.Defaults
	if defaults.StartingEquity <= 0 {
		defaults = DefaultParams()
	}
	return &Simulator{
		store:        cfg.CandleStore,
		results:      cfg.ResultStore,
		provider:     cfg.Provider,
		notifier:     cfg.Notifier,
		signalLog:    cfg.SignalLog,
		defaults:     defaults,
		cooldownBars: cfg.CooldownBars,
		cooldownSet:  cfg.CooldownSet,
		sem:          make(chan struct{}, maxConcurrent),
		baseCtx:      context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// buildParams 用请求覆盖默认参数；零值字段保持默认。
func (s *Simulator) buildParams(req RunRequest) BacktestParams {
	p := s.defaults
	if req.StartingEquity > 0 {
		p.StartingEquity = req.StartingEquity
	}
	if req.RiskPct > 0 {
		p.RiskPct = req.RiskPct
	}
	if req.CapNotionalUSD != 0 {
		p.CapNotionalUSD = req.CapNotionalUSD
	}
	if req.Leverage > 0 {
		p.Leverage = req.Leverage
	}
	if req.MaxPositions > 0 {
		p.MaxPositions = req.MaxPositions
	}
	if req.FeeBps > 0 {
		p.FeeBps = req.FeeBps
	}
	if req.SlippageBps > 0 {
		p.SlippageBps = req.SlippageBps
	}
	if req.MinFillFrac > 0 {
		p.MinFillFrac = req.MinFillFrac
	}
	return p
}

// StartRun 创建回测任务并立即返回，推演过程在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	if len(req.Symbols) == 0 {
		return Run{}, fmt.Errorf("symbols 不能为空")
	}
	symbols := make([]string, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return Run{}, fmt.Errorf("symbols 不能为空")
	}
	mode := strings.ToLower(req.Mode)
	if mode == "" {
		mode = RunModePortfolio
	}
	if mode != RunModeSymbol && mode != RunModePortfolio {
		return Run{}, fmt.Errorf("未知回测模式: %s", req.Mode)
	}
	if mode == RunModeSymbol && len(symbols) != 1 {
		return Run{}, fmt.Errorf("symbol 模式只接受一个标的")
	}
	tf, _ := ParseTimeframe(BaseTimeframeKey)
	start, end := tf.AlignRange(req.StartTS, req.EndTS)
	if start <= 0 || end <= 0 || end <= start {
		return Run{}, fmt.Errorf("start/end 非法")
	}

	strategies := req.Strategies
	if len(strategies) == 0 {
		strategies = s.provider.Names()
	}
	if len(strategies) == 0 {
		return Run{}, fmt.Errorf("无可用策略")
	}
	if mode == RunModeSymbol && len(strategies) != 1 {
		return Run{}, fmt.Errorf("symbol 模式只接受一个策略")
	}
	params := s.buildParams(req)
	if err := params.Validate(); err != nil {
		return Run{}, err
	}
	cooldownBars := req.CooldownBars
	if cooldownBars <= 0 {
		cooldownBars = s.cooldownBars
	}
	priority, err := normalizePriority(req.PriorityOrder, symbols)
	if err != nil {
		return Run{}, err
	}

	run := Run{
		ID:             uuid.NewString(),
		Mode:           mode,
		Status:         RunStatusPending,
		StartTS:        start,
		EndTS:          end,
		StartingEquity: params.StartingEquity,
		Config: RunConfig{
			Mode:          mode,
			Symbols:       symbols,
			Strategies:    strategies,
			StartTS:       start,
			EndTS:         end,
			Params:        params,
			CooldownBars:  cooldownBars,
			CooldownSet:   s.cooldownSet,
			PriorityOrder: priority,
			Notes:         strings.TrimSpace(req.Notes),
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	logger.Infof("[sim] 任务 %s 提交：mode=%s symbols=%s [%d,%d]", run.ID, mode, strings.Join(symbols, ","), start, end)
	go s.execute(run)
	return run, nil
}

// normalizePriority 校验入场优先级：只能引用本次 run 的 symbol，且不重复。
// 为空表示按 symbols 原顺序入场。
func normalizePriority(order, symbols []string) ([]string, error) {
	if len(order) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		known[sym] = true
	}
	out := make([]string, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, sym := range order {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if !known[sym] {
			return nil, fmt.Errorf("priority_order 引用了未知 symbol: %s", sym)
		}
		if seen[sym] {
			return nil, fmt.Errorf("priority_order 重复 symbol: %s", sym)
		}
		seen[sym] = true
		out = append(out, sym)
	}
	// 未列出的 symbol 排在末尾，保持原顺序。
	for _, sym := range symbols {
		if !seen[sym] {
			out = append(out, sym)
		}
	}
	return out, nil
}

func (s *Simulator) execute(run Run) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		_ = s.results.UpdateRunStatus(context.Background(), run.ID, RunStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if err := s.results.UpdateRunStatus(ctx, run.ID, RunStatusRunning, ""); err != nil {
		logger.Warnf("[sim] 任务 %s 状态更新失败: %v", run.ID, err)
	}

	trades, curve, err := s.runEngines(ctx, run)
	if err != nil {
		logger.Warnf("[sim] 任务 %s 失败: %v", run.ID, err)
		_ = s.results.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		s.notify(fmt.Sprintf("回测 %s 失败：%v", shortID(run.ID), err))
		return
	}

	stats := buildStats(run.Config, trades, curve)
	if err := s.results.InsertTrades(ctx, run.ID, trades); err != nil {
		logger.Warnf("[sim] 任务 %s 写入成交失败: %v", run.ID, err)
	}
	if err := s.results.InsertEquityCurve(ctx, run.ID, curve); err != nil {
		logger.Warnf("[sim] 任务 %s 写入资金曲线失败: %v", run.ID, err)
	}
	if err := s.results.UpdateRunSummary(ctx, run.ID, RunStatusDone, stats, "回测完成"); err != nil {
		logger.Warnf("[sim] 任务 %s 汇总写入失败: %v", run.ID, err)
	}
	logger.Infof("[sim] 任务 %s 完成：trades=%d final=%.2f dd=%.2f%%", run.ID, stats.Trades, stats.FinalEquity, stats.MaxDrawdownPct)
	s.notify(fmt.Sprintf("回测 %s 完成：%d 笔，收益 %.2f（%.2f%%），最大回撤 %.2f%%",
		shortID(run.ID), stats.Trades, stats.Profit, stats.ReturnPct, stats.MaxDrawdownPct))
}

func (s *Simulator) runEngines(ctx context.Context, run Run) ([]Trade, []float64, error) {
	cfg := run.Config
	stores := make(map[string]*SeriesStore, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		base, err := s.store.RangeCandles(ctx, sym, BaseTimeframeKey, cfg.StartTS, cfg.EndTS)
		if err != nil {
			return nil, nil, fmt.Errorf("加载 %s K 线失败: %w", sym, err)
		}
		if len(base) == 0 {
			return nil, nil, fmt.Errorf("%s 在区间内没有 K 线数据", sym)
		}
		stores[sym] = NewSeriesStore(sym, base)
	}

	var obs SignalObserver
	if s.signalLog != nil {
		obs = func(barIndex int, barTS int64, sig *TradeSignal, verdict string) {
			if err := s.signalLog.Record(ctx, run.ID, barTS, barIndex, sig, verdict, ""); err != nil {
				logger.Warnf("[sim] 任务 %s 信号审计写入失败: %v", run.ID, err)
			}
		}
	}

	if run.Mode == RunModeSymbol {
		name := cfg.Strategies[0]
		fn, err := s.provider.Signal(name)
		if err != nil {
			return nil, nil, err
		}
		return RunSymbolObserved(stores[cfg.Symbols[0]], name, fn, cfg.Params, obs)
	}

	selector, err := s.provider.Selector(cfg.Strategies)
	if err != nil {
		return nil, nil, err
	}
	cooldownSet := make(map[string]bool, len(cfg.CooldownSet))
	for _, name := range cfg.CooldownSet {
		cooldownSet[strings.ToLower(name)] = true
	}
	order := cfg.PriorityOrder
	if len(order) == 0 {
		order = cfg.Symbols
	}
	result, err := RunPortfolio(stores, selector, PortfolioConfig{
		Params:               cfg.Params,
		SymbolsOrder:         order,
		SLCooldownBars:       cfg.CooldownBars,
		SLCooldownStrategies: cooldownSet,
		Observer:             obs,
	})
	if err != nil {
		return nil, nil, err
	}
	return result.Trades, result.EquityCurve, nil
}

// buildStats 把引擎输出折算为报表指标。
func buildStats(cfg RunConfig, trades []Trade, curve []float64) RunStats {
	overall := Summarize("all", trades, curve)
	final := cfg.Params.StartingEquity
	peak, valley := final, final
	if len(curve) > 0 {
		final = curve[len(curve)-1]
		peak, valley = curve[0], curve[0]
		for _, x := range curve {
			if x > peak {
				peak = x
			}
			if x < valley {
				valley = x
			}
		}
	}
	profit := final - cfg.Params.StartingEquity
	returnPct := 0.0
	if cfg.Params.StartingEquity > 0 {
		returnPct = profit / cfg.Params.StartingEquity * 100.0
	}
	var holdMinutes float64
	for _, t := range trades {
		holdMinutes += float64(t.ExitTS-t.EntryTS) / 60000.0
	}
	if len(trades) > 0 {
		holdMinutes /= float64(len(trades))
	}

	byName := make(map[string][]Trade)
	for _, t := range trades {
		byName[t.Strategy] = append(byName[t.Strategy], t)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	perStrategy := make([]Summary, 0, len(names))
	for _, name := range names {
		perStrategy = append(perStrategy, Summarize(name, byName[name], nil))
	}

	return RunStats{
		StartingEquity:    cfg.Params.StartingEquity,
		FinalEquity:       final,
		Profit:            profit,
		ReturnPct:         returnPct,
		Trades:            overall.Trades,
		Wins:              overall.Wins,
		Losses:            overall.Losses,
		WinratePct:        overall.Winrate * 100.0,
		ProfitFactor:      overall.ProfitFactor,
		MaxDrawdownPct:    overall.MaxDrawdownPct,
		AvgHoldingMinutes: holdMinutes,
		EquityPeak:        peak,
		EquityValley:      valley,
		ByStrategy:        perStrategy,
		FinishedAt:        time.Now(),
	}
}

func (s *Simulator) notify(text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendText(text); err != nil {
		logger.Warnf("[sim] 推送失败: %v", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

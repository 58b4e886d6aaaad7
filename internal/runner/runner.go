// Package runner 批量执行单 symbol 回测：一个 (symbol, strategy) 组合一个任务，
// 并发推演后统一写报表。
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
	"github.com/Brokenbass90/by-bot-sub000/internal/logger"
	"github.com/Brokenbass90/by-bot-sub000/internal/report"
)

// Job 是一个 (symbol, strategy) 回测任务。
type Job struct {
	Symbol   string
	Strategy string
}

// Result 聚合一个任务的输出。
type Result struct {
	Job     Job
	Trades  []backtest.Trade
	Curve   []float64
	Summary backtest.Summary
	Err     error
}

type Config struct {
	Store     *backtest.Store
	Provider  backtest.StrategyProvider
	Params    backtest.BacktestParams
	StartTS   int64
	EndTS     int64
	ReportDir string
	Parallel  int
}

// Runner 并发跑批；每个任务独享一份资金曲线。
type Runner struct {
	cfg Config
}

func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("strategy provider 不能为空")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Runner{cfg: cfg}, nil
}

// Run 执行全部任务。单个任务失败不终止整批，错误记录在对应 Result 上。
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("没有任务")
	}
	results := make([]Result, len(jobs))

	// 各任务共享 symbol 的 K 线，仅加载一次。
	bases := make(map[string][]backtest.Candle)
	var basesMu sync.Mutex
	loadBase := func(symbol string) ([]backtest.Candle, error) {
		basesMu.Lock()
		defer basesMu.Unlock()
		if base, ok := bases[symbol]; ok {
			return base, nil
		}
		base, err := r.cfg.Store.RangeCandles(ctx, symbol, backtest.BaseTimeframeKey, r.cfg.StartTS, r.cfg.EndTS)
		if err != nil {
			return nil, err
		}
		bases[symbol] = base
		return base, nil
	}

	var eg errgroup.Group
	eg.SetLimit(r.cfg.Parallel)
	for i, job := range jobs {
		i, job := i, job
		eg.Go(func() error {
			results[i] = r.runOne(job, loadBase)
			return nil
		})
	}
	_ = eg.Wait()

	if r.cfg.ReportDir != "" {
		if err := r.writeReports(results); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Runner) runOne(job Job, loadBase func(string) ([]backtest.Candle, error)) Result {
	res := Result{Job: job}
	symbol := strings.ToUpper(strings.TrimSpace(job.Symbol))
	base, err := loadBase(symbol)
	if err != nil {
		res.Err = fmt.Errorf("加载 %s K 线失败: %w", symbol, err)
		return res
	}
	if len(base) == 0 {
		res.Err = fmt.Errorf("%s 在区间内没有 K 线数据", symbol)
		return res
	}
	fn, err := r.cfg.Provider.Signal(job.Strategy)
	if err != nil {
		res.Err = err
		return res
	}
	store := backtest.NewSeriesStore(symbol, base)
	trades, curve, err := backtest.RunSymbol(store, job.Strategy, fn, r.cfg.Params)
	if err != nil {
		res.Err = err
		return res
	}
	res.Trades = trades
	res.Curve = curve
	res.Summary = backtest.Summarize(job.Strategy, trades, curve)
	logger.Infof("[runner] %s/%s 完成：trades=%d net=%.2f dd=%.2f%%",
		symbol, job.Strategy, res.Summary.Trades, res.Summary.NetPnL, res.Summary.MaxDrawdownPct)
	return res
}

func (r *Runner) writeReports(results []Result) error {
	var allTrades []backtest.Trade
	var summaries []backtest.Summary
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		allTrades = append(allTrades, res.Trades...)
		summaries = append(summaries, res.Summary)

		dir := filepath.Join(r.cfg.ReportDir, fmt.Sprintf("%s_%s", res.Job.Symbol, res.Job.Strategy))
		if err := report.WriteAll(dir, res.Trades, []backtest.Summary{res.Summary}, res.Curve); err != nil {
			return err
		}
		title := fmt.Sprintf("%s %s", res.Job.Symbol, res.Job.Strategy)
		if err := report.WriteEquityChart(filepath.Join(dir, "equity.html"), title, res.Curve); err != nil {
			return err
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Strategy < summaries[j].Strategy })
	if err := report.WriteTradesCSV(filepath.Join(r.cfg.ReportDir, "trades.csv"), allTrades); err != nil {
		return err
	}
	return report.WriteSummaryCSV(filepath.Join(r.cfg.ReportDir, "summary.csv"), summaries)
}

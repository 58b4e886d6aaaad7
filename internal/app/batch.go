package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/Brokenbass90/by-bot-sub000/internal/logger"
	"github.com/Brokenbass90/by-bot-sub000/internal/runner"
)

// RunBatch 对 (策略 × 币种) 笛卡尔积逐一跑单币引擎并落盘报告。
func (a *App) RunBatch(ctx context.Context, symbols, strategies []string, startTS, endTS int64) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if len(strategies) == 0 {
		strategies = a.registry.Names()
	}
	if len(symbols) == 0 || len(strategies) == 0 {
		return fmt.Errorf("批跑需要至少一个币种和一个策略")
	}

	jobs := make([]runner.Job, 0, len(symbols)*len(strategies))
	for _, sym := range symbols {
		for _, st := range strategies {
			jobs = append(jobs, runner.Job{
				Symbol:   strings.ToUpper(strings.TrimSpace(sym)),
				Strategy: strings.TrimSpace(st),
			})
		}
	}

	r, err := runner.New(runner.Config{
		Store:     a.candles,
		Provider:  a.registry,
		Params:    a.cfg.Backtest.Params(),
		StartTS:   startTS,
		EndTS:     endTS,
		ReportDir: a.cfg.Report.Dir,
		Parallel:  a.cfg.Report.Parallel,
	})
	if err != nil {
		return err
	}

	results, err := r.Run(ctx, jobs)
	if err != nil {
		return err
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			logger.Warnf("批跑任务失败 %s/%s: %v", res.Job.Symbol, res.Job.Strategy, res.Err)
		}
	}
	logger.Infof("批跑完成：%d 任务，%d 失败，报告目录=%s", len(results), failed, a.cfg.Report.Dir)
	return nil
}

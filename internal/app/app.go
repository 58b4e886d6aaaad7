package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
	btcfg "github.com/Brokenbass90/by-bot-sub000/internal/config"
	"github.com/Brokenbass90/by-bot-sub000/internal/logger"
	"github.com/Brokenbass90/by-bot-sub000/internal/notifier"
	"github.com/Brokenbass90/by-bot-sub000/internal/siglog"
	"github.com/Brokenbass90/by-bot-sub000/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动数据与回测服务。
type App struct {
	cfg *btcfg.Config

	candles   *backtest.Store
	results   *backtest.ResultStore
	signalLog *siglog.Store
	registry  *strategy.Registry
	svc       *backtest.Service
	sim       *backtest.Simulator
	server    *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *btcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	candles, err := backtest.NewStore(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线库失败: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Data.ResultsRoot)
	if err != nil {
		candles.Close()
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}
	signalLog, err := siglog.NewStore(cfg.Data.SignalLogPath)
	if err != nil {
		results.Close()
		candles.Close()
		return nil, fmt.Errorf("初始化信号日志失败: %w", err)
	}
	registry, err := strategy.NewRegistry(cfg.Strategies.Path)
	if err != nil {
		signalLog.Close()
		results.Close()
		candles.Close()
		return nil, fmt.Errorf("加载策略配置失败: %w", err)
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store: candles,
		Sources: map[string]backtest.CandleSource{
			"binance": backtest.NewBinanceSource(cfg.Data.RESTBase),
		},
		DefaultExchange: cfg.Data.Exchange,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
		MaxBatch:        cfg.Data.MaxBatch,
		MaxConcurrent:   cfg.Data.MaxConcurrent,
	})
	if err != nil {
		signalLog.Close()
		results.Close()
		candles.Close()
		return nil, err
	}

	var notify notifier.TextNotifier
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		CandleStore:   candles,
		ResultStore:   results,
		Provider:      registry,
		Notifier:      notify,
		SignalLog:     signalLog,
		Defaults:      cfg.Backtest.Params(),
		CooldownBars:  cfg.Backtest.CooldownBars,
		CooldownSet:   cfg.Backtest.CooldownStrategies,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		signalLog.Close()
		results.Close()
		candles.Close()
		return nil, err
	}

	server, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:      cfg.App.HTTPAddr,
		Svc:       svc,
		Simulator: sim,
		Results:   results,
	})
	if err != nil {
		signalLog.Close()
		results.Close()
		candles.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		candles:   candles,
		results:   results,
		signalLog: signalLog,
		registry:  registry,
		svc:       svc,
		sim:       sim,
		server:    server,
	}, nil
}

// Run 启动 HTTP 服务并阻塞到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.printSummary()

	a.svc.SetContext(ctx)
	a.sim.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("backtest http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.signalLog != nil {
		_ = a.signalLog.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.candles != nil {
		_ = a.candles.Close()
	}
}

// Simulator 暴露底层模拟器（供离线批跑与测试使用）。
func (a *App) Simulator() *backtest.Simulator {
	if a == nil {
		return nil
	}
	return a.sim
}

func (a *App) printSummary() {
	names := a.registry.Names()
	if len(names) == 0 {
		logger.Warnf("策略清单为空：%s", a.cfg.Strategies.Path)
	}
	list := "-"
	if len(names) > 0 {
		list = strings.Join(names, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✓ 回测服务就绪（环境=%s，监听=%s）\n", a.cfg.App.Env, a.cfg.App.HTTPAddr)
	fmt.Fprintf(&b, "- 数据目录：%s（交易所=%s）\n", a.cfg.Data.Root, a.cfg.Data.Exchange)
	fmt.Fprintf(&b, "- 已启用策略：%s", list)
	logger.InfoBlock(b.String())
}

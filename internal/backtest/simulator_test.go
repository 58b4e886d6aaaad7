package backtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 以固定表实现 StrategyProvider。
type fakeProvider struct {
	funcs map[string]SignalFunc
	order []string
}

func (f *fakeProvider) Names() []string { return append([]string(nil), f.order...) }

func (f *fakeProvider) Signal(name string) (SignalFunc, error) {
	fn, ok := f.funcs[name]
	if !ok {
		return nil, assert.AnError
	}
	return fn, nil
}

func (f *fakeProvider) Selector(names []string) (SignalSelector, error) {
	fns := make([]SignalFunc, 0, len(names))
	for _, name := range names {
		fn, err := f.Signal(name)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return func(symbol string, store *SeriesStore, ts int64, lastPrice float64) *TradeSignal {
		bar, ok := store.Current()
		if !ok {
			return nil
		}
		for _, fn := range fns {
			if sig := fn(store, bar); sig != nil {
				return sig
			}
		}
		return nil
	}, nil
}

// memorySink 收集信号审计记录。
type memorySink struct {
	mu       sync.Mutex
	verdicts []string
}

func (m *memorySink) Record(ctx context.Context, runID string, barTS int64, barIndex int, sig *TradeSignal, verdict, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, verdict)
	return nil
}

func newTestSimulator(t *testing.T, provider StrategyProvider, sink SignalSink) (*Simulator, *Store, *ResultStore) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	results, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	sim, err := NewSimulator(SimulatorConfig{
		CandleStore: store,
		ResultStore: results,
		Provider:    provider,
		SignalLog:   sink,
		Defaults:    noCostParams(),
	})
	require.NoError(t, err)
	return sim, store, results
}

func TestStartRunValidation(t *testing.T) {
	provider := &fakeProvider{
		funcs: map[string]SignalFunc{"brk": fireOnce(0, TradeSignal{Side: SideLong, Entry: 100, SL: 90, TP: 110})},
		order: []string{"brk"},
	}
	sim, _, _ := newTestSimulator(t, provider, nil)

	base := RunRequest{
		Symbols: []string{"BTCUSDT"},
		StartTS: 300_000,
		EndTS:   3_000_000,
	}

	t.Run("empty symbols", func(t *testing.T) {
		req := base
		req.Symbols = nil
		_, err := sim.StartRun(req)
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		req := base
		req.Mode = "replay"
		_, err := sim.StartRun(req)
		assert.Error(t, err)
	})

	t.Run("symbol mode needs a single symbol", func(t *testing.T) {
		req := base
		req.Mode = RunModeSymbol
		req.Symbols = []string{"BTCUSDT", "ETHUSDT"}
		_, err := sim.StartRun(req)
		assert.Error(t, err)
	})

	t.Run("symbol mode needs a single strategy", func(t *testing.T) {
		req := base
		req.Mode = RunModeSymbol
		req.Strategies = []string{"brk", "bounce"}
		_, err := sim.StartRun(req)
		assert.Error(t, err)
	})

	t.Run("reversed window", func(t *testing.T) {
		req := base
		req.StartTS = 3_000_000
		req.EndTS = 3_000_000
		_, err := sim.StartRun(req)
		assert.Error(t, err)
	})
}

func TestSimulatorBuildParams(t *testing.T) {
	provider := &fakeProvider{order: []string{"brk"}, funcs: map[string]SignalFunc{"brk": nil}}
	sim, _, _ := newTestSimulator(t, provider, nil)

	p := sim.buildParams(RunRequest{RiskPct: 0.05, MaxPositions: 3})
	assert.InDelta(t, 0.05, p.RiskPct, 1e-12)
	assert.Equal(t, 3, p.MaxPositions)
	// 其余字段保持默认
	assert.InDelta(t, 1000.0, p.StartingEquity, 1e-12)
	assert.InDelta(t, 0.40, p.MinFillFrac, 1e-12)
}

func TestSimulatorEndToEndSymbolRun(t *testing.T) {
	step := int64(300_000)
	sig := TradeSignal{Side: SideLong, Entry: 100, SL: 90, TP: 101}
	provider := &fakeProvider{
		funcs: map[string]SignalFunc{"brk": fireOnce(0, sig)},
		order: []string{"brk"},
	}
	sink := &memorySink{}
	sim, store, results := newTestSimulator(t, provider, sink)

	bars := flatBars(20, 100)
	for i := range bars {
		bars[i].OpenTime = step + int64(i)*step
		bars[i].CloseTime = bars[i].OpenTime + step - 1
	}
	bars[1].High = 102 // TP 在第二根 bar 触发
	_, err := store.InsertCandles(context.Background(), "BTCUSDT", "5m", bars)
	require.NoError(t, err)

	run, err := sim.StartRun(RunRequest{
		Mode:       RunModeSymbol,
		Symbols:    []string{"btcusdt"},
		Strategies: []string{"brk"},
		StartTS:    step,
		EndTS:      step + int64(len(bars))*step,
	})
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.Equal(t, []string{"BTCUSDT"}, run.Config.Symbols)

	require.Eventually(t, func() bool {
		got, err := results.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == RunStatusDone
	}, 10*time.Second, 50*time.Millisecond)

	got, err := results.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Trades)
	assert.InDelta(t, 1001.0, got.FinalEquity, 1e-6)

	trades, err := results.ListTrades(context.Background(), run.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, OutcomeTP, trades[0].Outcome)

	curve, err := results.ListEquityCurve(context.Background(), run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, curve)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Contains(t, sink.verdicts, VerdictAccepted)
}

func TestStartRunPriorityOrder(t *testing.T) {
	step := int64(300_000)
	always := func(store *SeriesStore, bar Candle) *TradeSignal {
		return &TradeSignal{Side: SideLong, Entry: bar.Close, SL: bar.Close - 10, TP: bar.Close + 1000}
	}
	provider := &fakeProvider{
		funcs: map[string]SignalFunc{"brk": always},
		order: []string{"brk"},
	}
	sim, store, results := newTestSimulator(t, provider, nil)

	bars := flatBars(10, 100)
	for i := range bars {
		bars[i].OpenTime = step + int64(i)*step
		bars[i].CloseTime = bars[i].OpenTime + step - 1
	}
	for _, sym := range []string{"AAAUSDT", "BBBUSDT"} {
		_, err := store.InsertCandles(context.Background(), sym, "5m", bars)
		require.NoError(t, err)
	}

	req := RunRequest{
		Mode:          RunModePortfolio,
		Symbols:       []string{"AAAUSDT", "BBBUSDT"},
		PriorityOrder: []string{"bbbusdt"},
		Notes:         "先试 BBB",
		StartTS:       step,
		EndTS:         step + int64(len(bars))*step,
	}

	t.Run("unknown symbol rejected", func(t *testing.T) {
		bad := req
		bad.PriorityOrder = []string{"CCCUSDT"}
		_, err := sim.StartRun(bad)
		assert.Error(t, err)
	})

	t.Run("duplicate symbol rejected", func(t *testing.T) {
		bad := req
		bad.PriorityOrder = []string{"BBBUSDT", "BBBUSDT"}
		_, err := sim.StartRun(bad)
		assert.Error(t, err)
	})

	// max_positions=1：优先级靠前的 symbol 占住唯一名额
	run, err := sim.StartRun(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBBUSDT", "AAAUSDT"}, run.Config.PriorityOrder)
	assert.Equal(t, "先试 BBB", run.Config.Notes)

	require.Eventually(t, func() bool {
		got, err := results.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == RunStatusDone
	}, 10*time.Second, 50*time.Millisecond)

	trades, err := results.ListTrades(context.Background(), run.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, trades)
	for _, tr := range trades {
		assert.Equal(t, "BBBUSDT", tr.Symbol)
	}
}

func TestBuildStats(t *testing.T) {
	cfg := RunConfig{Params: BacktestParams{StartingEquity: 1000}}
	trades := []Trade{
		{Strategy: "a", PnL: 50, EntryTS: 0, ExitTS: 600_000},
		{Strategy: "b", PnL: -20, EntryTS: 0, ExitTS: 1_200_000},
	}
	curve := []float64{1000, 1050, 1030}

	stats := buildStats(cfg, trades, curve)
	assert.InDelta(t, 1030.0, stats.FinalEquity, 1e-12)
	assert.InDelta(t, 30.0, stats.Profit, 1e-12)
	assert.InDelta(t, 3.0, stats.ReturnPct, 1e-12)
	assert.Equal(t, 2, stats.Trades)
	assert.InDelta(t, 50.0, stats.WinratePct, 1e-12)
	assert.InDelta(t, 15.0, stats.AvgHoldingMinutes, 1e-12) // (10+20)/2 分钟
	assert.InDelta(t, 1050.0, stats.EquityPeak, 1e-12)
	assert.InDelta(t, 1000.0, stats.EquityValley, 1e-12)
	require.Len(t, stats.ByStrategy, 2)
	assert.Equal(t, "a", stats.ByStrategy[0].Strategy)
}

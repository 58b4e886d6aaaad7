package backtest

import (
	"fmt"
	"sort"
	"strings"
)

// PortfolioConfig 在共享资金参数之外描述组合级行为。
type PortfolioConfig struct {
	Params BacktestParams
	// SymbolsOrder 是入场优先级；为空时按 symbol 字典序（保证确定性）。
	SymbolsOrder []string
	// SLCooldownBars：命中止损后阻止该 symbol 再入场的 bar 数（0 关闭）。
	SLCooldownBars int
	// SLCooldownStrategies：参与冷却的策略名集合（小写）。
	SLCooldownStrategies map[string]bool
	// Observer 可选；回调每个信号的去向，供审计落库。
	Observer SignalObserver
}

// PortfolioResult 是组合回测的输出。
type PortfolioResult struct {
	Trades      []Trade   `json:"trades"`
	EquityCurve []float64 `json:"equity_curve"`
}

// RunPortfolio 在共享一份 equity 与全局持仓上限的前提下，跨多 symbol
// 回放同一时间轴：每根 bar 先结清所有持仓的离场，再按优先级顺序考虑入场，
// 直到达到 max_positions。每 symbol 至多一个持仓。离场状态机与
// RunSymbol 共用同一个 manageBar，两个引擎对同一输入逐字节一致。
func RunPortfolio(stores map[string]*SeriesStore, selector SignalSelector, cfg PortfolioConfig) (PortfolioResult, error) {
	params := cfg.Params
	if err := params.Validate(); err != nil {
		return PortfolioResult{}, err
	}
	if len(stores) == 0 {
		return PortfolioResult{EquityCurve: []float64{params.StartingEquity}}, nil
	}

	syms := append([]string(nil), cfg.SymbolsOrder...)
	if len(syms) == 0 {
		for s := range stores {
			syms = append(syms, s)
		}
		sort.Strings(syms)
	}
	minLen := -1
	for _, s := range syms {
		st, ok := stores[s]
		if !ok {
			return PortfolioResult{}, fmt.Errorf("symbol %s 缺少序列数据", s)
		}
		if minLen < 0 || st.Len() < minLen {
			minLen = st.Len()
		}
	}
	if minLen <= 0 {
		return PortfolioResult{EquityCurve: []float64{params.StartingEquity}}, nil
	}

	equity := params.StartingEquity
	curve := make([]float64, 0, minLen+2)
	curve = append(curve, equity)
	var trades []Trade

	posBySym := make(map[string]*Position, len(syms))
	cooldownUntil := make(map[string]int)
	atrCaches := make(map[string]*ATRCache, len(syms))
	for _, s := range syms {
		atrCaches[s] = NewATRCache(stores[s].Base())
	}

	for i := 0; i < minLen; i++ {
		for _, s := range syms {
			stores[s].SetIndex(i)
		}

		// 1) 先结清所有持仓的离场；固定 symbol 顺序保证逐次运行可复现。
		for _, sym := range syms {
			p := posBySym[sym]
			if p == nil || i <= p.EntryIndex {
				continue
			}
			bar := stores[sym].Base()[i]
			tr := manageBar(p, bar, i, atrCaches[sym].Series, params, &equity)
			if tr == nil {
				continue
			}
			trades = append(trades, *tr)
			delete(posBySym, sym)
			if cfg.SLCooldownBars > 0 && tr.Outcome == OutcomeSL &&
				cfg.SLCooldownStrategies[strings.ToLower(tr.Strategy)] {
				cooldownUntil[sym] = i + cfg.SLCooldownBars
			}
		}

		// 2) 再按优先级入场，直到全局上限；同 bar 释放的额度允许被占用，
		//    但计数永远反映离场之后的状态，不会越过上限。
		for _, sym := range syms {
			if len(posBySym) >= params.MaxPositions {
				break
			}
			if _, open := posBySym[sym]; open {
				continue
			}
			store := stores[sym]
			bar := store.Base()[i]
			if until, ok := cooldownUntil[sym]; ok && i <= until {
				if cfg.Observer != nil {
					cfg.Observer(i, bar.CloseTime, nil, VerdictCooldown)
				}
				continue
			}
			sig := safeSelect(selector, sym, store, bar.CloseTime, bar.Close)
			if sig == nil {
				continue
			}
			if sig.Symbol == "" {
				sig.Symbol = sym
			}
			if !sig.Validate() {
				if cfg.Observer != nil {
					cfg.Observer(i, bar.CloseTime, sig, VerdictInvalid)
				}
				continue
			}
			qty := calcQty(equity, sig, params.RiskPct, params.effectiveCap(equity), params.minFillFrac())
			if qty <= 0 {
				if cfg.Observer != nil {
					cfg.Observer(i, bar.CloseTime, sig, VerdictZeroQty)
				}
				continue
			}
			posBySym[sym] = openPosition(sig, qty, bar, i, params, &equity)
			if cfg.Observer != nil {
				cfg.Observer(i, bar.CloseTime, sig, VerdictAccepted)
			}
		}

		curve = append(curve, equity)
	}

	// 数据耗尽：按各自最后一根 bar 的收盘价强制平掉剩余持仓。
	for _, sym := range syms {
		p := posBySym[sym]
		if p == nil {
			continue
		}
		last := stores[sym].Base()[minLen-1]
		tr := forceCloseEOP(p, last, params, &equity)
		trades = append(trades, *tr)
		delete(posBySym, sym)
	}
	if curve[len(curve)-1] != equity {
		curve = append(curve, equity)
	}

	return PortfolioResult{Trades: trades, EquityCurve: curve}, nil
}

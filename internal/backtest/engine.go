package backtest

import (
	"fmt"
	"math"
)

// atrFunc 返回给定 period 的 ATR 序列（与基础序列下标对齐）。
type atrFunc func(period int) []float64

// Validate 在 run 开始前暴露无意义的参数组合（配置错误，直接失败）。
func (p BacktestParams) Validate() error {
	if p.MaxPositions <= 0 {
		return fmt.Errorf("max_positions 需 > 0（当前 %d）", p.MaxPositions)
	}
	if !(p.RiskPct > 0) {
		return fmt.Errorf("risk_pct 需 > 0（当前 %v）", p.RiskPct)
	}
	if !(p.StartingEquity > 0) {
		return fmt.Errorf("starting_equity 需 > 0（当前 %v）", p.StartingEquity)
	}
	return nil
}

func stopTouched(p *Position, bar Candle) bool {
	if p.Side == SideLong {
		return bar.Low <= p.SL
	}
	return bar.High >= p.SL
}

// tpHitsInBar 返回本 bar 触及且仍有剩余额度的 TP 档位下标（按 OHLC 极值判定）。
func tpHitsInBar(p *Position, bar Candle) []int {
	var hits []int
	for k, tp := range p.TPs {
		if k >= len(p.TPQtyRemaining) || p.TPQtyRemaining[k] <= 0 {
			continue
		}
		if p.Side == SideLong {
			if bar.High >= tp {
				hits = append(hits, k)
			}
		} else {
			if bar.Low <= tp {
				hits = append(hits, k)
			}
		}
	}
	return hits
}

// exitFill 执行一次（部分）平仓：对原始价施加滑点、收手续费、
// 更新持仓记账并把净额记入共享 equity。
func exitFill(p *Position, rawPx, qty float64, params BacktestParams, equity *float64, ts int64) {
	exitPx := applySlippage(rawPx, p.Side, false, params.SlippageBps)
	fee := feeOf(exitPx*qty, params.FeeBps)
	var pnl float64
	if p.Side == SideLong {
		pnl = (exitPx - p.EntryPrice) * qty
	} else {
		pnl = (p.EntryPrice - exitPx) * qty
	}
	*equity += pnl - fee
	p.RealizedPnL += pnl - fee
	p.ExitFees += fee
	p.ExitNotionalSum += exitPx * qty
	p.ExitTSLast = ts
	p.RemainingQty -= qty
	if p.RemainingQty < -1e-9 {
		// 记账越界只可能是引擎自身的逻辑错误，立即失败好过静默出错。
		panic(fmt.Sprintf("position %s %s: remaining qty %.12f < 0", p.Symbol, p.Side, p.RemainingQty))
	}
	if p.RemainingQty < 0 {
		p.RemainingQty = 0
	}
}

func slTag(p *Position) ExitTag {
	if p.trailed() {
		return ExitTag{Kind: TagTrailSL}
	}
	return ExitTag{Kind: TagSL}
}

// finalize 在 RemainingQty 归零时生成一条不可变的 Trade 记录。
func finalize(p *Position, exitTS int64) *Trade {
	netPnL := p.RealizedPnL - p.EntryFee
	fees := p.EntryFee + p.ExitFees
	exitPrice := p.EntryPrice
	if p.ExitNotionalSum > 0 && p.Qty > 0 {
		exitPrice = p.ExitNotionalSum / p.Qty
	}
	pct := 0.0
	if p.EquityAtEntry != 0 {
		pct = netPnL / p.EquityAtEntry
	}
	return &Trade{
		Strategy:     p.Strategy,
		Symbol:       p.Symbol,
		Side:         p.Side,
		EntryTS:      p.EntryTS,
		ExitTS:       exitTS,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    exitPrice,
		Qty:          p.Qty,
		PnL:          netPnL,
		PnLPctEquity: pct,
		Fees:         fees,
		Outcome:      outcomeFromTags(p.Tags),
		Reason:       reasonString(p.OpenReason, p.Tags),
	}
}

// manageBar 对一个持仓执行单 bar 的离场状态机，两个引擎共用同一实现：
//
//  1. 用 bar 高低点更新入场以来的极值；
//  2. 判定止损触发与各 TP 档触及（只看 OHLC 极值，不模拟盘中路径）；
//  3. 同 bar 同时触发止损与 TP 时保守假设止损先成交，全部剩余按 SL 出场；
//  4. 否则按档位升序执行部分 TP；打完即关仓；
//  5. 仍持仓且止损触发则全部出场（SL 或 TRAIL_SL）；
//  6. 时间止损到期按收盘价出场；
//  7. 配置了 ATR 追踪时提出新止损，只朝有利方向棘轮，下一根 bar 生效。
//
// 只能在入场 bar 之后的 bar 调用。返回非 nil 表示持仓已关闭。
func manageBar(p *Position, bar Candle, i int, atr atrFunc, params BacktestParams, equity *float64) *Trade {
	if bar.High > p.HHSinceEntry {
		p.HHSinceEntry = bar.High
	}
	if bar.Low < p.LLSinceEntry {
		p.LLSinceEntry = bar.Low
	}

	stopHit := stopTouched(p, bar)
	tpHits := tpHitsInBar(p, bar)

	if stopHit && len(tpHits) > 0 {
		exitFill(p, p.SL, p.RemainingQty, params, equity, bar.CloseTime)
		p.Tags = append(p.Tags, slTag(p))
		return finalize(p, bar.CloseTime)
	}

	for _, k := range tpHits {
		if p.RemainingQty <= 1e-12 {
			break
		}
		want := p.TPQtyRemaining[k]
		if want <= 1e-12 {
			continue
		}
		qty := math.Min(p.RemainingQty, want)
		exitFill(p, p.TPs[k], qty, params, equity, bar.CloseTime)
		left := want - qty
		if left < 0 {
			left = 0
		}
		p.TPQtyRemaining[k] = left
		p.Tags = append(p.Tags, ExitTag{Kind: TagTP, Level: k + 1})
	}
	if len(tpHits) > 0 && p.RemainingQty <= 1e-12 {
		p.RemainingQty = 0
		return finalize(p, bar.CloseTime)
	}

	if stopHit {
		exitFill(p, p.SL, p.RemainingQty, params, equity, bar.CloseTime)
		p.Tags = append(p.Tags, slTag(p))
		return finalize(p, bar.CloseTime)
	}

	if p.TimeStopBars > 0 && i-p.EntryIndex >= p.TimeStopBars {
		exitFill(p, bar.Close, p.RemainingQty, params, equity, bar.CloseTime)
		p.Tags = append(p.Tags, ExitTag{Kind: TagTime})
		return finalize(p, bar.CloseTime)
	}

	if p.TrailingATRMult > 0 {
		ser := atr(p.TrailingATRPeriod)
		if i < len(ser) {
			a := ser[i]
			if a > 0 && !math.IsInf(a, 0) { // NaN 自然通不过 a > 0
				if p.Side == SideLong {
					if ns := p.HHSinceEntry - p.TrailingATRMult*a; ns > p.SL {
						p.SL = ns
					}
				} else {
					if ns := p.LLSinceEntry + p.TrailingATRMult*a; ns < p.SL {
						p.SL = ns
					}
				}
			}
		}
	}
	return nil
}

// forceCloseEOP 在数据耗尽时以最后一根 bar 的收盘价强制平仓。
func forceCloseEOP(p *Position, last Candle, params BacktestParams, equity *float64) *Trade {
	exitFill(p, last.Close, p.RemainingQty, params, equity, last.CloseTime)
	p.Tags = append(p.Tags, ExitTag{Kind: TagEOP})
	return finalize(p, last.CloseTime)
}

// RunSymbol 以 5m 序列驱动单 symbol 回测：每根 bar 先管理持仓离场，
// 再在空仓时询问策略是否入场；返回成交记录与资金曲线（首样本为初始资金，
// 此后每根 bar 追加一个样本）。同一输入重复运行结果逐字节一致。
func RunSymbol(store *SeriesStore, strategyName string, fn SignalFunc, params BacktestParams) ([]Trade, []float64, error) {
	return RunSymbolObserved(store, strategyName, fn, params, nil)
}

// RunSymbolObserved 同 RunSymbol，另把每个信号的去向回调给 obs。
func RunSymbolObserved(store *SeriesStore, strategyName string, fn SignalFunc, params BacktestParams, obs SignalObserver) ([]Trade, []float64, error) {
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	base := store.Base()
	equity := params.StartingEquity
	curve := make([]float64, 0, len(base)+2)
	curve = append(curve, equity)
	var trades []Trade

	atrCache := NewATRCache(base)
	var pos *Position

	for i, bar := range base {
		store.SetIndex(i)

		if pos != nil && i > pos.EntryIndex {
			if tr := manageBar(pos, bar, i, atrCache.Series, params, &equity); tr != nil {
				trades = append(trades, *tr)
				pos = nil
			}
		}

		if pos == nil {
			if sig := safeSignal(fn, store, bar); sig != nil {
				if sig.Strategy == "" {
					sig.Strategy = strategyName
				}
				if sig.Symbol == "" {
					sig.Symbol = store.Symbol()
				}
				if !sig.Validate() {
					if obs != nil {
						obs(i, bar.CloseTime, sig, VerdictInvalid)
					}
				} else {
					qty := calcQty(equity, sig, params.RiskPct, params.effectiveCap(equity), params.minFillFrac())
					if qty > 0 {
						pos = openPosition(sig, qty, bar, i, params, &equity)
						if obs != nil {
							obs(i, bar.CloseTime, sig, VerdictAccepted)
						}
					} else if obs != nil {
						obs(i, bar.CloseTime, sig, VerdictZeroQty)
					}
				}
			}
		}

		curve = append(curve, equity)
	}

	if pos != nil && pos.RemainingQty > 0 && len(base) > 0 {
		tr := forceCloseEOP(pos, base[len(base)-1], params, &equity)
		trades = append(trades, *tr)
	}
	if curve[len(curve)-1] != equity {
		curve = append(curve, equity)
	}
	return trades, curve, nil
}

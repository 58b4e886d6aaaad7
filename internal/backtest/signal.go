package backtest

import (
	"github.com/Brokenbass90/by-bot-sub000/internal/logger"
)

// Side 表示方向。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// TradeSignal 是策略边界的唯一产物：引擎不关心策略内部，只消费该结构。
// 可选扩展（tps 梯度、trailing、时间止损）用零值表示“未启用”。
type TradeSignal struct {
	Strategy string
	Symbol   string
	Side     Side
	Entry    float64
	SL       float64
	// TP 为单目标价（兼容字段）；配置了 TPs 时作为最后一档。
	TP float64

	// TPs 为可选多目标梯度，按离场顺序排列。
	// TPFracs 为每档平仓比例（缺省等分；总和自动归一到 <=1）。
	TPs     []float64
	TPFracs []float64

	// TrailingATRMult <= 0 表示不启用 ATR 追踪止损。
	TrailingATRMult   float64
	TrailingATRPeriod int

	// TimeStopBars 为 5m bar 计数的时间止损（0 关闭）。
	TimeStopBars int

	Reason string
}

// Validate 校验信号是否满足引擎的边界契约（§ 参数关系、梯度单调性、比例约束）。
// 校验失败只代表该信号被丢弃，不是错误：引擎是策略不精确时的安全网。
func (s *TradeSignal) Validate() bool {
	if s == nil {
		return false
	}
	if s.Side != SideLong && s.Side != SideShort {
		return false
	}
	if s.TP <= 0 && len(s.TPs) > 0 {
		s.TP = s.TPs[len(s.TPs)-1]
	}
	if !(s.Entry > 0 && s.SL > 0 && s.TP > 0) {
		return false
	}

	if len(s.TPs) > 0 {
		for _, tp := range s.TPs {
			if !(tp > 0) {
				return false
			}
		}
		if s.Side == SideLong {
			if !(s.SL < s.Entry) {
				return false
			}
			for i, tp := range s.TPs {
				if tp <= s.Entry {
					return false
				}
				if i > 0 && s.TPs[i-1] > tp {
					return false
				}
			}
		} else {
			if !(s.SL > s.Entry) {
				return false
			}
			for i, tp := range s.TPs {
				if tp >= s.Entry {
					return false
				}
				if i > 0 && s.TPs[i-1] < tp {
					return false
				}
			}
		}
		if len(s.TPFracs) > 0 {
			if len(s.TPFracs) != len(s.TPs) {
				return false
			}
			sum := 0.0
			for _, f := range s.TPFracs {
				if !(f > 0) {
					return false
				}
				sum += f
			}
			if sum > 1.000001 {
				return false
			}
		}
	}

	// 兼容单目标：止损与目标必须夹住入场价。
	if s.Side == SideLong {
		return s.SL < s.Entry && s.Entry < s.TP
	}
	return s.TP < s.Entry && s.Entry < s.SL
}

// 信号去向，随 SignalObserver 回调给审计方。
const (
	VerdictAccepted = "accepted"
	VerdictInvalid  = "invalid"
	VerdictZeroQty  = "zero_qty"
	VerdictCooldown = "cooldown"
)

// SignalObserver 在引擎对一个信号做出去留决定时回调；sig 可能为 nil
// （冷却拦截时信号未被评估）。回调只用于审计，不得影响引擎状态。
type SignalObserver func(barIndex int, barTS int64, sig *TradeSignal, verdict string)

// SignalFunc 是单 symbol 引擎的策略边界：给定行情视图与当前 bar，
// 返回至多一个信号或 nil。
type SignalFunc func(store *SeriesStore, bar Candle) *TradeSignal

// SignalSelector 是组合引擎的策略边界：多策略竞争时由上层决定优先级，
// 每个 (symbol, bar) 至多返回一个信号。
type SignalSelector func(symbol string, store *SeriesStore, ts int64, lastPrice float64) *TradeSignal

// safeSignal 调用策略并吸收 panic：单个策略的故障只等价于“本 bar 无信号”，
// 不允许中断整个回测。
func safeSignal(fn SignalFunc, store *SeriesStore, bar Candle) (sig *TradeSignal) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[backtest] 策略 panic，被视为无信号: %v", r)
			sig = nil
		}
	}()
	return fn(store, bar)
}

func safeSelect(sel SignalSelector, symbol string, store *SeriesStore, ts int64, lastPrice float64) (sig *TradeSignal) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[backtest] 策略 panic（%s），被视为无信号: %v", symbol, r)
			sig = nil
		}
	}()
	return sel(symbol, store, ts, lastPrice)
}

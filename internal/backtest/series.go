package backtest

import (
	"fmt"

	"github.com/Brokenbass90/by-bot-sub000/internal/market"
)

// Candle 是回测包内的 K 线别名，方便与 market 包互通。
type Candle = market.Candle

// SeriesStore 持有单个 symbol 的 5m 基础序列和按固定数量聚合出的高周期序列，
// 并维护一个按 bar 推进的游标。策略只能看到游标之前（含当前）的 K 线，
// 杜绝任何向未来看的可能。
type SeriesStore struct {
	symbol string
	frames map[string][]market.Candle
	idx    int
}

// NewSeriesStore 由 5m 基础序列构建各周期聚合。游标初始为 -1（未推进）。
func NewSeriesStore(symbol string, base []market.Candle) *SeriesStore {
	frames := make(map[string][]market.Candle, len(supportedTimeframes))
	for key, tf := range supportedTimeframes {
		frames[key] = market.Aggregate(base, tf.GroupSize())
	}
	return &SeriesStore{symbol: symbol, frames: frames, idx: -1}
}

// Symbol 返回该序列所属 symbol。
func (s *SeriesStore) Symbol() string { return s.symbol }

// Base 返回完整的 5m 基础序列（只读约定）。
func (s *SeriesStore) Base() []market.Candle { return s.frames[BaseTimeframeKey] }

// Len 返回基础序列长度。
func (s *SeriesStore) Len() int { return len(s.frames[BaseTimeframeKey]) }

// SetIndex 将游标推进到基础序列下标 i。
func (s *SeriesStore) SetIndex(i int) { s.idx = i }

// Index 返回当前游标。
func (s *SeriesStore) Index() int { return s.idx }

// Current 返回游标所指的基础周期 K 线。
func (s *SeriesStore) Current() (market.Candle, bool) {
	base := s.Base()
	if s.idx < 0 || s.idx >= len(base) {
		return market.Candle{}, false
	}
	return base[s.idx], true
}

// Slice 返回指定周期截至当前游标的最近 limit 根 K 线（旧在前）。
// 高周期下标由基础游标整除聚合倍数得到，只包含已完整收盘的桶。
// 不支持的周期返回错误（属于配置错误，应在 run 开始前暴露）。
func (s *SeriesStore) Slice(timeframe string, limit int) ([]market.Candle, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	arr := s.frames[tf.Key]
	if s.idx < 0 {
		return nil, nil
	}
	group := tf.GroupSize()
	if group < 1 {
		group = 1
	}
	// 桶要到第 group 根基础 bar 收盘才算完整，不足整桶的不暴露。
	end := (s.idx + 1) / group
	if end > len(arr) {
		end = len(arr)
	}
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	return arr[start:end], nil
}

// MustSlice 与 Slice 相同，但周期非法时 panic；仅供已在启动时校验过周期的策略使用。
func (s *SeriesStore) MustSlice(timeframe string, limit int) []market.Candle {
	out, err := s.Slice(timeframe, limit)
	if err != nil {
		panic(fmt.Sprintf("series store: %v", err))
	}
	return out
}

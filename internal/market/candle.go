package market

// Candle 表示一根固定周期的 K 线（毫秒时间戳，OHLCV）。
// 由数据层生成后不再修改，回测引擎只读。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Aggregate 将基础周期 K 线按固定数量聚合为更高周期（例如 12x5m => 1h）。
// 假设输入连续无缺口；不足一组的尾部丢弃。
func Aggregate(base []Candle, groupN int) []Candle {
	if groupN <= 1 {
		out := make([]Candle, len(base))
		copy(out, base)
		return out
	}
	out := make([]Candle, 0, len(base)/groupN)
	for i := 0; i+groupN <= len(base); i += groupN {
		chunk := base[i : i+groupN]
		agg := Candle{
			OpenTime:  chunk[0].OpenTime,
			CloseTime: chunk[groupN-1].CloseTime,
			Open:      chunk[0].Open,
			High:      chunk[0].High,
			Low:       chunk[0].Low,
			Close:     chunk[groupN-1].Close,
		}
		for _, c := range chunk {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Volume += c.Volume
			agg.Trades += c.Trades
		}
		out = append(out, agg)
	}
	return out
}

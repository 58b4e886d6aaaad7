package backtest

// calcQty 按止损距离做风险定仓：
//  1. risk_usd = equity * risk_pct
//  2. qty = risk_usd / |entry-sl|
//  3. 受名义上限裁剪后，若成交比例低于 minFillFrac 则整单放弃。
//
// 返回 0 表示不开仓。所有非法输入（零距离、反向止损、NaN 传染）都
// 落在“返回 0”而不是报错：定仓失败等价于无信号。
func calcQty(equity float64, sig *TradeSignal, riskPct, capNotional, minFillFrac float64) float64 {
	riskUSD := equity * riskPct
	if !(riskUSD > 0) {
		return 0
	}

	var stopDist float64
	if sig.Side == SideLong {
		stopDist = sig.Entry - sig.SL
	} else {
		stopDist = sig.SL - sig.Entry
	}
	if !(stopDist > 0) {
		return 0
	}

	qtyRaw := riskUSD / stopDist
	qty := qtyRaw
	if capNotional > 0 {
		entry := sig.Entry
		if entry < 1e-12 {
			entry = 1e-12
		}
		maxQty := capNotional / entry
		if maxQty < qty {
			qty = maxQty
		}
	}

	if qtyRaw > 0 {
		if fill := qty / qtyRaw; fill < minFillFrac {
			return 0
		}
	}
	if qty < 0 {
		return 0
	}
	return qty
}

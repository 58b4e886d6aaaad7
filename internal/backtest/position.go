package backtest

import "strings"

// TagKind 标识一次（部分）平仓的类型。reason 字符串与 outcome 都由
// 结构化 tag 推导，不再对自由文本做关键字匹配。
type TagKind int

const (
	TagSL TagKind = iota
	TagTrailSL
	TagTP
	TagTime
	TagEOP
)

// ExitTag 是平仓日志的一项；TP 带档位序号（从 1 开始）。
type ExitTag struct {
	Kind  TagKind
	Level int
}

func (t ExitTag) String() string {
	switch t.Kind {
	case TagSL:
		return "SL"
	case TagTrailSL:
		return "TRAIL_SL"
	case TagTP:
		return "TP" + itoa(t.Level)
	case TagTime:
		return "TIME"
	case TagEOP:
		return "EOP"
	}
	return ""
}

func itoa(n int) string {
	if n <= 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Outcome 是交易的归类结果，优先级 SL > TP > Time > Manual。
type Outcome string

const (
	OutcomeTP     Outcome = "tp"
	OutcomeSL     Outcome = "sl"
	OutcomeTime   Outcome = "time"
	OutcomeManual Outcome = "manual"
)

func outcomeFromTags(tags []ExitTag) Outcome {
	hasTP, hasTime := false, false
	for _, t := range tags {
		switch t.Kind {
		case TagSL, TagTrailSL:
			return OutcomeSL
		case TagTP:
			hasTP = true
		case TagTime, TagEOP:
			hasTime = true
		}
	}
	if hasTP {
		return OutcomeTP
	}
	if hasTime {
		return OutcomeTime
	}
	return OutcomeManual
}

// reasonString 拼接人类可读的平仓原因；openReason（信号备注）放在最前。
func reasonString(openReason string, tags []ExitTag) string {
	parts := make([]string, 0, len(tags)+1)
	if r := strings.TrimSpace(openReason); r != "" {
		parts = append(parts, r)
	}
	for _, t := range tags {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, "+")
}

// Position 是引擎独占的持仓状态，生命周期 Open -> {PartiallyClosed}* -> Closed。
// RemainingQty 减到 0 即关闭；每个字段的含义见数据模型说明。
type Position struct {
	Strategy string
	Symbol   string
	Side     Side

	EntryPrice float64 // 含滑点的成交价
	SL         float64 // 动态止损（可被追踪抬升/压低）
	InitialSL  float64

	Qty          float64
	RemainingQty float64

	EntryTS       int64
	EntryIndex    int
	EquityAtEntry float64

	TPs            []float64
	TPQtyRemaining []float64

	TrailingATRMult   float64
	TrailingATRPeriod int
	HHSinceEntry      float64
	LLSinceEntry      float64

	TimeStopBars int

	// 累计记账。
	EntryFee        float64
	ExitFees        float64
	RealizedPnL     float64
	ExitNotionalSum float64
	ExitTSLast      int64

	OpenReason string
	Tags       []ExitTag
}

// trailed 返回止损是否已经离开初始位置（决定 SL/TRAIL_SL 标签）。
func (p *Position) trailed() bool {
	d := p.SL - p.InitialSL
	if d < 0 {
		d = -d
	}
	return p.TrailingATRMult > 0 && d > 1e-9
}

// openPosition 按已校验的信号和已定的数量构建持仓，并从 equity 扣除入场手续费。
// 返回的持仓 HH/LL 以含滑点的入场价初始化。
func openPosition(sig *TradeSignal, qty float64, bar Candle, index int, params BacktestParams, equity *float64) *Position {
	entryPx := applySlippage(sig.Entry, sig.Side, true, params.SlippageBps)

	var tps []float64
	var tpQty []float64
	if len(sig.TPs) > 0 {
		tps = append([]float64(nil), sig.TPs...)
		fr := append([]float64(nil), sig.TPFracs...)
		if len(fr) == 0 {
			fr = make([]float64, len(tps))
			for i := range fr {
				fr[i] = 1.0 / float64(len(tps))
			}
		}
		sum := 0.0
		for _, f := range fr {
			sum += f
		}
		if sum > 1.000001 {
			for i := range fr {
				fr[i] /= sum
			}
		}
		tpQty = make([]float64, len(tps))
		for i, f := range fr {
			q := qty * f
			if q < 0 {
				q = 0
			}
			tpQty[i] = q
		}
	} else {
		tps = []float64{sig.TP}
		tpQty = []float64{qty}
	}

	entryFee := feeOf(entryPx*qty, params.FeeBps)
	equityBefore := *equity
	*equity -= entryFee

	trailPeriod := sig.TrailingATRPeriod
	if trailPeriod <= 0 {
		trailPeriod = 14
	}

	return &Position{
		Strategy:          sig.Strategy,
		Symbol:            sig.Symbol,
		Side:              sig.Side,
		EntryPrice:        entryPx,
		SL:                sig.SL,
		InitialSL:         sig.SL,
		Qty:               qty,
		RemainingQty:      qty,
		EntryTS:           bar.CloseTime,
		EntryIndex:        index,
		EquityAtEntry:     equityBefore,
		TPs:               tps,
		TPQtyRemaining:    tpQty,
		TrailingATRMult:   sig.TrailingATRMult,
		TrailingATRPeriod: trailPeriod,
		HHSinceEntry:      entryPx,
		LLSinceEntry:      entryPx,
		TimeStopBars:      sig.TimeStopBars,
		EntryFee:          entryFee,
		OpenReason:        sig.Reason,
	}
}

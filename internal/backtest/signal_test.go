package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTradeSignalValidate(t *testing.T) {
	t.Run("nil signal", func(t *testing.T) {
		var s *TradeSignal
		assert.False(t, s.Validate())
	})

	t.Run("valid long single target", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90, TP: 110}
		assert.True(t, s.Validate())
	})

	t.Run("valid short single target", func(t *testing.T) {
		s := &TradeSignal{Side: SideShort, Entry: 100, SL: 110, TP: 90}
		assert.True(t, s.Validate())
	})

	t.Run("unknown side", func(t *testing.T) {
		s := &TradeSignal{Side: "both", Entry: 100, SL: 90, TP: 110}
		assert.False(t, s.Validate())
	})

	t.Run("long requires sl below entry below tp", func(t *testing.T) {
		assert.False(t, (&TradeSignal{Side: SideLong, Entry: 100, SL: 105, TP: 110}).Validate())
		assert.False(t, (&TradeSignal{Side: SideLong, Entry: 100, SL: 90, TP: 95}).Validate())
	})

	t.Run("short requires tp below entry below sl", func(t *testing.T) {
		assert.False(t, (&TradeSignal{Side: SideShort, Entry: 100, SL: 95, TP: 90}).Validate())
		assert.False(t, (&TradeSignal{Side: SideShort, Entry: 100, SL: 110, TP: 105}).Validate())
	})

	t.Run("ladder fills single tp from last rung", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90, TPs: []float64{110, 120}}
		assert.True(t, s.Validate())
		assert.InDelta(t, 120.0, s.TP, 1e-12)
	})

	t.Run("ladder must ascend for long", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90, TPs: []float64{120, 110}}
		assert.False(t, s.Validate())
	})

	t.Run("ladder equal rungs allowed", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90, TPs: []float64{110, 110}}
		assert.True(t, s.Validate())
	})

	t.Run("ladder must descend for short", func(t *testing.T) {
		s := &TradeSignal{Side: SideShort, Entry: 100, SL: 110, TPs: []float64{90, 95}}
		assert.False(t, s.Validate())
	})

	t.Run("ladder rung on wrong side of entry", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90, TPs: []float64{99, 110}}
		assert.False(t, s.Validate())
	})

	t.Run("frac length mismatch", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90,
			TPs: []float64{110, 120}, TPFracs: []float64{0.5}}
		assert.False(t, s.Validate())
	})

	t.Run("frac sum above one", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90,
			TPs: []float64{110, 120}, TPFracs: []float64{0.7, 0.7}}
		assert.False(t, s.Validate())
	})

	t.Run("frac sum below one keeps runner", func(t *testing.T) {
		s := &TradeSignal{Side: SideLong, Entry: 100, SL: 90,
			TPs: []float64{110, 120}, TPFracs: []float64{0.3, 0.3}}
		assert.True(t, s.Validate())
	})

	t.Run("zero prices rejected", func(t *testing.T) {
		assert.False(t, (&TradeSignal{Side: SideLong, Entry: 0, SL: 90, TP: 110}).Validate())
		assert.False(t, (&TradeSignal{Side: SideLong, Entry: 100, SL: 0, TP: 110}).Validate())
		assert.False(t, (&TradeSignal{Side: SideLong, Entry: 100, SL: 90}).Validate())
	})
}

func TestExitTagStrings(t *testing.T) {
	assert.Equal(t, "SL", ExitTag{Kind: TagSL}.String())
	assert.Equal(t, "TRAIL_SL", ExitTag{Kind: TagTrailSL}.String())
	assert.Equal(t, "TP2", ExitTag{Kind: TagTP, Level: 2}.String())
	assert.Equal(t, "TIME", ExitTag{Kind: TagTime}.String())
	assert.Equal(t, "EOP", ExitTag{Kind: TagEOP}.String())
}

func TestOutcomeFromTags(t *testing.T) {
	t.Run("any stop dominates", func(t *testing.T) {
		tags := []ExitTag{{Kind: TagTP, Level: 1}, {Kind: TagTrailSL}}
		assert.Equal(t, OutcomeSL, outcomeFromTags(tags))
	})
	t.Run("tp beats time", func(t *testing.T) {
		tags := []ExitTag{{Kind: TagTP, Level: 1}, {Kind: TagTime}}
		assert.Equal(t, OutcomeTP, outcomeFromTags(tags))
	})
	t.Run("eop counts as time", func(t *testing.T) {
		assert.Equal(t, OutcomeTime, outcomeFromTags([]ExitTag{{Kind: TagEOP}}))
	})
	t.Run("empty is manual", func(t *testing.T) {
		assert.Equal(t, OutcomeManual, outcomeFromTags(nil))
	})
}

package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestATRCacheConstantRange(t *testing.T) {
	// 恒定 2 点真实波幅：Wilder 平滑后 ATR 恒为 2
	bars := flatBars(20, 100)
	cache := NewATRCache(bars)

	ser := cache.Series(5)
	require.Len(t, ser, len(bars))

	for i := 0; i < 5; i++ {
		assert.True(t, math.IsNaN(ser[i]), "warmup index %d", i)
	}
	for i := 5; i < len(ser); i++ {
		assert.InDelta(t, 2.0, ser[i], 1e-9, "index %d", i)
	}
}

func TestATRCacheInsufficientHistory(t *testing.T) {
	bars := flatBars(10, 100)
	cache := NewATRCache(bars)

	ser := cache.Series(14)
	require.Len(t, ser, len(bars))
	for i, v := range ser {
		assert.True(t, math.IsNaN(v), "index %d", i)
	}
}

func TestATRCacheAt(t *testing.T) {
	bars := flatBars(20, 100)
	cache := NewATRCache(bars)

	assert.True(t, math.IsNaN(cache.At(5, -1)))
	assert.True(t, math.IsNaN(cache.At(5, len(bars))))
	assert.True(t, math.IsNaN(cache.At(5, 2)))
	assert.InDelta(t, 2.0, cache.At(5, 10), 1e-9)
}

func TestATRCacheMemoizesPerPeriod(t *testing.T) {
	bars := flatBars(20, 100)
	cache := NewATRCache(bars)

	first := cache.Series(5)
	again := cache.Series(5)
	assert.Equal(t, &first[0], &again[0]) // 同一底层数组，未重复计算

	other := cache.Series(7)
	assert.NotEqual(t, &first[0], &other[0])
}

func TestATRCachePeriodFloor(t *testing.T) {
	bars := flatBars(20, 100)
	cache := NewATRCache(bars)

	// period < 2 统一收敛到 2
	one := cache.Series(1)
	two := cache.Series(2)
	assert.Equal(t, &one[0], &two[0])
}

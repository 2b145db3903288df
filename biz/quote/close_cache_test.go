package quote

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseCache(t *testing.T) {
	cache := NewCloseCache()

	cache.Set("AAPL", "US", "2026-08-18", decimal.NewFromInt(188))
	cache.Set("AAPL", "US", "2026-08-20", decimal.NewFromInt(190))
	cache.Set("AAPL", "US", "2026-08-21", decimal.NewFromInt(192))
	cache.Set("00700", "HK", "2026-08-20", decimal.NewFromInt(320))

	price, ok := cache.Get("AAPL", "US", "2026-08-20")
	require.True(t, ok)
	assert.Equal(t, "190", price.String())

	_, ok = cache.Get("AAPL", "US", "2026-08-19")
	assert.False(t, ok)
	_, ok = cache.Get("MSFT", "US", "2026-08-20")
	assert.False(t, ok)

	// Floor 取不晚于目标日的最近一条
	date, price, ok := cache.Floor("AAPL", "US", "2026-08-19")
	require.True(t, ok)
	assert.Equal(t, "2026-08-18", date)
	assert.Equal(t, "188", price.String())

	date, price, ok = cache.Floor("AAPL", "US", "2026-08-30")
	require.True(t, ok)
	assert.Equal(t, "2026-08-21", date)
	assert.Equal(t, "192", price.String())

	_, _, ok = cache.Floor("AAPL", "US", "2026-08-17")
	assert.False(t, ok)

	// 同日覆盖写
	cache.Set("AAPL", "US", "2026-08-20", decimal.NewFromInt(191))
	price, ok = cache.Get("AAPL", "US", "2026-08-20")
	require.True(t, ok)
	assert.Equal(t, "191", price.String())
}

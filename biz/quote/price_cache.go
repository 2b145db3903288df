package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	redisDal "github.com/ken196502/strategy-simulator/biz/dal/redis"
)

// PriceSource 最新价来源
type PriceSource interface {
	LastPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error)
}

// CachedPrices 用 Redis 做短 TTL 的最新价缓存，未初始化 Redis 时直接透传
type CachedPrices struct {
	Source PriceSource
	TTL    time.Duration
}

func NewCachedPrices(src PriceSource, ttl time.Duration) *CachedPrices {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedPrices{Source: src, TTL: ttl}
}

func lastPriceKey(symbol, market string) string {
	return "quote:last_price:" + symbol + ":" + market
}

func (c *CachedPrices) LastPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	if redisDal.Client != nil {
		if cached, err := redisDal.Client.Get(ctx, lastPriceKey(symbol, market)).Result(); err == nil {
			if price, perr := decimal.NewFromString(cached); perr == nil {
				return price, nil
			}
		}
	}
	price, err := c.Source.LastPrice(ctx, symbol, market)
	if err != nil {
		return decimal.Zero, err
	}
	if redisDal.Client != nil {
		redisDal.Client.Set(ctx, lastPriceKey(symbol, market), price.String(), c.TTL)
	}
	return price, nil
}

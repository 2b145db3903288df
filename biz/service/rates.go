package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/model"
)

// CurrencyConverter 币种换算
type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// RateTable 从 trading_configs 的 exchange_rate 构建的汇率表
// 约定 exchange_rate 为 1 USD 兑换的本币数量，任意币种经 USD 中转换算
type RateTable struct {
	db *gorm.DB

	mu     sync.RWMutex
	perUSD map[string]decimal.Decimal
}

func NewRateTable(db *gorm.DB) *RateTable {
	return &RateTable{
		db:     db,
		perUSD: make(map[string]decimal.Decimal),
	}
}

// Refresh 重新加载全部市场汇率
func (r *RateTable) Refresh() error {
	configs, err := pg.ListTradingConfigs(r.db)
	if err != nil {
		return err
	}
	rates := make(map[string]decimal.Decimal, len(configs)+1)
	rates[model.CurrencyUSD] = decimal.NewFromInt(1)
	for _, cfg := range configs {
		currency, ok := model.CurrencyForMarket(cfg.Market)
		if !ok || cfg.ExchangeRate.LessThanOrEqual(decimal.Zero) {
			continue
		}
		rates[currency] = cfg.ExchangeRate
	}
	r.mu.Lock()
	r.perUSD = rates
	r.mu.Unlock()
	return nil
}

// Convert 币种换算，零金额不需要汇率
func (r *RateTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if amount.IsZero() || from == to {
		return amount, nil
	}
	r.mu.RLock()
	fromRate, okFrom := r.perUSD[from]
	toRate, okTo := r.perUSD[to]
	r.mu.RUnlock()
	if !okFrom || fromRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrRateUnavailable, from, to)
	}
	if !okTo || toRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrRateUnavailable, from, to)
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

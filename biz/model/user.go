package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// User 模拟券商账户，三个币种各自独立维护 (initial_capital, current_cash, frozen_cash)
type User struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Username          string          `gorm:"size:50;uniqueIndex;not null" json:"username"`
	InitialCapitalUSD decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"initial_capital_usd"`
	CurrentCashUSD    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"current_cash_usd"`
	FrozenCashUSD     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"frozen_cash_usd"`
	InitialCapitalHKD decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"initial_capital_hkd"`
	CurrentCashHKD    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"current_cash_hkd"`
	FrozenCashHKD     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"frozen_cash_hkd"`
	InitialCapitalCNY decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"initial_capital_cny"`
	CurrentCashCNY    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"current_cash_cny"`
	FrozenCashCNY     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"frozen_cash_cny"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Cash 返回指定市场币种的 (可用, 冻结) 现金
func (u *User) Cash(market string) (current, frozen decimal.Decimal, err error) {
	switch market {
	case MarketUS:
		return u.CurrentCashUSD, u.FrozenCashUSD, nil
	case MarketHK:
		return u.CurrentCashHKD, u.FrozenCashHKD, nil
	case MarketCN:
		return u.CurrentCashCNY, u.FrozenCashCNY, nil
	}
	return decimal.Zero, decimal.Zero, fmt.Errorf("unsupported market: %s", market)
}

// SetCash 写回指定市场币种的现金字段
func (u *User) SetCash(market string, current, frozen decimal.Decimal) error {
	switch market {
	case MarketUS:
		u.CurrentCashUSD, u.FrozenCashUSD = current, frozen
	case MarketHK:
		u.CurrentCashHKD, u.FrozenCashHKD = current, frozen
	case MarketCN:
		u.CurrentCashCNY, u.FrozenCashCNY = current, frozen
	default:
		return fmt.Errorf("unsupported market: %s", market)
	}
	return nil
}

// InitialCapital 返回指定币种的初始资金
func (u *User) InitialCapital(currency string) decimal.Decimal {
	switch currency {
	case CurrencyUSD:
		return u.InitialCapitalUSD
	case CurrencyHKD:
		return u.InitialCapitalHKD
	case CurrencyCNY:
		return u.InitialCapitalCNY
	}
	return decimal.Zero
}

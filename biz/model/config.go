package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 市场与币种常量
const (
	MarketUS = "US"
	MarketHK = "HK"
	MarketCN = "CN"

	CurrencyUSD = "USD"
	CurrencyHKD = "HKD"
	CurrencyCNY = "CNY"
)

// TradingConfig 每个市场一条：佣金、手数、汇率（1 USD 兑换多少本币）
type TradingConfig struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Market           string          `gorm:"size:10;uniqueIndex;not null" json:"market"`
	MinCommission    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"min_commission"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(8,6);not null" json:"commission_rate"`
	ExchangeRate     decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"exchange_rate"`
	MinOrderQuantity int64           `gorm:"not null;default:1" json:"min_order_quantity"`
	LotSize          int64           `gorm:"not null;default:1" json:"lot_size"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (TradingConfig) TableName() string {
	return "trading_configs"
}

// CurrencyForMarket 市场对应的结算币种
func CurrencyForMarket(market string) (string, bool) {
	switch market {
	case MarketUS:
		return CurrencyUSD, true
	case MarketHK:
		return CurrencyHKD, true
	case MarketCN:
		return CurrencyCNY, true
	}
	return "", false
}

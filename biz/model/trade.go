package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 成交模型（GORM），一次全量成交生成一条，落库后不可变
// ExchangeRate 恒为 1.0：各市场现金按本币记账，换汇延迟到快照/报表阶段
type Trade struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	OrderID      uint            `gorm:"index;not null" json:"order_id"`
	UserID       uint            `gorm:"index;not null" json:"user_id"`
	Symbol       string          `gorm:"size:20;not null" json:"symbol"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	Market       string          `gorm:"size:10;not null" json:"market"`
	Side         string          `gorm:"size:10;not null" json:"side"`
	Price        decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"price"`
	Quantity     int64           `gorm:"not null" json:"quantity"`
	Commission   decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"commission"`
	ExchangeRate decimal.Decimal `gorm:"type:numeric(10,6)" json:"exchange_rate"`
	TradeTime    time.Time       `gorm:"index" json:"trade_time"`
}

func (Trade) TableName() string {
	return "trades"
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 持仓，按 (user, symbol, market) 唯一
// AvailableQuantity 为未被挂单 SELL 预占的数量，恒满足 0 <= available <= quantity
// AvgCost 为成交量加权平均成本
type Position struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"uniqueIndex:idx_pos_user_symbol_market;not null" json:"user_id"`
	Symbol            string          `gorm:"size:20;uniqueIndex:idx_pos_user_symbol_market;not null" json:"symbol"`
	Market            string          `gorm:"size:10;uniqueIndex:idx_pos_user_symbol_market;not null" json:"market"`
	Name              string          `gorm:"size:100;not null" json:"name"`
	Quantity          int64           `gorm:"not null;default:0" json:"quantity"`
	AvailableQuantity int64           `gorm:"not null;default:0" json:"available_quantity"`
	AvgCost           decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"avg_cost"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 订单方向 / 类型 / 状态常量
// 状态机：PENDING -> FILLED 或 PENDING -> CANCELLED，终态不可再变更
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"

	OrderStatusPending   = "PENDING"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Order 订单模型（GORM）
// Price 仅限价单存在；市价单为 NULL
type Order struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	OrderNo        string              `gorm:"size:32;uniqueIndex;not null" json:"order_no"`
	UserID         uint                `gorm:"index;not null" json:"user_id"`
	Symbol         string              `gorm:"size:20;not null" json:"symbol"`
	Name           string              `gorm:"size:100;not null" json:"name"`
	Market         string              `gorm:"size:10;not null" json:"market"`
	Side           string              `gorm:"size:10;not null" json:"side"`
	OrderType      string              `gorm:"size:20;not null" json:"order_type"`
	Price          decimal.NullDecimal `gorm:"type:numeric(18,6)" json:"price"`
	Quantity       int64               `gorm:"not null" json:"quantity"`
	FilledQuantity int64               `gorm:"not null;default:0" json:"filled_quantity"`
	Status         string              `gorm:"size:20;index;not null" json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

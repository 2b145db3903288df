package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotDateLayout 快照与日线日期统一用 UTC 自然日字符串做键
const SnapshotDateLayout = "2006-01-02"

// DailyAssetSnapshot 每用户每天一条，重放交易流水生成，重复生成会覆盖
type DailyAssetSnapshot struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"uniqueIndex:idx_snapshot_user_date;not null" json:"user_id"`
	SnapshotDate   string          `gorm:"size:10;uniqueIndex:idx_snapshot_user_date;not null" json:"snapshot_date"`
	CashUSD        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"cash_usd"`
	CashHKD        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"cash_hkd"`
	CashCNY        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"cash_cny"`
	PositionsUSD   decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"positions_usd"`
	PositionsHKD   decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"positions_hkd"`
	PositionsCNY   decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"positions_cny"`
	TotalAssetsUSD decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total_assets_usd"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (DailyAssetSnapshot) TableName() string {
	return "daily_asset_snapshots"
}

// DailyStockPrice 每 (symbol, market, 日期) 一条收盘价，快照估值优先取这里
type DailyStockPrice struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"size:20;uniqueIndex:idx_price_symbol_market_date;not null" json:"symbol"`
	Market    string          `gorm:"size:10;uniqueIndex:idx_price_symbol_market_date;not null" json:"market"`
	PriceDate string          `gorm:"size:10;uniqueIndex:idx_price_symbol_market_date;not null" json:"price_date"`
	Price     decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (DailyStockPrice) TableName() string {
	return "daily_stock_prices"
}

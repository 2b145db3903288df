package pg

import (
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// ListTrades 用户成交记录，按时间倒序取最近 limit 条
func ListTrades(db *gorm.DB, userID uint, limit int) ([]model.Trade, error) {
	var trades []model.Trade
	q := db.Where("user_id = ?", userID).Order("trade_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&trades).Error
	return trades, err
}

// ListTradesAsc 用户全量成交流水，按时间正序，快照重放用
func ListTradesAsc(db *gorm.DB, userID uint) ([]model.Trade, error) {
	var trades []model.Trade
	err := db.Where("user_id = ?", userID).Order("trade_time ASC").Find(&trades).Error
	return trades, err
}

package pg

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// UpsertDailySnapshot 按 (user, date) 覆盖写入快照
func UpsertDailySnapshot(db *gorm.DB, snapshot *model.DailyAssetSnapshot) error {
	var existing model.DailyAssetSnapshot
	err := db.Where("user_id = ? AND snapshot_date = ?", snapshot.UserID, snapshot.SnapshotDate).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(snapshot).Error
	}
	if err != nil {
		return err
	}
	snapshot.ID = existing.ID
	snapshot.CreatedAt = existing.CreatedAt
	return db.Save(snapshot).Error
}

// GetSnapshotsForUser 用户全部快照，按日期正序
func GetSnapshotsForUser(db *gorm.DB, userID uint) ([]model.DailyAssetSnapshot, error) {
	var snapshots []model.DailyAssetSnapshot
	err := db.Where("user_id = ?", userID).Order("snapshot_date ASC").Find(&snapshots).Error
	return snapshots, err
}

// GetSnapshotForDate 指定日期快照，不存在返回 nil
func GetSnapshotForDate(db *gorm.DB, userID uint, date string) (*model.DailyAssetSnapshot, error) {
	var snapshot model.DailyAssetSnapshot
	err := db.Where("user_id = ? AND snapshot_date = ?", userID, date).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetDailyPrice 指定日期收盘价，不存在返回 false
func GetDailyPrice(db *gorm.DB, symbol, market, date string) (decimal.Decimal, bool, error) {
	var record model.DailyStockPrice
	err := db.Where("symbol = ? AND market = ? AND price_date = ?", symbol, market, date).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return record.Price, true, nil
}

// UpsertDailyPrice 按 (symbol, market, date) 覆盖写入收盘价
func UpsertDailyPrice(db *gorm.DB, symbol, market, date string, price decimal.Decimal) error {
	var existing model.DailyStockPrice
	err := db.Where("symbol = ? AND market = ? AND price_date = ?", symbol, market, date).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&model.DailyStockPrice{
			Symbol:    symbol,
			Market:    market,
			PriceDate: date,
			Price:     price,
		}).Error
	}
	if err != nil {
		return err
	}
	existing.Price = price
	return db.Save(&existing).Error
}

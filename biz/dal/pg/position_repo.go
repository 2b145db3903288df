package pg

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// GetPosition 按 (user, symbol, market) 查询持仓，不存在返回 nil
func GetPosition(db *gorm.DB, userID uint, symbol, market string) (*model.Position, error) {
	var pos model.Position
	err := db.Where("user_id = ? AND symbol = ? AND market = ?", userID, symbol, market).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListPositions 用户全部持仓
func ListPositions(db *gorm.DB, userID uint) ([]model.Position, error) {
	var positions []model.Position
	err := db.Where("user_id = ?", userID).Order("symbol ASC").Find(&positions).Error
	return positions, err
}

// ListHeldSymbols 所有有持仓的 (symbol, market)，供每日收盘价补录
func ListHeldSymbols(db *gorm.DB) ([]model.Position, error) {
	var positions []model.Position
	err := db.Select("DISTINCT symbol, market").Where("quantity > 0").Find(&positions).Error
	return positions, err
}

package pg

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// GetUser 按 ID 查询用户
func GetUser(db *gorm.DB, userID uint) (*model.User, error) {
	var user model.User
	err := db.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUser 按用户名取用户，不存在则用给定初始资金建号
func GetOrCreateUser(db *gorm.DB, username string, initUSD, initHKD, initCNY decimal.Decimal) (*model.User, error) {
	var user model.User
	err := db.Where("username = ?", username).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user = model.User{
		Username:          username,
		InitialCapitalUSD: initUSD,
		CurrentCashUSD:    initUSD,
		InitialCapitalHKD: initHKD,
		CurrentCashHKD:    initHKD,
		InitialCapitalCNY: initCNY,
		CurrentCashCNY:    initCNY,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

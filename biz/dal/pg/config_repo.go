package pg

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// GetTradingConfig 查询市场交易配置，不存在返回 nil
func GetTradingConfig(db *gorm.DB, market string) (*model.TradingConfig, error) {
	var cfg model.TradingConfig
	err := db.Where("market = ?", market).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListTradingConfigs 全部市场配置
func ListTradingConfigs(db *gorm.DB) ([]model.TradingConfig, error) {
	var configs []model.TradingConfig
	err := db.Find(&configs).Error
	return configs, err
}

// SeedTradingConfigs 写入缺失的默认市场配置，已有配置不覆盖
func SeedTradingConfigs(db *gorm.DB) error {
	defaults := []model.TradingConfig{
		{
			Market:           model.MarketUS,
			MinCommission:    decimal.NewFromFloat(1.0),
			CommissionRate:   decimal.NewFromFloat(0.0005),
			ExchangeRate:     decimal.NewFromFloat(1.0),
			MinOrderQuantity: 1,
			LotSize:          1,
		},
		{
			Market:           model.MarketHK,
			MinCommission:    decimal.NewFromFloat(20.0),
			CommissionRate:   decimal.NewFromFloat(0.00027),
			ExchangeRate:     decimal.NewFromFloat(7.8),
			MinOrderQuantity: 100,
			LotSize:          100,
		},
		{
			Market:           model.MarketCN,
			MinCommission:    decimal.NewFromFloat(5.0),
			CommissionRate:   decimal.NewFromFloat(0.00025),
			ExchangeRate:     decimal.NewFromFloat(7.2),
			MinOrderQuantity: 100,
			LotSize:          100,
		},
	}
	for i := range defaults {
		existing, err := GetTradingConfig(db, defaults[i].Market)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := db.Create(&defaults[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

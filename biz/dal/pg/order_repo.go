package pg

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// GetOrderByNo 按订单号查询
func GetOrderByNo(db *gorm.DB, orderNo string) (*model.Order, error) {
	var order model.Order
	err := db.Where("order_no = ?", orderNo).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders 查询用户订单，status 为空时不过滤
func ListOrders(db *gorm.DB, userID uint, status string) ([]model.Order, error) {
	var orders []model.Order
	q := db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Find(&orders).Error
	return orders, err
}

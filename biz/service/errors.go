package service

import "errors"

// 下单校验失败的错误分类，下单请求会直接拒绝并返回原因
// 执行阶段的临时失败（价格不可得、价格不利、现金不足）不走 error，返回未执行让订单留在 PENDING
var (
	ErrConfigMissing        = errors.New("no trading config for market")
	ErrInvalidQuantity      = errors.New("invalid order quantity")
	ErrPriceUnavailable     = errors.New("unable to get market price")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientPosition = errors.New("insufficient position to sell")
	ErrInvalidSide          = errors.New("side must be BUY or SELL")
	ErrRateUnavailable      = errors.New("missing exchange rate")
	ErrUserNotFound         = errors.New("user not found")
)

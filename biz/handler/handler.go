package handler

import (
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/ken196502/strategy-simulator/biz/quote"
	"github.com/ken196502/strategy-simulator/biz/service"
)

// 包级服务实例，main 启动时注入
var (
	Ledger      *service.Ledger
	Snapshots   *service.SnapshotService
	Assets      *service.AssetService
	QuoteClient *quote.Client
	HKInfo      *quote.HKStockClient
)

// Init 注入各服务实例
func Init(ledger *service.Ledger, snapshots *service.SnapshotService, assets *service.AssetService,
	quoteClient *quote.Client, hkInfo *quote.HKStockClient) {
	Ledger = ledger
	Snapshots = snapshots
	Assets = assets
	QuoteClient = quoteClient
	HKInfo = hkInfo
}

// respondError 按错误分类映射 HTTP 状态码
func respondError(c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, service.ErrPriceUnavailable):
		status = consts.StatusServiceUnavailable
	case errors.Is(err, service.ErrConfigMissing),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidSide),
		errors.Is(err, service.ErrInsufficientCash),
		errors.Is(err, service.ErrInsufficientPosition):
		status = consts.StatusBadRequest
	}
	c.JSON(status, map[string]interface{}{"error": err.Error()})
}

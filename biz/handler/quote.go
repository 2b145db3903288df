package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/ken196502/strategy-simulator/biz/quote"
)

// GetKline K 线查询，透传行情源数据
func GetKline(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	market := string(c.Query("market"))
	period := string(c.Query("period"))
	if symbol == "" || market == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "symbol and market are required"})
		return
	}
	if period == "" {
		period = "day"
	}
	count := 100
	payload, err := QuoteClient.KlineData(ctx, symbol, market, period, count)
	if err != nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"symbol": quote.FormatSymbol(symbol, market),
		"bars":   quote.ParseKline(payload),
	})
}

// GetLastPrice 最新价查询
func GetLastPrice(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	market := string(c.Query("market"))
	if symbol == "" || market == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "symbol and market are required"})
		return
	}
	price, err := QuoteClient.LastPrice(ctx, symbol, market)
	if err != nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"symbol": quote.FormatSymbol(symbol, market),
		"price":  price,
	})
}

// GetHKStockInfo 港股证券信息（名称、每手股数等）
func GetHKStockInfo(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	if symbol == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "symbol is required"})
		return
	}
	info, err := HKInfo.Info(ctx, symbol)
	if err != nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, info)
}

// SetQuoteCookie 运行期更新行情源 Cookie
func SetQuoteCookie(ctx context.Context, c *app.RequestContext) {
	type SetCookieRequest struct {
		Cookie string `json:"cookie"`
	}
	var req SetCookieRequest
	if err := c.BindAndValidate(&req); err != nil || req.Cookie == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "cookie is required"})
		return
	}
	QuoteClient.SetCookieString(req.Cookie)
	c.JSON(consts.StatusOK, map[string]interface{}{"status": "ok"})
}

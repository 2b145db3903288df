package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/shopspring/decimal"

	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/model"
)

type PlaceOrderRequest struct {
	UserID    uint   `json:"user_id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	OrderType string `json:"order_type"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// PlaceOrder RESTful 下单接口，下单成功后立即尝试执行一次
func PlaceOrder(ctx context.Context, c *app.RequestContext) {
	var req PlaceOrderRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.UserID == 0 || req.Symbol == "" || req.Market == "" || req.Side == "" || req.OrderType == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "missing required fields"})
		return
	}

	var price *decimal.Decimal
	if req.Price != "" {
		parsed, err := decimal.NewFromString(req.Price)
		if err != nil {
			c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "invalid price"})
			return
		}
		price = &parsed
	}
	if req.OrderType == model.OrderTypeLimit && price == nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "limit order requires price"})
		return
	}

	order, err := Ledger.PlaceOrder(ctx, req.UserID, req.Symbol, req.Name, req.Market,
		req.Side, req.OrderType, price, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	executed, err := Ledger.ExecuteOrder(ctx, order)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"order":    order,
		"executed": executed,
	})
}

// GetOrder 按订单号查询
func GetOrder(ctx context.Context, c *app.RequestContext) {
	orderNo := c.Param("order_no")
	order, err := pg.GetOrderByNo(pg.GormDB, orderNo)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "order not found"})
		return
	}
	c.JSON(consts.StatusOK, order)
}

// ListOrders 查询订单列表
func ListOrders(ctx context.Context, c *app.RequestContext) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	status := string(c.Query("status"))
	orders, err := pg.ListOrders(pg.GormDB, userID, status)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, orders)
}

// CancelOrder 撤单，只能撤本人的 PENDING 订单
func CancelOrder(ctx context.Context, c *app.RequestContext) {
	type CancelOrderRequest struct {
		OrderNo string `json:"order_no"`
		UserID  uint   `json:"user_id"`
	}
	var req CancelOrderRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "invalid request"})
		return
	}
	cancelled, err := Ledger.CancelOrder(ctx, req.OrderNo, req.UserID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	if !cancelled {
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "order not found or not cancellable"})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"order_no": req.OrderNo, "status": model.OrderStatusCancelled})
}

// ListTrades 查询成交记录
func ListTrades(ctx context.Context, c *app.RequestContext) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	limit := 50
	if l := c.Query("limit"); len(l) > 0 {
		fmt.Sscanf(string(l), "%d", &limit)
	}
	trades, err := pg.ListTrades(pg.GormDB, userID, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, trades)
}

func queryUserID(c *app.RequestContext) (uint, bool) {
	raw := string(c.Query("user_id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "invalid user_id"})
		return 0, false
	}
	return uint(id), true
}

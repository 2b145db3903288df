package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/ken196502/strategy-simulator/biz/model"
)

// GetBalances 三币种现金余额
func GetBalances(ctx context.Context, c *app.RequestContext) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	balances, err := Assets.GetBalances(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"balances_by_currency": balances})
}

// GetPositions 持仓明细
func GetPositions(ctx context.Context, c *app.RequestContext) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	positions, degraded, err := Assets.GetPositions(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"positions":            positions,
		"market_data_degraded": degraded,
	})
}

// GetOverview 账户总览
func GetOverview(ctx context.Context, c *app.RequestContext) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	overview, err := Assets.GetOverview(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, overview)
}

// GenerateSnapshot 手工触发快照生成，date 缺省为 UTC 今天
func GenerateSnapshot(ctx context.Context, c *app.RequestContext) {
	type GenerateSnapshotRequest struct {
		UserID uint   `json:"user_id"`
		Date   string `json:"date"`
	}
	var req GenerateSnapshotRequest
	if err := c.BindAndValidate(&req); err != nil || req.UserID == 0 {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "invalid request"})
		return
	}
	snapshot, err := Snapshots.GenerateDailySnapshot(ctx, req.UserID, req.Date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, snapshot)
}

// GetAssetTrend 资产走势：先确保今天的快照存在，再输出全量走势
func GetAssetTrend(ctx context.Context, c *app.RequestContext) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	today := time.Now().UTC().Format(model.SnapshotDateLayout)
	if _, err := Snapshots.GenerateDailySnapshot(ctx, userID, today); err != nil {
		respondError(c, err)
		return
	}
	trend, err := Snapshots.GetAssetTrend(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"trend": trend})
}

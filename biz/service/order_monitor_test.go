package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ken196502/strategy-simulator/biz/model"
)

func TestMonitorRunOnceExecutesPending(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	// 限价 180，市价 190，下单后留在 PENDING
	limit := dec(t, "180")
	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeLimit, &limit, 10)
	require.NoError(t, err)

	monitor, err := NewOrderMonitor(ledger, time.Second, 4, nil)
	require.NoError(t, err)
	defer monitor.Stop()

	require.Equal(t, 0, monitor.RunOnce(ctx))

	// 价格回落后下一轮扫描成交
	prices.set("AAPL", model.MarketUS, dec(t, "179"))
	require.Equal(t, 1, monitor.RunOnce(ctx))

	pending, err := ledger.GetPendingOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	_ = order
}

func TestMonitorSurvivesQuoteOutage(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "100000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	prices.set("MSFT", model.MarketUS, dec(t, "400"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	for _, symbol := range []string{"AAPL", "MSFT"} {
		limit := dec(t, "1")
		_, err := ledger.PlaceOrder(ctx, user.ID, symbol, symbol, model.MarketUS,
			model.SideBuy, model.OrderTypeLimit, &limit, 10)
		require.NoError(t, err)
	}

	monitor, err := NewOrderMonitor(ledger, time.Second, 4, nil)
	require.NoError(t, err)
	defer monitor.Stop()

	// 行情全挂时扫描照常完成，订单全部保留
	prices.fail(errors.New("quote down"))
	require.Equal(t, 0, monitor.RunOnce(ctx))

	pending, err := ledger.GetPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestMonitorStartStop(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	prices := newStubPrices()
	ledger := newTestLedger(t, db, prices)

	monitor, err := NewOrderMonitor(ledger, 10*time.Millisecond, 2, nil)
	require.NoError(t, err)
	monitor.Start()
	time.Sleep(50 * time.Millisecond)
	monitor.Stop()
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ken196502/strategy-simulator/biz/model"
	"github.com/ken196502/strategy-simulator/biz/quote"
)

func TestRateTableConvert(t *testing.T) {
	db := newTestDB(t)
	seedMarkets(t, db)
	rates := NewRateTable(db)
	require.NoError(t, rates.Refresh())

	// 7800 HKD / 7.8 = 1000 USD
	got, err := rates.Convert(dec(t, "7800"), model.CurrencyHKD, model.CurrencyUSD)
	require.NoError(t, err)
	requireDecEqual(t, dec(t, "1000"), got)

	// 经 USD 中转：7.8 HKD -> 1 USD -> 7.2 CNY
	got, err = rates.Convert(dec(t, "7.8"), model.CurrencyHKD, model.CurrencyCNY)
	require.NoError(t, err)
	requireDecEqual(t, dec(t, "7.2"), got)

	// 同币种与零金额不需要汇率
	got, err = rates.Convert(dec(t, "5"), "JPY", "JPY")
	require.NoError(t, err)
	requireDecEqual(t, dec(t, "5"), got)
	got, err = rates.Convert(decimal.Zero, "JPY", model.CurrencyUSD)
	require.NoError(t, err)
	requireDecEqual(t, decimal.Zero, got)

	_, err = rates.Convert(dec(t, "5"), "JPY", model.CurrencyUSD)
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestAssetOverview(t *testing.T) {
	db := newTestDB(t)
	seedMarkets(t, db)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	rates := NewRateTable(db)
	require.NoError(t, rates.Refresh())
	closes := quote.NewCloseCache()
	assets := NewAssetService(db, prices, rates, closes, nil)
	ctx := context.Background()

	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)
	executed, err := ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.True(t, executed)

	overview, err := assets.GetOverview(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, overview.Positions, 1)
	require.False(t, overview.MarketDataDegraded)
	requireDecEqual(t, dec(t, "1900"), overview.PositionsValue[model.CurrencyUSD])
	requireDecEqual(t, dec(t, "8090.5"), overview.Balances[model.CurrencyUSD].CurrentCash)
	// 8090.5 + 1900 + 780000/7.8 + 720000/7.2 = 209990.5
	requireDecEqual(t, dec(t, "209990.5"), overview.TotalAssetsUSD)

	// 行情挂掉时总览降级但不失败
	prices.fail(errors.New("quote down"))
	overview, err = assets.GetOverview(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, overview.MarketDataDegraded)
	require.Nil(t, overview.Positions[0].LastPrice)

	// 有历史收盘价时按最近一条陈旧估值，降级标记保留
	closes.Set("AAPL", model.MarketUS,
		time.Now().UTC().AddDate(0, 0, -1).Format(model.SnapshotDateLayout), dec(t, "188"))
	overview, err = assets.GetOverview(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, overview.MarketDataDegraded)
	require.NotNil(t, overview.Positions[0].LastPrice)
	requireDecEqual(t, dec(t, "188"), *overview.Positions[0].LastPrice)
	requireDecEqual(t, dec(t, "1880"), overview.PositionsValue[model.CurrencyUSD])
}

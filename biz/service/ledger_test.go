package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, pg.AutoMigrate(db))
	return db
}

type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func newStubPrices() *stubPrices {
	return &stubPrices{prices: make(map[string]decimal.Decimal)}
}

func (s *stubPrices) set(symbol, market string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol+"::"+market] = price
}

func (s *stubPrices) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubPrices) LastPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return decimal.Zero, s.err
	}
	price, ok := s.prices[symbol+"::"+market]
	if !ok {
		return decimal.Zero, errors.New("no quote")
	}
	return price, nil
}

type stubHKInfo struct {
	lot int64
}

func (s *stubHKInfo) StockInfo(ctx context.Context, symbol string) (string, string, int64, error) {
	lot := s.lot
	if lot == 0 {
		lot = 100
	}
	return symbol, "Test HK Co", lot, nil
}

func seedConfig(t *testing.T, db *gorm.DB, market string, minCommission, rate string, minQty, lot int64) {
	t.Helper()
	minComm, err := decimal.NewFromString(minCommission)
	require.NoError(t, err)
	commRate, err := decimal.NewFromString(rate)
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.TradingConfig{
		Market:           market,
		MinCommission:    minComm,
		CommissionRate:   commRate,
		ExchangeRate:     decimal.NewFromInt(1),
		MinOrderQuantity: minQty,
		LotSize:          lot,
	}).Error)
}

func seedUser(t *testing.T, db *gorm.DB, cashUSD string) *model.User {
	t.Helper()
	cash, err := decimal.NewFromString(cashUSD)
	require.NoError(t, err)
	user := &model.User{
		Username:          "tester",
		InitialCapitalUSD: cash,
		CurrentCashUSD:    cash,
		InitialCapitalHKD: decimal.NewFromInt(780000),
		CurrentCashHKD:    decimal.NewFromInt(780000),
		InitialCapitalCNY: decimal.NewFromInt(720000),
		CurrentCashCNY:    decimal.NewFromInt(720000),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func newTestLedger(t *testing.T, db *gorm.DB, prices *stubPrices) *Ledger {
	t.Helper()
	return NewLedger(db, prices, &stubHKInfo{lot: 100}, nil)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func requireDecEqual(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	require.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *model.User {
	t.Helper()
	var user model.User
	require.NoError(t, db.First(&user, id).Error)
	return &user
}

func TestPlaceMarketBuyFreezesCash(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)

	order, err := ledger.PlaceOrder(context.Background(), user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, order.Status)
	require.NotEmpty(t, order.OrderNo)

	// 冻结 = 190*10 + max(1900*0.005, 1.0) = 1909.5，是划转不是扣减
	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "8090.5"), u.CurrentCashUSD)
	requireDecEqual(t, dec(t, "1909.5"), u.FrozenCashUSD)
}

func TestExecuteMarketBuy(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)

	order, err := ledger.PlaceOrder(context.Background(), user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)

	executed, err := ledger.ExecuteOrder(context.Background(), order)
	require.NoError(t, err)
	require.True(t, executed)
	require.Equal(t, model.OrderStatusFilled, order.Status)
	require.Equal(t, int64(10), order.FilledQuantity)

	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "8090.5"), u.CurrentCashUSD)
	requireDecEqual(t, decimal.Zero, u.FrozenCashUSD)

	pos, err := pg.GetPosition(db, user.ID, "AAPL", model.MarketUS)
	require.NoError(t, err)
	require.NotNil(t, pos)
	require.Equal(t, int64(10), pos.Quantity)
	require.Equal(t, int64(10), pos.AvailableQuantity)
	requireDecEqual(t, dec(t, "190"), pos.AvgCost)

	trades, err := pg.ListTrades(db, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	requireDecEqual(t, dec(t, "190"), trades[0].Price)
	requireDecEqual(t, dec(t, "9.5"), trades[0].Commission)
}

func TestPlaceBuyInsufficientCash(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "100")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)

	_, err := ledger.PlaceOrder(context.Background(), user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.ErrorIs(t, err, ErrInsufficientCash)

	// 拒单不落库也不动现金
	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	require.Zero(t, count)
	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "100"), u.CurrentCashUSD)
	requireDecEqual(t, decimal.Zero, u.FrozenCashUSD)
}

func TestPlaceOrderValidation(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	seedConfig(t, db, model.MarketHK, "20.0", "0.00027", 100, 100)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	prices.set("00700", model.MarketHK, dec(t, "320"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	_, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	// 港股手数 100，150 股拒单
	_, err = ledger.PlaceOrder(ctx, user.ID, "00700", "", model.MarketHK,
		model.SideBuy, model.OrderTypeMarket, nil, 150)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = ledger.PlaceOrder(ctx, user.ID, "AAPL", "", "JP",
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.ErrorIs(t, err, ErrConfigMissing)

	_, err = ledger.PlaceOrder(ctx, user.ID, "AAPL", "", model.MarketUS,
		"HOLD", model.OrderTypeMarket, nil, 10)
	require.ErrorIs(t, err, ErrInvalidSide)

	prices.fail(errors.New("quote down"))
	_, err = ledger.PlaceOrder(ctx, user.ID, "AAPL", "", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestWeightedAverageCost(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	for _, price := range []string{"190", "210"} {
		prices.set("AAPL", model.MarketUS, dec(t, price))
		order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
			model.SideBuy, model.OrderTypeMarket, nil, 10)
		require.NoError(t, err)
		executed, err := ledger.ExecuteOrder(ctx, order)
		require.NoError(t, err)
		require.True(t, executed)
	}

	pos, err := pg.GetPosition(db, user.ID, "AAPL", model.MarketUS)
	require.NoError(t, err)
	require.Equal(t, int64(20), pos.Quantity)
	// (190*10 + 210*10) / 20 = 200
	requireDecEqual(t, dec(t, "200"), pos.AvgCost)
}

func TestSellReservesAndExecutes(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	buy, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)
	_, err = ledger.ExecuteOrder(ctx, buy)
	require.NoError(t, err)

	// 超过持仓的卖单拒绝
	_, err = ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideSell, model.OrderTypeMarket, nil, 20)
	require.ErrorIs(t, err, ErrInsufficientPosition)

	prices.set("AAPL", model.MarketUS, dec(t, "200"))
	sell, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideSell, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)

	// 下单即预占可卖数量
	pos, err := pg.GetPosition(db, user.ID, "AAPL", model.MarketUS)
	require.NoError(t, err)
	require.Equal(t, int64(10), pos.Quantity)
	require.Equal(t, int64(0), pos.AvailableQuantity)

	executed, err := ledger.ExecuteOrder(ctx, sell)
	require.NoError(t, err)
	require.True(t, executed)

	pos, err = pg.GetPosition(db, user.ID, "AAPL", model.MarketUS)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos.Quantity)
	require.Equal(t, int64(0), pos.AvailableQuantity)

	// 10000 - (1900+9.5) + (2000-10) = 10080.5
	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "10080.5"), u.CurrentCashUSD)
	requireDecEqual(t, decimal.Zero, u.FrozenCashUSD)
}

func TestLimitBuyWaitsForFavorablePrice(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	limit := dec(t, "180")
	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeLimit, &limit, 10)
	require.NoError(t, err)

	executed, err := ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.False(t, executed)

	reloaded, err := pg.GetOrderByNo(db, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, reloaded.Status)

	// 价格回落到限价内即可成交
	prices.set("AAPL", model.MarketUS, dec(t, "179"))
	executed, err = ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.True(t, executed)

	trades, err := pg.ListTrades(db, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	requireDecEqual(t, dec(t, "179"), trades[0].Price)
}

func TestLimitBuyReleaseUsesPlacementBasis(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	// 限价 200 冻结 200*10+10=2010，按 190 成交后解冻全部冻结额
	limit := dec(t, "200")
	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeLimit, &limit, 10)
	require.NoError(t, err)

	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "2010"), u.FrozenCashUSD)

	executed, err := ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.True(t, executed)

	u = reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "8090.5"), u.CurrentCashUSD)
	requireDecEqual(t, decimal.Zero, u.FrozenCashUSD)
}

func TestExecuteSkipsWhenPriceRunsAway(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "1909.5")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)

	// 市价单执行时价格大涨，冻结额不够就留在 PENDING
	prices.set("AAPL", model.MarketUS, dec(t, "500"))
	executed, err := ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.False(t, executed)

	reloaded, err := pg.GetOrderByNo(db, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, reloaded.Status)
	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "1909.5"), u.FrozenCashUSD)
}

func TestExecutePriceUnavailableKeepsPending(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)

	prices.fail(errors.New("quote down"))
	executed, err := ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.False(t, executed)
}

func TestExecuteTerminalOrderIsNoop(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)
	executed, err := ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.True(t, executed)

	// 重复执行不再产生成交
	executed, err = ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)
	require.False(t, executed)
	trades, err := pg.ListTrades(db, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

func TestCancelBuyReleasesFrozenCash(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	limit := dec(t, "180")
	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeLimit, &limit, 10)
	require.NoError(t, err)

	cancelled, err := ledger.CancelOrder(ctx, order.OrderNo, user.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "10000"), u.CurrentCashUSD)
	requireDecEqual(t, decimal.Zero, u.FrozenCashUSD)

	reloaded, err := pg.GetOrderByNo(db, order.OrderNo)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusCancelled, reloaded.Status)
}

func TestCancelBuyWithoutPriceReleasesNothing(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)

	// 行情不可得时保守不解冻，但订单仍转 CANCELLED
	prices.fail(errors.New("quote down"))
	cancelled, err := ledger.CancelOrder(ctx, order.OrderNo, user.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	u := reloadUser(t, db, user.ID)
	requireDecEqual(t, dec(t, "8090.5"), u.CurrentCashUSD)
	requireDecEqual(t, dec(t, "1909.5"), u.FrozenCashUSD)
}

func TestCancelSellRestoresAvailable(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	buy, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)
	_, err = ledger.ExecuteOrder(ctx, buy)
	require.NoError(t, err)

	limit := dec(t, "500")
	sell, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideSell, model.OrderTypeLimit, &limit, 10)
	require.NoError(t, err)

	cancelled, err := ledger.CancelOrder(ctx, sell.OrderNo, user.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	pos, err := pg.GetPosition(db, user.ID, "AAPL", model.MarketUS)
	require.NoError(t, err)
	require.Equal(t, int64(10), pos.Quantity)
	require.Equal(t, int64(10), pos.AvailableQuantity)
}

func TestCancelRejectsTerminalOrForeignOrders(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeMarket, nil, 10)
	require.NoError(t, err)

	// 别人的单撤不动
	cancelled, err := ledger.CancelOrder(ctx, order.OrderNo, user.ID+1)
	require.NoError(t, err)
	require.False(t, cancelled)

	_, err = ledger.ExecuteOrder(ctx, order)
	require.NoError(t, err)

	// 已成交的单撤不动
	cancelled, err = ledger.CancelOrder(ctx, order.OrderNo, user.ID)
	require.NoError(t, err)
	require.False(t, cancelled)
}

func TestPendingOrderNosFallsBackToDatabase(t *testing.T) {
	db := newTestDB(t)
	seedConfig(t, db, model.MarketUS, "1.0", "0.005", 1, 1)
	user := seedUser(t, db, "10000")
	prices := newStubPrices()
	prices.set("AAPL", model.MarketUS, dec(t, "190"))
	ledger := newTestLedger(t, db, prices)
	ctx := context.Background()

	limit := dec(t, "180")
	order, err := ledger.PlaceOrder(ctx, user.ID, "AAPL", "Apple", model.MarketUS,
		model.SideBuy, model.OrderTypeLimit, &limit, 10)
	require.NoError(t, err)

	// 未接 Redis 时回源数据库查挂单集合
	nos, err := ledger.PendingOrderNos(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{order.OrderNo}, nos)

	cancelled, err := ledger.CancelOrder(ctx, order.OrderNo, user.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	nos, err = ledger.PendingOrderNos(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, nos)
}

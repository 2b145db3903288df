package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/model"
	"github.com/ken196502/strategy-simulator/biz/quote"
)

// CurrencyBalance 单币种现金口径
type CurrencyBalance struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	CurrentCash    decimal.Decimal `json:"current_cash"`
	FrozenCash     decimal.Decimal `json:"frozen_cash"`
	TotalCash      decimal.Decimal `json:"total_cash"`
}

// PositionView 持仓快照，市值按最新价计算，行情不可得时仅有成本口径
type PositionView struct {
	Symbol            string           `json:"symbol"`
	Name              string           `json:"name"`
	Market            string           `json:"market"`
	Quantity          int64            `json:"quantity"`
	AvailableQuantity int64            `json:"available_quantity"`
	AvgCost           decimal.Decimal  `json:"avg_cost"`
	LastPrice         *decimal.Decimal `json:"last_price,omitempty"`
	MarketValue       *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPnL     *decimal.Decimal `json:"unrealized_pnl,omitempty"`
}

// AccountOverview 账户总览：分币种现金、持仓明细、分币种持仓市值、USD 总资产
type AccountOverview struct {
	UserID             uint                       `json:"user_id"`
	Username           string                     `json:"username"`
	Balances           map[string]CurrencyBalance `json:"balances_by_currency"`
	Positions          []PositionView             `json:"positions"`
	PositionsValue     map[string]decimal.Decimal `json:"positions_value_by_currency"`
	TotalAssetsUSD     decimal.Decimal            `json:"total_assets_usd"`
	MarketDataDegraded bool                       `json:"market_data_degraded"`
}

// AssetService 账户资产查询
type AssetService struct {
	db     *gorm.DB
	prices PriceSource
	rates  CurrencyConverter
	closes *quote.CloseCache
	log    *zap.Logger
}

func NewAssetService(db *gorm.DB, prices PriceSource, rates CurrencyConverter,
	closes *quote.CloseCache, logger *zap.Logger) *AssetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if closes == nil {
		closes = quote.NewCloseCache()
	}
	return &AssetService{db: db, prices: prices, rates: rates, closes: closes, log: logger}
}

// GetBalances 三币种现金余额
func (a *AssetService) GetBalances(ctx context.Context, userID uint) (map[string]CurrencyBalance, error) {
	user, err := pg.GetUser(a.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrUserNotFound, userID)
	}
	return balancesOf(user), nil
}

func balancesOf(user *model.User) map[string]CurrencyBalance {
	return map[string]CurrencyBalance{
		model.CurrencyUSD: {
			InitialCapital: user.InitialCapitalUSD,
			CurrentCash:    user.CurrentCashUSD,
			FrozenCash:     user.FrozenCashUSD,
			TotalCash:      user.CurrentCashUSD.Add(user.FrozenCashUSD),
		},
		model.CurrencyHKD: {
			InitialCapital: user.InitialCapitalHKD,
			CurrentCash:    user.CurrentCashHKD,
			FrozenCash:     user.FrozenCashHKD,
			TotalCash:      user.CurrentCashHKD.Add(user.FrozenCashHKD),
		},
		model.CurrencyCNY: {
			InitialCapital: user.InitialCapitalCNY,
			CurrentCash:    user.CurrentCashCNY,
			FrozenCash:     user.FrozenCashCNY,
			TotalCash:      user.CurrentCashCNY.Add(user.FrozenCashCNY),
		},
	}
}

// GetPositions 持仓明细，逐个补最新价
// 行情失败时退回最近收盘价，连收盘价都没有的持仓保留成本口径
func (a *AssetService) GetPositions(ctx context.Context, userID uint) ([]PositionView, bool, error) {
	positions, err := pg.ListPositions(a.db, userID)
	if err != nil {
		return nil, false, err
	}
	views := make([]PositionView, 0, len(positions))
	degraded := false
	for _, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}
		view := PositionView{
			Symbol:            pos.Symbol,
			Name:              pos.Name,
			Market:            pos.Market,
			Quantity:          pos.Quantity,
			AvailableQuantity: pos.AvailableQuantity,
			AvgCost:           pos.AvgCost,
		}
		price, err := a.prices.LastPrice(ctx, pos.Symbol, pos.Market)
		if err != nil {
			// 实时行情失败时退回最近一个已知收盘价，估值转为陈旧口径并置降级标记
			degraded = true
			a.log.Debug("position price unavailable",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			today := time.Now().UTC().Format(model.SnapshotDateLayout)
			if _, stale, ok := a.closes.Floor(pos.Symbol, pos.Market, today); ok {
				price, err = stale, nil
			}
		}
		if err == nil {
			qty := decimal.NewFromInt(pos.Quantity)
			value := price.Mul(qty)
			pnl := price.Sub(pos.AvgCost).Mul(qty)
			view.LastPrice = &price
			view.MarketValue = &value
			view.UnrealizedPnL = &pnl
		}
		views = append(views, view)
	}
	return views, degraded, nil
}

// GetOverview 账户总览，总资产 = Σ 各币种(现金 + 持仓市值) 折 USD
func (a *AssetService) GetOverview(ctx context.Context, userID uint) (*AccountOverview, error) {
	user, err := pg.GetUser(a.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrUserNotFound, userID)
	}

	views, degraded, err := a.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	positionsValue := map[string]decimal.Decimal{
		model.CurrencyUSD: decimal.Zero,
		model.CurrencyHKD: decimal.Zero,
		model.CurrencyCNY: decimal.Zero,
	}
	for _, view := range views {
		if view.MarketValue == nil {
			continue
		}
		currency, ok := model.CurrencyForMarket(view.Market)
		if !ok {
			continue
		}
		positionsValue[currency] = positionsValue[currency].Add(*view.MarketValue)
	}

	balances := balancesOf(user)
	totalUSD := decimal.Zero
	for _, currency := range []string{model.CurrencyUSD, model.CurrencyHKD, model.CurrencyCNY} {
		amount := balances[currency].TotalCash.Add(positionsValue[currency])
		if amount.IsZero() {
			continue
		}
		converted, err := a.rates.Convert(amount, currency, model.CurrencyUSD)
		if err != nil {
			return nil, err
		}
		totalUSD = totalUSD.Add(converted)
	}

	return &AccountOverview{
		UserID:             user.ID,
		Username:           user.Username,
		Balances:           balances,
		Positions:          views,
		PositionsValue:     positionsValue,
		TotalAssetsUSD:     totalUSD.Round(2),
		MarketDataDegraded: degraded,
	}, nil
}

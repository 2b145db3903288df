package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/model"
	"github.com/ken196502/strategy-simulator/biz/quote"
)

// SnapshotService 每日资产快照：从成交流水重放出任意历史日的现金与持仓，
// 逐日估值后落库。同一 (user, date) 重复生成会覆盖，结果是幂等的。
type SnapshotService struct {
	db     *gorm.DB
	prices PriceSource
	rates  CurrencyConverter
	closes *quote.CloseCache
	log    *zap.Logger
}

func NewSnapshotService(db *gorm.DB, prices PriceSource, rates CurrencyConverter,
	closes *quote.CloseCache, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if closes == nil {
		closes = quote.NewCloseCache()
	}
	return &SnapshotService{db: db, prices: prices, rates: rates, closes: closes, log: logger}
}

type replayHolding struct {
	symbol    string
	market    string
	quantity  int64
	lastPrice decimal.Decimal
}

// GenerateDailySnapshot 生成截至 targetDate（含）的全部快照并返回目标日那条
// targetDate 为空时取 UTC 今天。快照日期集合为 目标日 ∪ 所有不晚于目标日的成交日。
func (s *SnapshotService) GenerateDailySnapshot(ctx context.Context, userID uint, targetDate string) (*model.DailyAssetSnapshot, error) {
	if targetDate == "" {
		targetDate = time.Now().UTC().Format(model.SnapshotDateLayout)
	}
	if _, err := time.Parse(model.SnapshotDateLayout, targetDate); err != nil {
		return nil, fmt.Errorf("invalid snapshot date %q: %w", targetDate, err)
	}

	user, err := pg.GetUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrUserNotFound, userID)
	}

	trades, err := pg.ListTradesAsc(s.db, userID)
	if err != nil {
		return nil, err
	}

	// 快照日期集合：目标日 + 不晚于目标日的成交日，升序
	dateSet := map[string]struct{}{targetDate: {}}
	for _, t := range trades {
		d := t.TradeTime.UTC().Format(model.SnapshotDateLayout)
		if d <= targetDate {
			dateSet[d] = struct{}{}
		}
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	// 现金从初始资金起步，单调推进成交游标，整段重放只扫一遍流水
	cash := map[string]decimal.Decimal{
		model.CurrencyUSD: user.InitialCapital(model.CurrencyUSD),
		model.CurrencyHKD: user.InitialCapital(model.CurrencyHKD),
		model.CurrencyCNY: user.InitialCapital(model.CurrencyCNY),
	}
	holdings := make(map[string]*replayHolding)
	cursor := 0

	var last *model.DailyAssetSnapshot
	for _, date := range dates {
		for cursor < len(trades) {
			t := trades[cursor]
			if t.TradeTime.UTC().Format(model.SnapshotDateLayout) > date {
				break
			}
			s.applyTrade(cash, holdings, &t)
			cursor++
		}

		snapshot, err := s.valueDay(ctx, userID, date, cash, holdings)
		if err != nil {
			return nil, err
		}
		if err := pg.UpsertDailySnapshot(s.db, snapshot); err != nil {
			return nil, err
		}
		last = snapshot
	}

	s.log.Info("daily snapshots generated",
		zap.Uint("user_id", userID),
		zap.String("target_date", targetDate),
		zap.Int("days", len(dates)))
	return last, nil
}

func (s *SnapshotService) applyTrade(cash map[string]decimal.Decimal, holdings map[string]*replayHolding, t *model.Trade) {
	currency, ok := model.CurrencyForMarket(t.Market)
	if !ok {
		return
	}
	key := t.Symbol + "::" + t.Market
	h, exists := holdings[key]
	if !exists {
		h = &replayHolding{symbol: t.Symbol, market: t.Market}
		holdings[key] = h
	}
	notional := t.Price.Mul(decimal.NewFromInt(t.Quantity))
	if t.Side == model.SideBuy {
		cash[currency] = cash[currency].Sub(notional).Sub(t.Commission)
		h.quantity += t.Quantity
	} else {
		cash[currency] = cash[currency].Add(notional).Sub(t.Commission)
		h.quantity -= t.Quantity
	}
	h.lastPrice = t.Price
}

// valueDay 对某日的持仓估值并折算 USD 总资产
// 估值价逐级回退：当日收盘缓存 -> 日线表 -> 该持仓最后成交价 -> 实时行情（并回填日线表）
// 全部失败时跳过该持仓并告警，该持仓当日市值按 0 计
func (s *SnapshotService) valueDay(ctx context.Context, userID uint, date string,
	cash map[string]decimal.Decimal, holdings map[string]*replayHolding) (*model.DailyAssetSnapshot, error) {

	positions := map[string]decimal.Decimal{
		model.CurrencyUSD: decimal.Zero,
		model.CurrencyHKD: decimal.Zero,
		model.CurrencyCNY: decimal.Zero,
	}

	for _, h := range holdings {
		if h.quantity <= 0 {
			continue
		}
		currency, ok := model.CurrencyForMarket(h.market)
		if !ok {
			continue
		}
		price, found := s.priceForDay(ctx, h, date)
		if !found {
			s.log.Warn("no valuation price, skipping holding",
				zap.Uint("user_id", userID),
				zap.String("symbol", h.symbol),
				zap.String("date", date))
			continue
		}
		positions[currency] = positions[currency].Add(price.Mul(decimal.NewFromInt(h.quantity)))
	}

	totalUSD := decimal.Zero
	for _, currency := range []string{model.CurrencyUSD, model.CurrencyHKD, model.CurrencyCNY} {
		amount := cash[currency].Add(positions[currency])
		if amount.IsZero() {
			continue
		}
		converted, err := s.rates.Convert(amount, currency, model.CurrencyUSD)
		if err != nil {
			return nil, err
		}
		totalUSD = totalUSD.Add(converted)
	}

	return &model.DailyAssetSnapshot{
		UserID:         userID,
		SnapshotDate:   date,
		CashUSD:        cash[model.CurrencyUSD].Round(2),
		CashHKD:        cash[model.CurrencyHKD].Round(2),
		CashCNY:        cash[model.CurrencyCNY].Round(2),
		PositionsUSD:   positions[model.CurrencyUSD].Round(2),
		PositionsHKD:   positions[model.CurrencyHKD].Round(2),
		PositionsCNY:   positions[model.CurrencyCNY].Round(2),
		TotalAssetsUSD: totalUSD.Round(2),
	}, nil
}

func (s *SnapshotService) priceForDay(ctx context.Context, h *replayHolding, date string) (decimal.Decimal, bool) {
	if price, ok := s.closes.Get(h.symbol, h.market, date); ok {
		return price, true
	}
	if price, ok, err := pg.GetDailyPrice(s.db, h.symbol, h.market, date); err == nil && ok {
		s.closes.Set(h.symbol, h.market, date, price)
		return price, true
	}
	if h.lastPrice.GreaterThan(decimal.Zero) {
		return h.lastPrice, true
	}
	// 最后兜底实时行情，并按该日期回填日线表
	if s.prices != nil {
		if price, err := s.prices.LastPrice(ctx, h.symbol, h.market); err == nil && price.GreaterThan(decimal.Zero) {
			if err := pg.UpsertDailyPrice(s.db, h.symbol, h.market, date, price); err != nil {
				s.log.Warn("daily price backfill failed",
					zap.String("symbol", h.symbol), zap.Error(err))
			}
			s.closes.Set(h.symbol, h.market, date, price)
			return price, true
		}
	}
	return decimal.Zero, false
}

// TrendPoint 资产走势的一个点，变化额以 USD 计
type TrendPoint struct {
	Date                string                     `json:"date"`
	TotalAssetsUSD      decimal.Decimal            `json:"total_assets_usd"`
	DailyChangeUSD      decimal.Decimal            `json:"daily_change_usd"`
	CumulativeChangeUSD decimal.Decimal            `json:"cumulative_change_usd"`
	CashUSD             decimal.Decimal            `json:"cash_usd"`
	CashBreakdown       map[string]decimal.Decimal `json:"cash_breakdown"`
	PositionsUSD        decimal.Decimal            `json:"positions_usd"`
	PositionsBreakdown  map[string]decimal.Decimal `json:"positions_breakdown"`
}

// GetAssetTrend 按日期升序输出资产走势，基于已生成的快照
func (s *SnapshotService) GetAssetTrend(ctx context.Context, userID uint) ([]TrendPoint, error) {
	snapshots, err := pg.GetSnapshotsForUser(s.db, userID)
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(snapshots))
	var prev, first decimal.Decimal
	for i, snap := range snapshots {
		cashUSD, err := s.sumInUSD(snap.CashUSD, snap.CashHKD, snap.CashCNY)
		if err != nil {
			return nil, err
		}
		positionsUSD, err := s.sumInUSD(snap.PositionsUSD, snap.PositionsHKD, snap.PositionsCNY)
		if err != nil {
			return nil, err
		}

		point := TrendPoint{
			Date:           snap.SnapshotDate,
			TotalAssetsUSD: snap.TotalAssetsUSD,
			CashUSD:        cashUSD.Round(2),
			CashBreakdown: map[string]decimal.Decimal{
				"usd": snap.CashUSD,
				"hkd": snap.CashHKD,
				"cny": snap.CashCNY,
			},
			PositionsUSD: positionsUSD.Round(2),
			PositionsBreakdown: map[string]decimal.Decimal{
				"usd": snap.PositionsUSD,
				"hkd": snap.PositionsHKD,
				"cny": snap.PositionsCNY,
			},
		}
		if i == 0 {
			first = snap.TotalAssetsUSD
			point.DailyChangeUSD = decimal.Zero
			point.CumulativeChangeUSD = decimal.Zero
		} else {
			point.DailyChangeUSD = snap.TotalAssetsUSD.Sub(prev)
			point.CumulativeChangeUSD = snap.TotalAssetsUSD.Sub(first)
		}
		prev = snap.TotalAssetsUSD
		points = append(points, point)
	}
	return points, nil
}

func (s *SnapshotService) sumInUSD(usd, hkd, cny decimal.Decimal) (decimal.Decimal, error) {
	total := usd
	for _, part := range []struct {
		amount   decimal.Decimal
		currency string
	}{
		{hkd, model.CurrencyHKD},
		{cny, model.CurrencyCNY},
	} {
		if part.amount.IsZero() {
			continue
		}
		converted, err := s.rates.Convert(part.amount, part.currency, model.CurrencyUSD)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(converted)
	}
	return total, nil
}

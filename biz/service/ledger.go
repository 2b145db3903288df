package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	redisDal "github.com/ken196502/strategy-simulator/biz/dal/redis"
	"github.com/ken196502/strategy-simulator/biz/model"
	"github.com/ken196502/strategy-simulator/util"
)

// PriceSource 最新价预言机，可能失败或不可用
type PriceSource interface {
	LastPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error)
}

// HKStockInfoSource 港股证券信息：规范化代码、名称、每手股数
type HKStockInfoSource interface {
	StockInfo(ctx context.Context, symbol string) (resolvedSymbol, name string, lotSize int64, err error)
}

// Ledger 订单与多币种资金账本
// 下单冻结、执行、撤单都在单个 GORM 事务内完成，同一用户的变更经 per-user 锁串行化
type Ledger struct {
	db     *gorm.DB
	prices PriceSource
	hkInfo HKStockInfoSource
	log    *zap.Logger
	feed   *TradeFeed
	onFill func(userID uint)

	userLocks sync.Map // map[uint]*sync.Mutex
}

func NewLedger(db *gorm.DB, prices PriceSource, hkInfo HKStockInfoSource, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		db:     db,
		prices: prices,
		hkInfo: hkInfo,
		log:    logger,
	}
}

// SetTradeFeed 挂上成交事件推送（可选）
func (l *Ledger) SetTradeFeed(feed *TradeFeed) {
	l.feed = feed
}

// SetFillHook 成交后的回调，用于向在线会话推账户变动（可选）
func (l *Ledger) SetFillHook(fn func(userID uint)) {
	l.onFill = fn
}

func (l *Ledger) lockUser(userID uint) *sync.Mutex {
	mu, _ := l.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// commissionFor 佣金 = max(佣金率 × 成交额, 最低佣金)
func commissionFor(cfg *model.TradingConfig, notional decimal.Decimal) decimal.Decimal {
	pct := notional.Mul(cfg.CommissionRate)
	if pct.LessThan(cfg.MinCommission) {
		return cfg.MinCommission
	}
	return pct
}

// PlaceOrder 下单
//
// BUY：按参考价冻结 预估成交额+佣金，从 current_cash 划转到 frozen_cash
// SELL：校验并预占 available_quantity
// 校验按序短路：配置 -> 数量 -> 行情 -> 资金/持仓，失败直接拒单，不产生订单
func (l *Ledger) PlaceOrder(ctx context.Context, userID uint, symbol, name, market, side, orderType string,
	price *decimal.Decimal, quantity int64) (*model.Order, error) {

	cfg, err := l.getConfig(market)
	if err != nil {
		return nil, err
	}

	resolvedSymbol := symbol
	resolvedName := name
	if resolvedName == "" {
		resolvedName = symbol
	}

	// 数量校验：港股按证券实际手数，其他市场按配置手数
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	if market == model.MarketHK {
		infoSymbol, infoName, lot, err := l.hkInfo.StockInfo(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup hk lot size for %s: %v", ErrInvalidQuantity, symbol, err)
		}
		resolvedSymbol = infoSymbol
		if infoName != "" {
			resolvedName = infoName
		}
		if quantity%lot != 0 {
			return nil, fmt.Errorf("%w: hk stock %s trades in lots of %d", ErrInvalidQuantity, resolvedSymbol, lot)
		}
		if quantity < lot {
			return nil, fmt.Errorf("%w: hk stock %s requires at least one lot (%d shares)", ErrInvalidQuantity, resolvedSymbol, lot)
		}
	} else {
		if quantity%cfg.LotSize != 0 {
			return nil, fmt.Errorf("%w: quantity must be a multiple of lot_size=%d", ErrInvalidQuantity, cfg.LotSize)
		}
		if quantity < cfg.MinOrderQuantity {
			return nil, fmt.Errorf("%w: quantity must be >= min_order_quantity=%d", ErrInvalidQuantity, cfg.MinOrderQuantity)
		}
	}

	marketPrice, err := l.prices.LastPrice(ctx, resolvedSymbol, market)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, resolvedSymbol, err)
	}

	// 参考价：BUY 限价单用限价，SELL 限价单保守取 min(限价, 市价)
	refPrice := marketPrice
	if orderType == model.OrderTypeLimit && price != nil {
		if side == model.SideBuy {
			refPrice = *price
		} else if price.LessThan(marketPrice) {
			refPrice = *price
		}
	}

	orderNo, err := util.GenerateOrderNo()
	if err != nil {
		return nil, fmt.Errorf("generate order no: %w", err)
	}

	mu := l.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	var order *model.Order
	err = l.db.Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			return fmt.Errorf("%w: id=%d", ErrUserNotFound, userID)
		}

		switch side {
		case model.SideBuy:
			currentCash, frozenCash, err := user.Cash(market)
			if err != nil {
				return err
			}
			estimatedNotional := refPrice.Mul(decimal.NewFromInt(quantity))
			estimatedCommission := commissionFor(cfg, estimatedNotional)
			cashNeeded := estimatedNotional.Add(estimatedCommission)
			if currentCash.LessThan(cashNeeded) {
				return fmt.Errorf("%w: need %s, have %s %s", ErrInsufficientCash, cashNeeded, currentCash, market)
			}
			// 冻结即划转：current -> frozen，总额不变
			if err := user.SetCash(market, currentCash.Sub(cashNeeded), frozenCash.Add(cashNeeded)); err != nil {
				return err
			}
			if err := tx.Save(&user).Error; err != nil {
				return err
			}

		case model.SideSell:
			var pos model.Position
			err := tx.Where("user_id = ? AND symbol = ? AND market = ?", userID, resolvedSymbol, market).First(&pos).Error
			if err != nil {
				return fmt.Errorf("%w: need %d, have 0", ErrInsufficientPosition, quantity)
			}
			if pos.AvailableQuantity < quantity {
				return fmt.Errorf("%w: need %d, have %d", ErrInsufficientPosition, quantity, pos.AvailableQuantity)
			}
			// 下单即预占可卖数量，避免并发双卖
			pos.AvailableQuantity -= quantity
			if err := tx.Save(&pos).Error; err != nil {
				return err
			}

		default:
			return ErrInvalidSide
		}

		order = &model.Order{
			OrderNo:   orderNo,
			UserID:    userID,
			Symbol:    resolvedSymbol,
			Name:      resolvedName,
			Market:    market,
			Side:      side,
			OrderType: orderType,
			Quantity:  quantity,
			Status:    model.OrderStatusPending,
		}
		if price != nil {
			order.Price = decimal.NewNullDecimal(*price)
		}
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, err
	}

	cachePendingOrder(userID, orderNo)
	l.log.Info("order placed",
		zap.String("order_no", order.OrderNo),
		zap.Uint("user_id", userID),
		zap.String("symbol", order.Symbol),
		zap.String("side", side),
		zap.Int64("quantity", quantity))
	return order, nil
}

// ExecuteOrder 尝试执行一个 PENDING 订单
//
// 返回 (true, nil) 表示成交；(false, nil) 表示条件未满足（价格不可得、价格不利、资金/持仓不足），
// 订单留在 PENDING 等待下一轮重试。非 PENDING 订单是幂等空操作。
func (l *Ledger) ExecuteOrder(ctx context.Context, order *model.Order) (bool, error) {
	if order == nil || order.Status != model.OrderStatusPending {
		return false, nil
	}

	executionPrice, err := l.prices.LastPrice(ctx, order.Symbol, order.Market)
	if err != nil {
		l.log.Debug("execution skipped, price unavailable",
			zap.String("order_no", order.OrderNo), zap.Error(err))
		return false, nil
	}

	cfg, err := l.getConfig(order.Market)
	if err != nil {
		return false, nil
	}

	mu := l.lockUser(order.UserID)
	mu.Lock()
	defer mu.Unlock()

	executed := false
	var filledTrade *model.Trade
	err = l.db.Transaction(func(tx *gorm.DB) error {
		// 以库内状态为准，PENDING 检查就是并发去重闸门
		var current model.Order
		if err := tx.Where("id = ?", order.ID).First(&current).Error; err != nil {
			return err
		}
		if current.Status != model.OrderStatusPending {
			return nil
		}

		orderPrice := executionPrice
		if current.Price.Valid {
			orderPrice = current.Price.Decimal
		}

		var user model.User
		if err := tx.Where("id = ?", current.UserID).First(&user).Error; err != nil {
			return err
		}
		currentCash, frozenCash, err := user.Cash(current.Market)
		if err != nil {
			return err
		}

		qty := decimal.NewFromInt(current.Quantity)
		notional := executionPrice.Mul(qty)
		commission := commissionFor(cfg, notional)

		switch current.Side {
		case model.SideBuy:
			// 限价买：愿付价必须不低于市价
			if orderPrice.LessThan(executionPrice) {
				return nil
			}
			// 解冻额按下单时的冻结口径重算，封顶为当前冻结额
			refPrice := executionPrice
			if current.Price.Valid && current.Price.Decimal.GreaterThan(executionPrice) {
				refPrice = current.Price.Decimal
			}
			estimatedNotional := refPrice.Mul(qty)
			estimatedFrozen := estimatedNotional.Add(commissionFor(cfg, estimatedNotional))
			release := estimatedFrozen
			if frozenCash.LessThan(release) {
				release = frozenCash
			}

			totalCost := notional.Add(commission)
			available := currentCash.Add(release)
			if available.LessThan(totalCost) {
				return nil
			}
			if err := user.SetCash(current.Market, available.Sub(totalCost), frozenCash.Sub(release)); err != nil {
				return err
			}
			if err := tx.Save(&user).Error; err != nil {
				return err
			}

			var pos model.Position
			err := tx.Where("user_id = ? AND symbol = ? AND market = ?",
				current.UserID, current.Symbol, current.Market).First(&pos).Error
			if err == gorm.ErrRecordNotFound {
				pos = model.Position{
					UserID:  current.UserID,
					Symbol:  current.Symbol,
					Market:  current.Market,
					Name:    current.Name,
					AvgCost: decimal.Zero,
				}
			} else if err != nil {
				return err
			}

			// 加权平均成本
			oldQty := decimal.NewFromInt(pos.Quantity)
			if pos.Quantity == 0 {
				pos.AvgCost = executionPrice
			} else {
				pos.AvgCost = pos.AvgCost.Mul(oldQty).Add(notional).Div(oldQty.Add(qty))
			}
			pos.Quantity += current.Quantity
			pos.AvailableQuantity += current.Quantity
			if err := tx.Save(&pos).Error; err != nil {
				return err
			}

		case model.SideSell:
			// 限价卖：到手价必须不低于限价
			if orderPrice.GreaterThan(executionPrice) {
				return nil
			}
			var pos model.Position
			err := tx.Where("user_id = ? AND symbol = ? AND market = ?",
				current.UserID, current.Symbol, current.Market).First(&pos).Error
			if err != nil || pos.Quantity < current.Quantity {
				return nil
			}
			// available 在下单时已预占，这里只扣总量
			pos.Quantity -= current.Quantity
			if pos.AvailableQuantity > pos.Quantity {
				pos.AvailableQuantity = pos.Quantity
			}
			if err := tx.Save(&pos).Error; err != nil {
				return err
			}
			gain := notional.Sub(commission)
			if err := user.SetCash(current.Market, currentCash.Add(gain), frozenCash); err != nil {
				return err
			}
			if err := tx.Save(&user).Error; err != nil {
				return err
			}

		default:
			return nil
		}

		trade := model.Trade{
			OrderID:      current.ID,
			UserID:       current.UserID,
			Symbol:       current.Symbol,
			Name:         current.Name,
			Market:       current.Market,
			Side:         current.Side,
			Price:        executionPrice,
			Quantity:     current.Quantity,
			Commission:   commission,
			ExchangeRate: decimal.NewFromInt(1),
			TradeTime:    time.Now().UTC(),
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}

		current.FilledQuantity = current.Quantity
		current.Status = model.OrderStatusFilled
		if err := tx.Save(&current).Error; err != nil {
			return err
		}

		order.Status = current.Status
		order.FilledQuantity = current.FilledQuantity
		filledTrade = &trade
		executed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !executed {
		return false, nil
	}

	removePendingOrder(order.UserID, order.OrderNo)
	if l.feed != nil {
		l.feed.Publish(*filledTrade)
	}
	if l.onFill != nil {
		l.onFill(order.UserID)
	}
	l.log.Info("order filled",
		zap.String("order_no", order.OrderNo),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.Int64("quantity", order.Quantity),
		zap.String("price", filledTrade.Price.String()),
		zap.String("commission", filledTrade.Commission.String()))
	return true, nil
}

// CancelOrder 撤销本人的 PENDING 订单，返回是否撤销成功（非 error 结果）
//
// BUY 按下单口径重算冻结额并解冻 min(重算值, 当前冻结)；行情取不到时保守不解冻。
// SELL 归还下单时预占的可卖数量。
func (l *Ledger) CancelOrder(ctx context.Context, orderNo string, userID uint) (bool, error) {
	mu := l.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	cancelled := false
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var order model.Order
		err := tx.Where("order_no = ? AND user_id = ? AND status = ?",
			orderNo, userID, model.OrderStatusPending).First(&order).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		switch order.Side {
		case model.SideBuy:
			release, ok := l.recomputeFrozen(ctx, &order)
			if ok && release.GreaterThan(decimal.Zero) {
				var user model.User
				if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
					return err
				}
				currentCash, frozenCash, err := user.Cash(order.Market)
				if err != nil {
					return err
				}
				if frozenCash.LessThan(release) {
					release = frozenCash
				}
				if err := user.SetCash(order.Market, currentCash.Add(release), frozenCash.Sub(release)); err != nil {
					return err
				}
				if err := tx.Save(&user).Error; err != nil {
					return err
				}
			}

		case model.SideSell:
			var pos model.Position
			err := tx.Where("user_id = ? AND symbol = ? AND market = ?",
				userID, order.Symbol, order.Market).First(&pos).Error
			if err == nil {
				pos.AvailableQuantity += order.Quantity
				if pos.AvailableQuantity > pos.Quantity {
					pos.AvailableQuantity = pos.Quantity
				}
				if err := tx.Save(&pos).Error; err != nil {
					return err
				}
			}
		}

		order.Status = model.OrderStatusCancelled
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		removePendingOrder(userID, orderNo)
		l.log.Info("order cancelled", zap.String("order_no", orderNo), zap.Uint("user_id", userID))
	}
	return cancelled, nil
}

// recomputeFrozen 按下单时的参考价逻辑重算冻结额；行情失败返回 ok=false，撤单时不解冻
func (l *Ledger) recomputeFrozen(ctx context.Context, order *model.Order) (decimal.Decimal, bool) {
	cfg, err := l.getConfig(order.Market)
	if err != nil {
		return decimal.Zero, false
	}
	marketPrice, err := l.prices.LastPrice(ctx, order.Symbol, order.Market)
	if err != nil {
		l.log.Warn("cancel release skipped, price unavailable",
			zap.String("order_no", order.OrderNo), zap.Error(err))
		return decimal.Zero, false
	}
	refPrice := marketPrice
	if order.OrderType == model.OrderTypeLimit && order.Price.Valid {
		if order.Side == model.SideBuy {
			refPrice = order.Price.Decimal
		} else if order.Price.Decimal.LessThan(marketPrice) {
			refPrice = order.Price.Decimal
		}
	}
	notional := refPrice.Mul(decimal.NewFromInt(order.Quantity))
	return notional.Add(commissionFor(cfg, notional)), true
}

// GetPendingOrders 全量 PENDING 订单，巡检器消费
func (l *Ledger) GetPendingOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := l.db.WithContext(ctx).Where("status = ?", model.OrderStatusPending).
		Order("created_at ASC").Find(&orders).Error
	return orders, err
}

func (l *Ledger) getConfig(market string) (*model.TradingConfig, error) {
	var cfg model.TradingConfig
	err := l.db.Where("market = ?", market).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, market)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Redis 侧的用户挂单集合镜像，未初始化 Redis 时跳过
func pendingOrdersKey(userID uint) string {
	return fmt.Sprintf("user:pending_orders:%d", userID)
}

func cachePendingOrder(userID uint, orderNo string) {
	if redisDal.Client == nil || orderNo == "" {
		return
	}
	ctx := context.Background()
	key := pendingOrdersKey(userID)
	redisDal.Client.SAdd(ctx, key, orderNo)
	redisDal.Client.Expire(ctx, key, 24*time.Hour)
}

func removePendingOrder(userID uint, orderNo string) {
	if redisDal.Client == nil || orderNo == "" {
		return
	}
	redisDal.Client.SRem(context.Background(), pendingOrdersKey(userID), orderNo)
}

// PendingOrderNos 用户挂单号集合，优先读 Redis 镜像，未命中回源数据库
func (l *Ledger) PendingOrderNos(ctx context.Context, userID uint) ([]string, error) {
	if redisDal.Client != nil {
		nos, err := redisDal.Client.SMembers(ctx, pendingOrdersKey(userID)).Result()
		if err == nil && len(nos) > 0 {
			return nos, nil
		}
	}
	var nos []string
	err := l.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ? AND status = ?", userID, model.OrderStatusPending).
		Order("created_at ASC").Pluck("order_no", &nos).Error
	return nos, err
}

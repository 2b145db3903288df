package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// OrderMonitor 挂单巡检器：固定间隔扫描全部 PENDING 订单并发尝试执行
// 单笔失败只影响该笔，扫描总能跑完，错过的订单等下一轮
type OrderMonitor struct {
	ledger   *Ledger
	interval time.Duration
	pool     *ants.Pool
	log      *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewOrderMonitor(ledger *Ledger, interval time.Duration, workers int, logger *zap.Logger) (*OrderMonitor, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if workers <= 0 {
		workers = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &OrderMonitor{
		ledger:   ledger,
		interval: interval,
		pool:     pool,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start 启动后台巡检循环
func (m *OrderMonitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.log.Info("order monitor started", zap.Duration("interval", m.interval))
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.RunOnce(context.Background())
			}
		}
	}()
}

// RunOnce 扫描一轮，返回本轮成交笔数
func (m *OrderMonitor) RunOnce(ctx context.Context) int {
	orders, err := m.ledger.GetPendingOrders(ctx)
	if err != nil {
		m.log.Error("pending order scan failed", zap.Error(err))
		return 0
	}
	if len(orders) == 0 {
		return 0
	}

	var executed int64
	var wg sync.WaitGroup
	for i := range orders {
		order := orders[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			ok, err := m.ledger.ExecuteOrder(ctx, &order)
			if err != nil {
				m.log.Error("order execution failed",
					zap.String("order_no", order.OrderNo), zap.Error(err))
				return
			}
			if ok {
				atomic.AddInt64(&executed, 1)
			}
		}
		if err := m.pool.Submit(task); err != nil {
			// 池已关闭等情况退化为同步执行，保证 wg 平衡
			task()
		}
	}
	wg.Wait()

	if executed > 0 {
		m.log.Info("order sweep finished",
			zap.Int("pending", len(orders)),
			zap.Int64("executed", executed))
	}
	return int(executed)
}

// Stop 停止巡检并释放协程池，等待当前一轮结束
func (m *OrderMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	select {
	case <-m.done:
	case <-time.After(10 * time.Second):
		m.log.Warn("order monitor stop timed out")
	}
	m.pool.Release()
}

package service

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hashicorp/consul/api"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/model"
	"github.com/ken196502/strategy-simulator/biz/quote"
)

// DailyCloseSource 日线收盘价来源，取不到当日收盘时退回最新价
type DailyCloseSource interface {
	DailyClose(ctx context.Context, symbol, market string) (decimal.Decimal, error)
	LastPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error)
}

// CloseRecorder 每日收盘价补录：把所有有持仓的标的当日收盘价写进日线表
// 快照重放估值优先消费这张表，避免历史日反复打行情接口
type CloseRecorder struct {
	db     *gorm.DB
	source DailyCloseSource
	closes *quote.CloseCache
}

func NewCloseRecorder(db *gorm.DB, source DailyCloseSource, closes *quote.CloseCache) *CloseRecorder {
	if closes == nil {
		closes = quote.NewCloseCache()
	}
	return &CloseRecorder{db: db, source: source, closes: closes}
}

// RecordDailyCloses 补录一轮，返回成功条数
func (r *CloseRecorder) RecordDailyCloses(ctx context.Context) int {
	held, err := pg.ListHeldSymbols(r.db)
	if err != nil {
		hlog.Errorf("收盘价补录查询持仓失败: %v", err)
		return 0
	}

	today := time.Now().UTC().Format(model.SnapshotDateLayout)
	recorded := 0
	for _, pos := range held {
		price, err := r.source.DailyClose(ctx, pos.Symbol, pos.Market)
		if err != nil {
			price, err = r.source.LastPrice(ctx, pos.Symbol, pos.Market)
		}
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			hlog.Warnf("收盘价获取失败 symbol=%s market=%s: %v", pos.Symbol, pos.Market, err)
			continue
		}
		if err := pg.UpsertDailyPrice(r.db, pos.Symbol, pos.Market, today, price); err != nil {
			hlog.Errorf("收盘价落库失败 symbol=%s: %v", pos.Symbol, err)
			continue
		}
		r.closes.Set(pos.Symbol, pos.Market, today, price)
		recorded++
	}
	if recorded > 0 {
		hlog.Infof("收盘价补录完成 date=%s recorded=%d total=%d", today, recorded, len(held))
	}
	return recorded
}

// StartDailyCloseTask 启动每小时一轮的收盘价补录任务
// 多实例部署时经 Consul 分布式锁保证同一轮只有一个实例执行；consulClient 为 nil 时单机直跑
func StartDailyCloseTask(recorder *CloseRecorder, consulClient *api.Client) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			<-ticker.C
			if consulClient == nil {
				recorder.RecordDailyCloses(context.Background())
				continue
			}
			lock, err := acquireConsulLock(consulClient, "daily_close_lock")
			if err != nil {
				hlog.Warnf("收盘价补录任务获取Consul锁失败: %v", err)
				continue
			}
			if lock == nil {
				continue
			}
			recorder.RecordDailyCloses(context.Background())
			_ = lock.Unlock()
		}
	}()
}

// acquireConsulLock 获取分布式锁
func acquireConsulLock(client *api.Client, key string) (*api.Lock, error) {
	lock, err := client.LockOpts(&api.LockOptions{
		Key:          key,
		LockTryOnce:  true,
		LockWaitTime: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	stopCh := make(chan struct{})
	leaderCh, err := lock.Lock(stopCh)
	if err != nil || leaderCh == nil {
		return nil, nil // 未获取到锁
	}
	return lock, nil
}

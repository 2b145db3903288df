package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"

	kafkaDal "github.com/ken196502/strategy-simulator/biz/dal/kafka"
	"github.com/ken196502/strategy-simulator/biz/model"
)

const (
	tradeFeedBuffer   = 10000
	tradeFeedBatchMax = 100
	tradeFeedFlushGap = 10 * time.Millisecond
)

// TradeFeed 成交流水异步批量写 Kafka
// 写入走内存通道，后台按 条数/时间 双阈值刷批，进程退出时 Shutdown 排空
type TradeFeed struct {
	writer *kafka.Writer
	events chan model.Trade

	closeOnce sync.Once
	done      chan struct{}
}

func NewTradeFeed(topic string) *TradeFeed {
	f := &TradeFeed{
		writer: kafkaDal.GetWriter(topic),
		events: make(chan model.Trade, tradeFeedBuffer),
		done:   make(chan struct{}),
	}
	go f.loop()
	return f
}

// Publish 投递一笔成交，缓冲满时丢弃并告警，不阻塞成交路径
func (f *TradeFeed) Publish(trade model.Trade) {
	select {
	case f.events <- trade:
	default:
		hlog.Warnf("trade feed buffer full, dropping trade order_id=%d", trade.OrderID)
	}
}

// Shutdown 关闭进料并等待缓冲排空
func (f *TradeFeed) Shutdown() {
	f.closeOnce.Do(func() {
		close(f.events)
	})
	<-f.done
}

func (f *TradeFeed) loop() {
	defer close(f.done)

	batch := make([]kafka.Message, 0, tradeFeedBatchMax)
	ticker := time.NewTicker(tradeFeedFlushGap)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := f.writer.WriteMessages(ctx, batch...); err != nil {
			hlog.Errorf("trade feed write failed: %v", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case trade, ok := <-f.events:
			if !ok {
				flush()
				return
			}
			payload, err := json.Marshal(trade)
			if err != nil {
				hlog.Errorf("trade feed marshal failed: %v", err)
				continue
			}
			batch = append(batch, kafka.Message{
				Key:   []byte(trade.Symbol),
				Value: payload,
			})
			if len(batch) >= tradeFeedBatchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

package quote

import (
	"sync"

	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// CloseCache 进程内日线收盘价缓存
// 每个 symbol::market 一条按日期升序的跳表，支持精确和向下取整（最近一个不晚于目标日期）查询
type CloseCache struct {
	mu    sync.RWMutex
	lists map[string]*skiplist.SkipList
}

func NewCloseCache() *CloseCache {
	return &CloseCache{lists: make(map[string]*skiplist.SkipList)}
}

func closeCacheKey(symbol, market string) string {
	return symbol + "::" + market
}

// Set 记录某日收盘价
func (c *CloseCache) Set(symbol, market, date string, price decimal.Decimal) {
	key := closeCacheKey(symbol, market)
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[key]
	if !ok {
		list = skiplist.New(skiplist.String)
		c.lists[key] = list
	}
	list.Set(date, price)
}

// Get 精确查询某日收盘价
func (c *CloseCache) Get(symbol, market, date string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list, ok := c.lists[closeCacheKey(symbol, market)]
	if !ok {
		return decimal.Zero, false
	}
	elem := list.Get(date)
	if elem == nil {
		return decimal.Zero, false
	}
	return elem.Value.(decimal.Decimal), true
}

// Floor 返回不晚于 date 的最近一个收盘价及其日期
func (c *CloseCache) Floor(symbol, market, date string) (string, decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list, ok := c.lists[closeCacheKey(symbol, market)]
	if !ok {
		return "", decimal.Zero, false
	}
	var (
		foundDate  string
		foundPrice decimal.Decimal
		found      bool
	)
	for elem := list.Front(); elem != nil; elem = elem.Next() {
		d := elem.Key().(string)
		if d > date {
			break
		}
		foundDate = d
		foundPrice = elem.Value.(decimal.Decimal)
		found = true
	}
	return foundDate, foundPrice, found
}

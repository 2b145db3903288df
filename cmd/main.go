package main

import (
	"context"
	"log"
	"time"

	hertzserver "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hashicorp/consul/api"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/gzip"
	"github.com/hertz-contrib/logger/accesslog"
	"github.com/hertz-contrib/pprof"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ken196502/strategy-simulator/biz/dal"
	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/handler"
	"github.com/ken196502/strategy-simulator/biz/quote"
	"github.com/ken196502/strategy-simulator/biz/service"
	"github.com/ken196502/strategy-simulator/conf"
	"github.com/ken196502/strategy-simulator/server"
)

func main() {
	_ = godotenv.Load()
	cfg := conf.GetConf()
	hlog.SetLevel(conf.LogLevel())

	dal.Init()
	logger := service.NewLogger()
	defer logger.Sync()

	// 交易配置与演示账户
	if err := pg.SeedTradingConfigs(pg.GormDB); err != nil {
		log.Fatalf("seed trading configs failed: %v", err)
	}
	demoUser, err := pg.GetOrCreateUser(pg.GormDB, "demo",
		decimal.NewFromInt(100000), decimal.NewFromInt(780000), decimal.NewFromInt(720000))
	if err != nil {
		log.Fatalf("seed demo user failed: %v", err)
	}
	hlog.Infof("demo user ready, id=%d", demoUser.ID)

	// 行情链路：雪球客户端 + Redis 短缓存 + 东财港股信息 + 日线收盘缓存
	quoteClient := quote.NewClient(quote.Config{
		UserAgent: cfg.Quote.UserAgent,
		Referer:   cfg.Quote.Referer,
		Cookie:    cfg.Quote.Cookie,
	})
	prices := quote.NewCachedPrices(quoteClient, time.Duration(cfg.Quote.CacheTTLSeconds)*time.Second)
	hkInfo := quote.NewHKStockClient(10 * time.Second)
	closes := quote.NewCloseCache()

	rates := service.NewRateTable(pg.GormDB)
	if err := rates.Refresh(); err != nil {
		log.Fatalf("load exchange rates failed: %v", err)
	}

	ledger := service.NewLedger(pg.GormDB, prices, hkInfo, logger)
	feed := service.NewTradeFeed(cfg.Kafka.TradeTopic)
	ledger.SetTradeFeed(feed)
	ledger.SetFillHook(server.PushAccountUpdate)

	assets := service.NewAssetService(pg.GormDB, prices, rates, closes, logger)
	snapshots := service.NewSnapshotService(pg.GormDB, prices, rates, closes, logger)

	monitor, err := service.NewOrderMonitor(ledger,
		time.Duration(cfg.Monitor.IntervalSeconds)*time.Second, cfg.Monitor.Workers, logger)
	if err != nil {
		log.Fatalf("create order monitor failed: %v", err)
	}
	monitor.Start()

	// 收盘价补录任务，多实例时经 Consul 锁互斥
	recorder := service.NewCloseRecorder(pg.GormDB, quoteClient, closes)
	consul := registerService(cfg)
	service.StartDailyCloseTask(recorder, consul)

	handler.Init(ledger, snapshots, assets, quoteClient, hkInfo)
	server.InjectServices(ledger, assets, snapshots, quoteClient, hkInfo,
		func(userID uint, limit int) (interface{}, error) {
			return pg.ListTrades(pg.GormDB, userID, limit)
		})

	h := newServer(cfg)
	registerRoutes(h)
	server.RegisterWebSocket(h)

	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		monitor.Stop()
		feed.Shutdown()
	})
	h.Spin()
}

func newServer(cfg *conf.Config) *hertzserver.Hertz {
	h := hertzserver.New(hertzserver.WithHostPorts(cfg.Hertz.Address))
	h.Use(cors.Default())
	if cfg.Hertz.EnableGzip {
		h.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	if cfg.Hertz.EnableAccessLog {
		h.Use(accesslog.New())
	}
	if cfg.Hertz.EnablePprof {
		pprof.Register(h)
	}
	return h
}

func registerRoutes(h *hertzserver.Hertz) {
	api := h.Group("/api/v1")

	api.POST("/orders", handler.PlaceOrder)
	api.GET("/orders", handler.ListOrders)
	api.GET("/orders/:order_no", handler.GetOrder)
	api.POST("/orders/cancel", handler.CancelOrder)
	api.GET("/trades", handler.ListTrades)

	api.GET("/assets/balances", handler.GetBalances)
	api.GET("/assets/positions", handler.GetPositions)
	api.GET("/assets/overview", handler.GetOverview)
	api.GET("/assets/trend", handler.GetAssetTrend)
	api.POST("/assets/snapshot", handler.GenerateSnapshot)

	api.GET("/quote/kline", handler.GetKline)
	api.GET("/quote/last_price", handler.GetLastPrice)
	api.GET("/quote/hk_stock_info", handler.GetHKStockInfo)
	api.POST("/quote/cookie", handler.SetQuoteCookie)
}

// registerService 把本实例注册到 Consul，未配置注册中心时跳过
func registerService(cfg *conf.Config) *api.Client {
	if len(cfg.Registry.RegistryAddress) == 0 {
		return nil
	}
	helper, err := service.NewConsulHelperWithAddrs(cfg.Registry.RegistryAddress)
	if err != nil {
		hlog.Warnf("consul unavailable, running standalone: %v", err)
		return nil
	}
	nodeID := cfg.Registry.NodeID
	if nodeID == "" {
		nodeID = cfg.Hertz.Service
	}
	if err := helper.RegisterService(cfg.Hertz.Service, nodeID, cfg.Registry.ServicePort); err != nil {
		hlog.Warnf("consul registration failed: %v", err)
	}
	return helper.Client()
}

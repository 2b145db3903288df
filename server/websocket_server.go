package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/hertz-contrib/websocket"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/ken196502/strategy-simulator/biz/model"
	"github.com/ken196502/strategy-simulator/biz/quote"
	"github.com/ken196502/strategy-simulator/biz/service"
)

var upgrader = websocket.HertzUpgrader{
	CheckOrigin: func(ctx *app.RequestContext) bool {
		return true // 允许所有跨域 WebSocket 连接
	},
}

var pushPool *ants.Pool

func init() {
	pool, err := ants.NewPool(1024)
	if err != nil {
		panic(err)
	}
	pushPool = pool
}

// 用户到连接集合的注册表，一个用户可以开多个终端
var (
	userConnsMu sync.RWMutex
	userConns   = make(map[uint]map[*websocket.Conn]struct{})
	connWriteMu sync.Map // map[*websocket.Conn]*sync.Mutex
)

var (
	ledgerSvc   *service.Ledger
	assetSvc    *service.AssetService
	snapshotSvc *service.SnapshotService
	quoteClient *quote.Client
	hkInfo      *quote.HKStockClient
	dbTrades    func(userID uint, limit int) (interface{}, error)
)

// InjectServices 注入服务实例，必须在 RegisterWebSocket 之前调用
func InjectServices(ledger *service.Ledger, assets *service.AssetService, snapshots *service.SnapshotService,
	qc *quote.Client, hk *quote.HKStockClient, listTrades func(userID uint, limit int) (interface{}, error)) {
	ledgerSvc = ledger
	assetSvc = assets
	snapshotSvc = snapshots
	quoteClient = qc
	hkInfo = hk
	dbTrades = listTrades
}

func registerConn(userID uint, conn *websocket.Conn) {
	userConnsMu.Lock()
	if userConns[userID] == nil {
		userConns[userID] = make(map[*websocket.Conn]struct{})
	}
	userConns[userID][conn] = struct{}{}
	userConnsMu.Unlock()
	connWriteMu.Store(conn, &sync.Mutex{})
}

func unregisterConn(userID uint, conn *websocket.Conn) {
	userConnsMu.Lock()
	if conns, ok := userConns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(userConns, userID)
		}
	}
	userConnsMu.Unlock()
	connWriteMu.Delete(conn)
}

func writeConn(conn *websocket.Conn, msg []byte) error {
	v, ok := connWriteMu.Load(conn)
	if !ok {
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func sendJSON(conn *websocket.Conn, msgType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		log.Printf("[WS] marshal error: %v", err)
		return
	}
	if err := writeConn(conn, payload); err != nil {
		log.Printf("[WS] write error: %v", err)
	}
}

func sendError(conn *websocket.Conn, action string, err error) {
	sendJSON(conn, "error", map[string]string{"action": action, "message": err.Error()})
}

// PushAccountUpdate 把最新账户总览推给该用户的所有连接，成交后调用
func PushAccountUpdate(userID uint) {
	if assetSvc == nil {
		return
	}
	userConnsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(userConns[userID]))
	for conn := range userConns[userID] {
		conns = append(conns, conn)
	}
	userConnsMu.RUnlock()
	if len(conns) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	overview, err := assetSvc.GetOverview(ctx, userID)
	cancel()
	if err != nil {
		log.Printf("[WS] account overview failed for user %d: %v", userID, err)
		return
	}
	payload, err := json.Marshal(map[string]interface{}{"type": "account_update", "data": overview})
	if err != nil {
		return
	}

	for _, conn := range conns {
		c := conn
		err := pushPool.Submit(func() {
			success := false
			for i := 0; i < 3; i++ {
				if err := writeConn(c, payload); err != nil {
					log.Printf("[WS] push error: %v, retry %d", err, i+1)
				} else {
					success = true
					break
				}
			}
			if !success {
				log.Printf("[WS] push failed after retries, dropping conn: %v", c.RemoteAddr())
				unregisterConn(userID, c)
				_ = c.Close()
			}
		})
		if err != nil {
			log.Printf("[WS] pushPool.Submit error: %v", err)
		}
	}
}

type wsRequest struct {
	Action    string `json:"action"`
	UserID    uint   `json:"user_id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	OrderType string `json:"order_type"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	OrderNo   string `json:"order_no"`
	Date      string `json:"date"`
	Cookie    string `json:"cookie"`
	Limit     int    `json:"limit"`
}

// RegisterWebSocket 挂载 /ws 路由
// 会话协议：客户端先发 bootstrap 绑定 user_id，之后可下单、撤单、查快照、查成交，
// 成交与账户变动由服务端主动推送 account_update
func RegisterWebSocket(h *server.Hertz) {
	h.NoHijackConnPool = true
	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
			log.Printf("[WS] connection upgraded: %v", conn.RemoteAddr())
			var boundUser uint
			defer func() {
				if boundUser != 0 {
					unregisterConn(boundUser, conn)
				}
				_ = conn.Close()
				log.Printf("[WS] connection closed: %v", conn.RemoteAddr())
			}()

			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					break
				}
				var req wsRequest
				if err := json.Unmarshal(msg, &req); err != nil {
					sendError(conn, "", err)
					continue
				}
				boundUser = handleWSMessage(ctx, conn, boundUser, &req)
			}
		})
		if err != nil {
			log.Printf("[WS] upgrade error: %v", err)
		}
	})
}

// handleWSMessage 处理一条会话消息，返回当前绑定的 userID
func handleWSMessage(ctx context.Context, conn *websocket.Conn, boundUser uint, req *wsRequest) uint {
	switch req.Action {
	case "ping":
		sendJSON(conn, "pong", nil)
		return boundUser

	case "bootstrap":
		if req.UserID == 0 {
			sendError(conn, req.Action, errMissingUser)
			return boundUser
		}
		if boundUser != 0 && boundUser != req.UserID {
			unregisterConn(boundUser, conn)
		}
		registerConn(req.UserID, conn)
		overview, err := assetSvc.GetOverview(ctx, req.UserID)
		if err != nil {
			sendError(conn, req.Action, err)
			return req.UserID
		}
		pendingNos, err := ledgerSvc.PendingOrderNos(ctx, req.UserID)
		if err != nil {
			sendError(conn, req.Action, err)
			return req.UserID
		}
		sendJSON(conn, "account_snapshot", map[string]interface{}{
			"overview":          overview,
			"pending_order_nos": pendingNos,
		})
		return req.UserID

	case "place_order":
		if boundUser == 0 {
			sendError(conn, req.Action, errNotBound)
			return boundUser
		}
		var price *decimal.Decimal
		if req.Price != "" {
			parsed, err := decimal.NewFromString(req.Price)
			if err != nil {
				sendError(conn, req.Action, err)
				return boundUser
			}
			price = &parsed
		}
		order, err := ledgerSvc.PlaceOrder(ctx, boundUser, req.Symbol, req.Name, req.Market,
			req.Side, req.OrderType, price, req.Quantity)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		executed, err := ledgerSvc.ExecuteOrder(ctx, order)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		sendJSON(conn, "order_ack", map[string]interface{}{"order": order, "executed": executed})
		PushAccountUpdate(boundUser)
		return boundUser

	case "cancel_order":
		if boundUser == 0 {
			sendError(conn, req.Action, errNotBound)
			return boundUser
		}
		cancelled, err := ledgerSvc.CancelOrder(ctx, req.OrderNo, boundUser)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		sendJSON(conn, "cancel_ack", map[string]interface{}{"order_no": req.OrderNo, "cancelled": cancelled})
		if cancelled {
			PushAccountUpdate(boundUser)
		}
		return boundUser

	case "get_snapshot":
		if boundUser == 0 {
			sendError(conn, req.Action, errNotBound)
			return boundUser
		}
		date := req.Date
		if date == "" {
			date = time.Now().UTC().Format(model.SnapshotDateLayout)
		}
		snapshot, err := snapshotSvc.GenerateDailySnapshot(ctx, boundUser, date)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		sendJSON(conn, "daily_snapshot", snapshot)
		return boundUser

	case "get_trend":
		if boundUser == 0 {
			sendError(conn, req.Action, errNotBound)
			return boundUser
		}
		today := time.Now().UTC().Format(model.SnapshotDateLayout)
		if _, err := snapshotSvc.GenerateDailySnapshot(ctx, boundUser, today); err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		trend, err := snapshotSvc.GetAssetTrend(ctx, boundUser)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		sendJSON(conn, "asset_trend", trend)
		return boundUser

	case "get_trades":
		if boundUser == 0 {
			sendError(conn, req.Action, errNotBound)
			return boundUser
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 50
		}
		trades, err := dbTrades(boundUser, limit)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		sendJSON(conn, "trades", trades)
		return boundUser

	case "get_hk_stock_info":
		info, err := hkInfo.Info(ctx, req.Symbol)
		if err != nil {
			sendError(conn, req.Action, err)
			return boundUser
		}
		sendJSON(conn, "hk_stock_info", info)
		return boundUser

	case "set_quote_cookie":
		if req.Cookie == "" {
			sendError(conn, req.Action, errMissingCookie)
			return boundUser
		}
		quoteClient.SetCookieString(req.Cookie)
		sendJSON(conn, "cookie_ack", map[string]bool{"has_cookie": quoteClient.HasAnyCookie()})
		return boundUser

	default:
		sendError(conn, req.Action, errUnknownAction)
		return boundUser
	}
}

package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ErrQuoteUnavailable 行情不可用（网络失败、cookie 失效、响应异常）
var ErrQuoteUnavailable = errors.New("quote data unavailable")

const defaultKlineURL = "https://stock.xueqiu.com/v5/stock/chart/kline.json"

// KlineBar 单根 K 线
type KlineBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Config 雪球客户端配置
type Config struct {
	UserAgent string
	Referer   string
	Cookie    string
	Timeout   time.Duration
}

// Client 雪球分钟级 K 线客户端
// cookie 状态显式保存在实例上，通过 SetCookieString 更新，失效自动清除
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	referer    string

	mu               sync.Mutex
	cookieString     string
	hasUserCookie    bool
	envCookieInvalid bool
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	referer := cfg.Referer
	if referer == "" {
		referer = "https://xueqiu.com"
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultKlineURL,
		userAgent:  ua,
		referer:    referer,
	}
	if cfg.Cookie != "" {
		c.SetCookieString(cfg.Cookie)
	}
	return c
}

// FormatSymbol 转换为雪球接口代码：港股数字补零到 5 位，A 股加 SH/SZ/BJ 前缀
func FormatSymbol(symbol, market string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(sym, ".") {
		return sym
	}
	switch market {
	case "HK":
		for len(sym) < 5 {
			sym = "0" + sym
		}
		return sym
	case "CN":
		switch {
		case strings.HasPrefix(sym, "6"):
			return "SH" + sym
		case strings.HasPrefix(sym, "8"):
			return "BJ" + sym
		default:
			return "SZ" + sym
		}
	}
	return sym
}

// SetCookieString 更新 cookie，传空串清除
func (c *Client) SetCookieString(cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookieString = strings.TrimSpace(cookie)
	c.hasUserCookie = c.cookieString != ""
	if c.hasUserCookie {
		hlog.Info("quote cookie string updated")
	} else {
		hlog.Info("quote cookie string cleared")
	}
}

// HasAnyCookie 是否有可用 cookie（用户提供的或环境变量里的）
func (c *Client) HasAnyCookie() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasUserCookie {
		return true
	}
	return !c.envCookieInvalid && envCookie() != ""
}

func envCookie() string {
	if v := os.Getenv("XUEQIU_COOKIES"); v != "" {
		return v
	}
	return os.Getenv("XUEQIU_COOKIE")
}

func (c *Client) buildCookie() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasUserCookie {
		return c.cookieString
	}
	if c.envCookieInvalid {
		return ""
	}
	parts := make([]string, 0, 4)
	if v := envCookie(); v != "" {
		parts = append(parts, v)
	}
	tokenEnvs := map[string]string{
		"xq_a_token":  "XUEQIU_TOKEN",
		"xq_r_token":  "XUEQIU_R_TOKEN",
		"xq_id_token": "XUEQIU_ID_TOKEN",
	}
	for name, env := range tokenEnvs {
		if v := os.Getenv(env); v != "" && !strings.Contains(strings.Join(parts, ";"), name+"=") {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, "; ")
}

// markCookieInvalid cookie 失效处理：用户 cookie 直接清掉，环境 cookie 本进程内禁用
func (c *Client) markCookieInvalid() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasUserCookie {
		hlog.Warn("quote cookie appears invalid, clearing user cookie")
		c.cookieString = ""
		c.hasUserCookie = false
		return
	}
	hlog.Warn("environment quote cookie appears invalid, disabling it for this process")
	c.envCookieInvalid = true
}

// KlineData 拉取原始 K 线
func (c *Client) KlineData(ctx context.Context, symbol, market, period string, count int) (gjson.Result, error) {
	formatted := FormatSymbol(symbol, market)
	params := url.Values{}
	params.Set("symbol", formatted)
	params.Set("begin", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("period", period)
	params.Set("type", "before")
	params.Set("count", fmt.Sprintf("-%d", count))
	params.Set("indicator", "kline")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: build request for %s: %v", ErrQuoteUnavailable, formatted, err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)
	if cookie := c.buildCookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: fetch kline for %s: %v", ErrQuoteUnavailable, formatted, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%w: fetch kline for %s: status %d", ErrQuoteUnavailable, formatted, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read kline response for %s: %v", ErrQuoteUnavailable, formatted, err)
	}

	payload := gjson.ParseBytes(body)
	if errCode := payload.Get("error_code"); errCode.Exists() && errCode.Int() != 0 {
		desc := payload.Get("error_description").String()
		if desc == "" {
			desc = payload.Get("error_msg").String()
		}
		c.markCookieInvalid()
		return gjson.Result{}, fmt.Errorf("%w: api error (%d): %s, cookie may be invalid or expired",
			ErrQuoteUnavailable, errCode.Int(), desc)
	}
	if !payload.Get("data").Exists() {
		c.markCookieInvalid()
		return gjson.Result{}, fmt.Errorf("%w: invalid kline payload for %s, cookie may be invalid", ErrQuoteUnavailable, formatted)
	}
	return payload, nil
}

// ParseKline 解析 K 线为结构化序列
func ParseKline(payload gjson.Result) []KlineBar {
	columns := payload.Get("data.column").Array()
	items := payload.Get("data.item").Array()
	if len(columns) == 0 || len(items) == 0 {
		return nil
	}
	colIdx := make(map[string]int, len(columns))
	for i, col := range columns {
		colIdx[col.String()] = i
	}
	field := func(row []gjson.Result, name string) float64 {
		idx, ok := colIdx[name]
		if !ok || idx >= len(row) {
			return 0
		}
		return row[idx].Float()
	}
	bars := make([]KlineBar, 0, len(items))
	for _, item := range items {
		row := item.Array()
		bars = append(bars, KlineBar{
			Timestamp: int64(field(row, "timestamp")),
			Open:      field(row, "open"),
			High:      field(row, "high"),
			Low:       field(row, "low"),
			Close:     field(row, "close"),
			Volume:    field(row, "volume"),
		})
	}
	return bars
}

// LastPrice 最新成交价（1 分钟线最后一根的收盘价）
func (c *Client) LastPrice(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	payload, err := c.KlineData(ctx, symbol, market, "1m", 1)
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := c.extractClose(payload)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: response missing price for %s (%s)", ErrQuoteUnavailable, symbol, market)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: invalid latest price for %s (%s)", ErrQuoteUnavailable, symbol, market)
	}
	return price, nil
}

// DailyClose 最近一个交易日的收盘价
func (c *Client) DailyClose(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	payload, err := c.KlineData(ctx, symbol, market, "day", 1)
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := c.extractClose(payload)
	if !ok || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: response missing daily close for %s (%s)", ErrQuoteUnavailable, symbol, market)
	}
	return price, nil
}

func (c *Client) extractClose(payload gjson.Result) (decimal.Decimal, bool) {
	columns := payload.Get("data.column").Array()
	items := payload.Get("data.item").Array()
	closeIdx := -1
	for i, col := range columns {
		if col.String() == "close" {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 || len(items) == 0 {
		c.markCookieInvalid()
		return decimal.Zero, false
	}
	row := items[0].Array()
	if closeIdx >= len(row) || row[closeIdx].Type == gjson.Null {
		c.markCookieInvalid()
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(row[closeIdx].Float()), true
}

package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/tidwall/gjson"
)

const defaultHKInfoURL = "https://datacenter.eastmoney.com/securities/api/data/v1/get"

// HKSecurityInfo 东方财富港股证券信息，TradeUnit 即每手股数
type HKSecurityInfo struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	TradeUnit    int64   `json:"trade_unit"`
	ListingDate  string  `json:"listing_date"`
	SecurityType string  `json:"security_type"`
	Board        string  `json:"board"`
	TradeMarket  string  `json:"trade_market"`
	IssuePrice   float64 `json:"issue_price"`
	ParValue     float64 `json:"par_value"`
	HKConnectSH  bool    `json:"is_hk_connect_sh"`
	HKConnectSZ  bool    `json:"is_hk_connect_sz"`
}

// HKStockClient 港股手数查询客户端，结果进程内缓存
type HKStockClient struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	cache map[string]*HKSecurityInfo
}

func NewHKStockClient(timeout time.Duration) *HKStockClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HKStockClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultHKInfoURL,
		cache:      make(map[string]*HKSecurityInfo),
	}
}

// NormalizeHKSymbol 去掉 .HK 后缀，提取数字并补零到 5 位
func NormalizeHKSymbol(symbol string) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(symbol))
	cleaned = strings.TrimSuffix(cleaned, ".HK")
	var digits strings.Builder
	for _, ch := range cleaned {
		if unicode.IsDigit(ch) {
			digits.WriteRune(ch)
		}
	}
	if digits.Len() == 0 {
		return "", fmt.Errorf("invalid hk symbol: %q", symbol)
	}
	s := digits.String()
	for len(s) < 5 {
		s = "0" + s
	}
	return s, nil
}

// Info 查询港股证券信息
func (c *HKStockClient) Info(ctx context.Context, symbol string) (*HKSecurityInfo, error) {
	padded, err := NormalizeHKSymbol(symbol)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	if info, ok := c.cache[padded]; ok {
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	params := url.Values{}
	params.Set("reportName", "RPT_HKF10_INFO_SECURITYINFO")
	params.Set("columns", "SECUCODE,SECURITY_CODE,SECURITY_NAME_ABBR,SECURITY_TYPE,LISTING_DATE,ISIN_CODE,BOARD,"+
		"TRADE_UNIT,TRADE_MARKET,GANGGUTONGBIAODISHEN,GANGGUTONGBIAODIHU,PAR_VALUE,"+
		"ISSUE_PRICE,ISSUE_NUM,YEAR_SETTLE_DAY")
	params.Set("filter", fmt.Sprintf(`(SECUCODE="%s.HK")`, padded))
	params.Set("pageNumber", "1")
	params.Set("pageSize", "200")
	params.Set("source", "F10")
	params.Set("client", "PC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build hk stock info request for %s: %w", padded, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request hk stock info for %s: %w", padded, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request hk stock info for %s: status %d", padded, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hk stock info response for %s: %w", padded, err)
	}

	row := gjson.GetBytes(body, "result.data.0")
	if !row.Exists() {
		return nil, fmt.Errorf("no data found for hk stock %s", padded)
	}

	tradeUnit := row.Get("TRADE_UNIT").Int()
	if tradeUnit <= 0 {
		tradeUnit = 100
	}
	info := &HKSecurityInfo{
		Symbol:       padded,
		Name:         row.Get("SECURITY_NAME_ABBR").String(),
		TradeUnit:    tradeUnit,
		ListingDate:  row.Get("LISTING_DATE").String(),
		SecurityType: row.Get("SECURITY_TYPE").String(),
		Board:        row.Get("BOARD").String(),
		TradeMarket:  row.Get("TRADE_MARKET").String(),
		IssuePrice:   row.Get("ISSUE_PRICE").Float(),
		ParValue:     row.Get("PAR_VALUE").Float(),
		HKConnectSH:  row.Get("GANGGUTONGBIAODISHEN").String() == "是",
		HKConnectSZ:  row.Get("GANGGUTONGBIAODIHU").String() == "是",
	}

	c.mu.Lock()
	c.cache[padded] = info
	c.mu.Unlock()

	hlog.Infof("retrieved hk stock info for %s: %s, trade_unit=%d", padded, info.Name, info.TradeUnit)
	return info, nil
}

// StockInfo 返回规范化代码、名称与每手股数，供下单校验使用
func (c *HKStockClient) StockInfo(ctx context.Context, symbol string) (string, string, int64, error) {
	info, err := c.Info(ctx, symbol)
	if err != nil {
		return "", "", 0, err
	}
	return info.Symbol, info.Name, info.TradeUnit, nil
}

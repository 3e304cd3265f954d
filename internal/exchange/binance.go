package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"grid-box-finder-go/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

const (
	clientIDPrefix  = "gbf"
	symbolsCacheTTL = 30 * time.Minute
)

// BinanceExchange 通过 go-binance 访问币安 U 本位合约。所有调用都经过重试策略。
type BinanceExchange struct {
	client *futures.Client
	retry  RetryPolicy
	logger *zap.Logger

	mu       sync.RWMutex
	symbols  map[string]*models.SymbolInfo
	loadedAt time.Time
	cacheTTL time.Duration
}

// NewBinanceExchange 创建币安合约客户端。行情接口不需要 API Key。
func NewBinanceExchange(apiKey, secretKey string, cfg models.ExchangeConfig, logger *zap.Logger) *BinanceExchange {
	futures.UseTestnet = cfg.IsTestnet
	return &BinanceExchange{
		client:   futures.NewClient(apiKey, secretKey),
		retry:    NewRetryPolicy(cfg, logger),
		logger:   logger,
		cacheTTL: symbolsCacheTTL,
	}
}

// FetchCandles 返回按时间从旧到新排列的K线
func (e *BinanceExchange) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var klines []*futures.Kline
	err := e.retry.Do(ctx, "klines", func(ctx context.Context) error {
		var err error
		klines, err = e.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("获取 %s %s K线失败: %w", symbol, interval, err)
	}
	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, models.Candle{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     parseNum(k.Open),
			High:     parseNum(k.High),
			Low:      parseNum(k.Low),
			Close:    parseNum(k.Close),
			Volume:   parseNum(k.Volume),
		})
	}
	return candles, nil
}

// FirstCandleTime 返回该交易对最早一根K线的开盘时间，用于估算上市时间
func (e *BinanceExchange) FirstCandleTime(ctx context.Context, symbol string) (time.Time, error) {
	var klines []*futures.Kline
	err := e.retry.Do(ctx, "first_kline", func(ctx context.Context) error {
		var err error
		klines, err = e.client.NewKlinesService().Symbol(symbol).Interval("1d").StartTime(0).Limit(1).Do(ctx)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	if len(klines) == 0 {
		return time.Time{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	return time.UnixMilli(klines[0].OpenTime).UTC(), nil
}

// FetchTicker 返回单个交易对的24小时行情
func (e *BinanceExchange) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	var stats []*futures.PriceChangeStats
	err := e.retry.Do(ctx, "ticker", func(ctx context.Context) error {
		var err error
		stats, err = e.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("获取 %s 行情失败: %w", symbol, err)
	}
	for _, s := range stats {
		if s.Symbol == symbol {
			t := toTicker(s)
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}

// FetchTickers 返回全部交易对的24小时行情
func (e *BinanceExchange) FetchTickers(ctx context.Context) ([]models.Ticker, error) {
	var stats []*futures.PriceChangeStats
	err := e.retry.Do(ctx, "tickers", func(ctx context.Context) error {
		var err error
		stats, err = e.client.NewListPriceChangeStatsService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("获取全市场行情失败: %w", err)
	}
	out := make([]models.Ticker, 0, len(stats))
	for _, s := range stats {
		out = append(out, toTicker(s))
	}
	return out, nil
}

func toTicker(s *futures.PriceChangeStats) models.Ticker {
	return models.Ticker{
		Symbol:      s.Symbol,
		Last:        parseNum(s.LastPrice),
		QuoteVolume: parseNum(s.QuoteVolume),
		BaseVolume:  parseNum(s.Volume),
	}
}

// FetchSymbols 返回交易所的全部合约规则，结果缓存一段时间
func (e *BinanceExchange) FetchSymbols(ctx context.Context) ([]models.SymbolInfo, error) {
	if err := e.loadSymbols(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.SymbolInfo, 0, len(e.symbols))
	for _, s := range e.symbols {
		out = append(out, *s)
	}
	return out, nil
}

// FetchSymbolInfo 返回单个交易对的规则；未上架返回 ErrSymbolNotFound
func (e *BinanceExchange) FetchSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	if err := e.loadSymbols(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, ok := e.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	cp := *info
	return &cp, nil
}

func (e *BinanceExchange) loadSymbols(ctx context.Context) error {
	e.mu.RLock()
	fresh := e.symbols != nil && time.Since(e.loadedAt) < e.cacheTTL
	e.mu.RUnlock()
	if fresh {
		return nil
	}

	var info *futures.ExchangeInfo
	err := e.retry.Do(ctx, "exchange_info", func(ctx context.Context) error {
		var err error
		info, err = e.client.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("获取交易规则失败: %w", err)
	}

	symbols := make(map[string]*models.SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		si := toSymbolInfo(s)
		symbols[si.Symbol] = &si
	}
	e.mu.Lock()
	e.symbols = symbols
	e.loadedAt = time.Now()
	e.mu.Unlock()
	e.logger.Info("交易规则已加载", zap.Int("symbols", len(symbols)))
	return nil
}

func toSymbolInfo(s futures.Symbol) models.SymbolInfo {
	si := models.SymbolInfo{
		Symbol:            s.Symbol,
		Status:            s.Status,
		BaseAsset:         s.BaseAsset,
		QuoteAsset:        s.QuoteAsset,
		ContractType:      string(s.ContractType),
		PricePrecision:    s.PricePrecision,
		QuantityPrecision: s.QuantityPrecision,
	}
	if s.OnboardDate > 0 {
		si.ListedAt = time.UnixMilli(s.OnboardDate).UTC()
	}
	for _, f := range s.Filters {
		si.Filters = append(si.Filters, models.Filter{
			FilterType:  filterString(f, "filterType"),
			TickSize:    filterString(f, "tickSize"),
			MinPrice:    filterString(f, "minPrice"),
			StepSize:    filterString(f, "stepSize"),
			MinQty:      filterString(f, "minQty"),
			MaxQty:      filterString(f, "maxQty"),
			MinNotional: filterString(f, "minNotional"),
			Notional:    filterString(f, "notional"),
		})
	}
	return si
}

// filterString 读取过滤器字段，交易所可能返回字符串或数字
func filterString(f map[string]interface{}, key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// PlaceOrder 下单。客户端订单号在重试间保持不变，交易所会拒绝重复提交。
func (e *BinanceExchange) PlaceOrder(ctx context.Context, symbol string, side models.Side, orderType string, qty, price float64) (*models.Order, error) {
	clientID := NewClientOrderID()
	var resp *futures.CreateOrderResponse
	err := e.retry.Do(ctx, "place_order", func(ctx context.Context) error {
		svc := e.client.NewCreateOrderService().
			Symbol(symbol).
			Side(futures.SideType(side)).
			Type(futures.OrderType(orderType)).
			Quantity(formatNum(qty)).
			NewClientOrderID(clientID)
		if orderType == OrderTypeLimit {
			svc = svc.TimeInForce(futures.TimeInForceTypeGTC).Price(formatNum(price))
		}
		var err error
		resp, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		e.logger.Error("下单失败",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("price", price),
			zap.Float64("qty", qty),
			zap.String("clientOrderId", clientID),
			zap.Error(err))
		return nil, err
	}
	return &models.Order{
		Symbol:        resp.Symbol,
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Side:          models.Side(resp.Side),
		Type:          string(resp.Type),
		Price:         parseNum(resp.Price),
		Quantity:      parseNum(resp.OrigQuantity),
		Status:        string(resp.Status),
		Time:          time.UnixMilli(resp.UpdateTime).UTC(),
	}, nil
}

// CancelAllOrders 撤销该交易对的所有挂单
func (e *BinanceExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	err := e.retry.Do(ctx, "cancel_all", func(ctx context.Context) error {
		return e.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("撤销 %s 挂单失败: %w", symbol, err)
	}
	return nil
}

// FetchOpenOrders 返回该交易对当前挂单
func (e *BinanceExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	var orders []*futures.Order
	err := e.retry.Do(ctx, "open_orders", func(ctx context.Context) error {
		var err error
		orders, err = e.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("获取 %s 挂单失败: %w", symbol, err)
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, models.Order{
			Symbol:        o.Symbol,
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Side:          models.Side(o.Side),
			Type:          string(o.Type),
			Price:         parseNum(o.Price),
			Quantity:      parseNum(o.OrigQuantity),
			Status:        string(o.Status),
			Time:          time.UnixMilli(o.Time).UTC(),
		})
	}
	return out, nil
}

// NewClientOrderID 生成不超过 36 个字符的唯一客户端订单号
func NewClientOrderID() string {
	id := uuid.New()
	return clientIDPrefix + "-" + base62.EncodeToString(id[:])
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

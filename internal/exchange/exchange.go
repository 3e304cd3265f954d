package exchange

import (
	"context"

	"grid-box-finder-go/internal/models"
)

// 订单类型与状态，取值与币安合约接口一致
const (
	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	OrderStatusNew      = "NEW"
	OrderStatusFilled   = "FILLED"
	OrderStatusCanceled = "CANCELED"
)

// MarketData 定义了扫描器和调参循环需要的行情接口。
// 实盘、模拟盘和缓存层都实现这一接口，核心逻辑不依赖具体交易所。
type MarketData interface {
	// FetchCandles 返回按时间从旧到新排列的K线
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	FetchTickers(ctx context.Context) ([]models.Ticker, error)
	// FetchSymbolInfo 对未知交易对返回 ErrSymbolNotFound
	FetchSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
	FetchSymbols(ctx context.Context) ([]models.SymbolInfo, error)
}

// OrderExecutor 定义了下单接口。调用方不假设订单会立即成交。
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, symbol string, side models.Side, orderType string, qty, price float64) (*models.Order, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
}

// Exchange 同时提供行情与下单能力，使机器人可以在实盘和模拟盘之间切换。
type Exchange interface {
	MarketData
	OrderExecutor
}

package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"grid-box-finder-go/internal/models"

	"go.uber.org/zap"
)

const qtyEpsilon = 1e-9

// PaperAccount 模拟账户快照
type PaperAccount struct {
	Cash        float64 `json:"cash"`
	Position    float64 `json:"position"` // 正数为多头，负数为空头
	AvgEntry    float64 `json:"avg_entry"`
	RealizedPnL float64 `json:"realized_pnl"`
	TotalFees   float64 `json:"total_fees"`
	OpenOrders  int     `json:"open_orders"`
}

// PaperExchange 用真实行情模拟限价单撮合，下单不触达交易所。
// 行情请求委托给内部的 MarketData，拉取K线时顺带用新K线撮合挂单。
type PaperExchange struct {
	MarketData

	logger       *zap.Logger
	makerFeeRate float64
	slippageRate float64
	now          func() time.Time

	mu          sync.Mutex
	onFill      func(models.Fill)
	cash        float64
	positions   map[string]float64
	avgEntry    map[string]float64
	realized    map[string]float64
	totalFees   float64
	orders      map[int64]*models.Order
	nextOrderID int64
	lastPrice   map[string]float64
	lastSeen    map[string]time.Time // 最近一根已用于撮合的完整K线
}

// NewPaperExchange 创建模拟交易所
func NewPaperExchange(market MarketData, cfg models.PaperConfig, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		MarketData:   market,
		logger:       logger,
		makerFeeRate: cfg.MakerFeeRate,
		slippageRate: cfg.SlippageRate,
		now:          time.Now,
		cash:         cfg.InitialBalance,
		positions:    make(map[string]float64),
		avgEntry:     make(map[string]float64),
		realized:     make(map[string]float64),
		orders:       make(map[int64]*models.Order),
		nextOrderID:  1,
		lastPrice:    make(map[string]float64),
		lastSeen:     make(map[string]time.Time),
	}
}

// SetFillHandler 注册成交回调，回调在锁外执行
func (e *PaperExchange) SetFillHandler(fn func(models.Fill)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFill = fn
}

// FetchCandles 拉取K线，并用此前未见过的完整K线和最新价撮合挂单
func (e *PaperExchange) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	candles, err := e.MarketData.FetchCandles(ctx, symbol, interval, limit)
	if err != nil || len(candles) == 0 {
		return candles, err
	}

	e.mu.Lock()
	seen := e.lastSeen[symbol]
	var fills []models.Fill
	// 最后一根K线尚未收盘，只用其收盘价（即最新价）撮合
	for _, c := range candles[:len(candles)-1] {
		if c.OpenTime.After(seen) {
			fills = append(fills, e.applyCandleLocked(symbol, c)...)
		}
	}
	if len(candles) > 1 {
		e.lastSeen[symbol] = candles[len(candles)-2].OpenTime
	}
	fills = append(fills, e.applyPriceLocked(symbol, candles[len(candles)-1].Close, time.Time{})...)
	e.mu.Unlock()

	e.dispatch(fills)
	return candles, nil
}

// ApplyCandle 按 O->L->H->C 的路径撮合一根已收盘K线。
// 在K线开盘之后才挂出的订单只参与收盘价撮合。
func (e *PaperExchange) ApplyCandle(symbol string, c models.Candle) {
	e.mu.Lock()
	fills := e.applyCandleLocked(symbol, c)
	if c.OpenTime.After(e.lastSeen[symbol]) {
		e.lastSeen[symbol] = c.OpenTime
	}
	e.mu.Unlock()
	e.dispatch(fills)
}

// ApplyPrice 用一个成交价撮合所有挂单
func (e *PaperExchange) ApplyPrice(symbol string, price float64) {
	e.mu.Lock()
	fills := e.applyPriceLocked(symbol, price, time.Time{})
	e.mu.Unlock()
	e.dispatch(fills)
}

func (e *PaperExchange) applyCandleLocked(symbol string, c models.Candle) []models.Fill {
	var fills []models.Fill
	for _, p := range []float64{c.Open, c.Low, c.High} {
		fills = append(fills, e.applyPriceLocked(symbol, p, c.OpenTime)...)
	}
	return append(fills, e.applyPriceLocked(symbol, c.Close, time.Time{})...)
}

// applyPriceLocked 按订单ID顺序检查挂单；placedBefore 非零时只撮合在该时间之前挂出的订单
func (e *PaperExchange) applyPriceLocked(symbol string, price float64, placedBefore time.Time) []models.Fill {
	if price <= 0 {
		return nil
	}
	e.lastPrice[symbol] = price

	ids := make([]int64, 0, len(e.orders))
	for id, o := range e.orders {
		if o.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var fills []models.Fill
	for _, id := range ids {
		o := e.orders[id]
		if o.Status != OrderStatusNew || o.Type != OrderTypeLimit {
			continue
		}
		if !placedBefore.IsZero() && !o.Time.Before(placedBefore) {
			continue
		}
		if (o.Side == models.Buy && price <= o.Price) || (o.Side == models.Sell && price >= o.Price) {
			fills = append(fills, e.fillLocked(o, o.Price))
		}
	}
	return fills
}

// fillLocked 计算滑点和手续费，按净头寸更新均价与已实现盈亏
func (e *PaperExchange) fillLocked(o *models.Order, base float64) models.Fill {
	o.Status = OrderStatusFilled
	delete(e.orders, o.OrderID)

	exec := base * (1 + e.slippageRate)
	if o.Side == models.Sell {
		exec = base * (1 - e.slippageRate)
	}
	qty := o.Quantity
	fee := exec * qty * e.makerFeeRate
	e.totalFees += fee

	signed := qty
	if o.Side == models.Sell {
		signed = -qty
	}
	pos := e.positions[o.Symbol]
	avg := e.avgEntry[o.Symbol]

	var pnl float64
	if pos*signed < 0 {
		// 反向成交先平仓
		closeQty := math.Min(math.Abs(pos), qty)
		if pos > 0 {
			pnl = (exec - avg) * closeQty
		} else {
			pnl = (avg - exec) * closeQty
		}
		remaining := qty - closeQty
		if pos > 0 {
			pos -= closeQty
		} else {
			pos += closeQty
		}
		if math.Abs(pos) <= qtyEpsilon {
			pos, avg = 0, 0
		}
		if remaining > qtyEpsilon {
			// 剩余数量按成交价反向开仓
			if signed > 0 {
				pos = remaining
			} else {
				pos = -remaining
			}
			avg = exec
		}
	} else {
		total := math.Abs(pos) + qty
		avg = (avg*math.Abs(pos) + exec*qty) / total
		pos += signed
	}
	e.positions[o.Symbol] = pos
	e.avgEntry[o.Symbol] = avg

	net := pnl - fee
	e.realized[o.Symbol] += net
	e.cash += net

	e.logger.Info("paper fill",
		zap.String("symbol", o.Symbol),
		zap.Int64("orderId", o.OrderID),
		zap.String("side", string(o.Side)),
		zap.Float64("price", exec),
		zap.Float64("qty", qty),
		zap.Float64("fee", fee),
		zap.Float64("realizedPnL", net),
		zap.Float64("position", pos),
		zap.Float64("avgEntry", avg),
		zap.Float64("cash", e.cash))

	return models.Fill{
		Symbol:      o.Symbol,
		OrderID:     o.OrderID,
		Side:        o.Side,
		Price:       exec,
		Quantity:    qty,
		Fee:         fee,
		RealizedPnL: net,
		Time:        e.now(),
	}
}

func (e *PaperExchange) dispatch(fills []models.Fill) {
	if len(fills) == 0 {
		return
	}
	e.mu.Lock()
	fn := e.onFill
	e.mu.Unlock()
	if fn == nil {
		return
	}
	for _, f := range fills {
		fn(f)
	}
}

// PlaceOrder 挂出模拟订单；市价单立即按最新价成交
func (e *PaperExchange) PlaceOrder(ctx context.Context, symbol string, side models.Side, orderType string, qty, price float64) (*models.Order, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("paper order qty must be positive, got %g", qty)
	}
	if side != models.Buy && side != models.Sell {
		return nil, fmt.Errorf("unknown order side %q", side)
	}

	e.mu.Lock()
	order := &models.Order{
		Symbol:        symbol,
		OrderID:       e.nextOrderID,
		ClientOrderID: fmt.Sprintf("paper-%d", e.nextOrderID),
		Side:          side,
		Type:          orderType,
		Price:         price,
		Quantity:      qty,
		Status:        OrderStatusNew,
		Time:          e.now(),
	}
	e.nextOrderID++

	var fills []models.Fill
	switch orderType {
	case OrderTypeLimit:
		if price <= 0 {
			e.mu.Unlock()
			return nil, fmt.Errorf("limit order needs a positive price, got %g", price)
		}
		e.orders[order.OrderID] = order
	case OrderTypeMarket:
		last, ok := e.lastPrice[symbol]
		if !ok {
			e.mu.Unlock()
			return nil, fmt.Errorf("no price seen for %s, cannot fill market order", symbol)
		}
		order.Price = last
		fills = append(fills, e.fillLocked(order, last))
	default:
		e.mu.Unlock()
		return nil, fmt.Errorf("unsupported order type %q", orderType)
	}
	out := *order
	e.mu.Unlock()

	e.dispatch(fills)
	return &out, nil
}

// CancelAllOrders 撤销该交易对的所有挂单
func (e *PaperExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, o := range e.orders {
		if o.Symbol == symbol {
			o.Status = OrderStatusCanceled
			delete(e.orders, id)
		}
	}
	return nil
}

// FetchOpenOrders 按订单ID顺序返回挂单副本
func (e *PaperExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := make([]models.Order, 0)
	for _, o := range e.orders {
		if o.Symbol == symbol && o.Status == OrderStatusNew {
			open = append(open, *o)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].OrderID < open[j].OrderID })
	return open, nil
}

// Account 返回该交易对的模拟账户快照
func (e *PaperExchange) Account(symbol string) PaperAccount {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, o := range e.orders {
		if o.Symbol == symbol {
			n++
		}
	}
	return PaperAccount{
		Cash:        e.cash,
		Position:    e.positions[symbol],
		AvgEntry:    e.avgEntry[symbol],
		RealizedPnL: e.realized[symbol],
		TotalFees:   e.totalFees,
		OpenOrders:  n,
	}
}

package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"grid-box-finder-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// full futures kline frame as pushed by the exchange
const binanceKlineFrame = `{"e":"kline","E":1717200060000,"s":"BTCUSDT","k":{"t":1717200000000,"T":1717200059999,"s":"BTCUSDT","i":"1m","f":100,"L":200,"o":"67000.1","c":"67010.5","h":"67020.0","l":"66990.0","v":"12.345","n":101,"x":true,"q":"827000.5","V":"6.100","Q":"408000.2","B":"0"}}`

type memStore struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.failGet {
		return nil, false, errors.New("connection refused")
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingMarket struct {
	stubMarket
	candleCalls int
}

func (c *countingMarket) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	c.candleCalls++
	return c.candles, nil
}

func TestCachedMarketDataServesRepeatCalls(t *testing.T) {
	market := &countingMarket{stubMarket: stubMarket{candles: []models.Candle{
		{OpenTime: paperT0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
	}}}
	store := newMemStore()
	cached := NewCachedMarketData(market, store, 30*time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := cached.FetchCandles(ctx, "BTCUSDT", "1m", 360)
	require.NoError(t, err)
	second, err := cached.FetchCandles(ctx, "BTCUSDT", "1m", 360)
	require.NoError(t, err)

	assert.Equal(t, 1, market.candleCalls)
	assert.Equal(t, first, second)
	assert.Equal(t, 30*time.Second, store.ttls["gbf:candles:BTCUSDT:1m:360"])

	_, err = cached.FetchCandles(ctx, "BTCUSDT", "1m", 120)
	require.NoError(t, err)
	assert.Equal(t, 2, market.candleCalls, "limit is part of the key")
}

func TestCachedMarketDataFallsThroughOnStoreErrors(t *testing.T) {
	market := &countingMarket{}
	store := newMemStore()
	store.failGet = true
	cached := NewCachedMarketData(market, store, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := cached.FetchCandles(context.Background(), "BTCUSDT", "1m", 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, market.candleCalls)
}

func TestNewCachedMarketDataDisabled(t *testing.T) {
	market := &countingMarket{}
	assert.Same(t, MarketData(market), NewCachedMarketData(market, nil, time.Minute, zap.NewNop()))
	assert.Same(t, MarketData(market), NewCachedMarketData(market, newMemStore(), 0, zap.NewNop()))
}

func TestParseKlineMessage(t *testing.T) {
	ev, ok, err := ParseKlineMessage([]byte(binanceKlineFrame))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.True(t, ev.Closed)
	assert.Equal(t, time.UnixMilli(1717200000000).UTC(), ev.Candle.OpenTime)
	assert.Equal(t, 67010.5, ev.Candle.Close)
	assert.Equal(t, 66990.0, ev.Candle.Low)
	assert.Equal(t, 12.345, ev.Candle.Volume)

	_, ok, err = ParseKlineMessage([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseKlineMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestKlineStreamURL(t *testing.T) {
	s := NewKlineStream(models.ExchangeConfig{LiveWSURL: "wss://fstream.binance.com/"}, "BTCUSDT", "1m", zap.NewNop())
	assert.Equal(t, "wss://fstream.binance.com/ws/btcusdt@kline_1m", s.URL())
}

package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grid-box-finder-go/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "gbf:"

// KVStore 缓存后端
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore 基于 Redis 的 KVStore
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 连接 Redis 并 PING 一次
func NewRedisStore(ctx context.Context, cfg models.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close 关闭连接
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// CachedMarketData 为K线和交易规则加一层缓存。缓存读写失败只记日志，不影响请求。
type CachedMarketData struct {
	MarketData
	store  KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedMarketData 包装 market；ttl 为 0 时直接返回 market 本身
func NewCachedMarketData(market MarketData, store KVStore, ttl time.Duration, logger *zap.Logger) MarketData {
	if store == nil || ttl <= 0 {
		return market
	}
	return &CachedMarketData{MarketData: market, store: store, ttl: ttl, logger: logger}
}

func (c *CachedMarketData) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	key := fmt.Sprintf("%scandles:%s:%s:%d", cacheKeyPrefix, symbol, interval, limit)
	var candles []models.Candle
	if c.load(ctx, key, &candles) {
		return candles, nil
	}
	candles, err := c.MarketData.FetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, candles)
	return candles, nil
}

func (c *CachedMarketData) FetchSymbols(ctx context.Context) ([]models.SymbolInfo, error) {
	key := cacheKeyPrefix + "symbols"
	var symbols []models.SymbolInfo
	if c.load(ctx, key, &symbols) {
		return symbols, nil
	}
	symbols, err := c.MarketData.FetchSymbols(ctx)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, symbols)
	return symbols, nil
}

func (c *CachedMarketData) load(ctx context.Context, key string, v interface{}) bool {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("读取缓存失败", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		c.logger.Warn("缓存内容损坏", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedMarketData) save(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("写入缓存失败", zap.String("key", key), zap.Error(err))
	}
}

package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"grid-box-finder-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// KlineEvent 一次K线推送。Closed 为真表示该K线已收盘。
type KlineEvent struct {
	Symbol string
	Candle models.Candle
	Closed bool
}

// Upper-case keys ("E", "T", "L", "V") must be declared so that encoding/json's
// case-insensitive fallback does not route them into "e", "t", "l" and "v".
type wsKlineMessage struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		TakerBuy  string `json:"V"`
		LastTrade int64  `json:"L"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// KlineStream 订阅单个交易对的K线推送，断线后按退避间隔重连
type KlineStream struct {
	url     string
	symbol  string
	logger  *zap.Logger
	backoff *backoff.Backoff
	dialer  *websocket.Dialer
}

// NewKlineStream 创建K线订阅，地址形如 <base>/ws/btcusdt@kline_1m
func NewKlineStream(cfg models.ExchangeConfig, symbol, interval string, logger *zap.Logger) *KlineStream {
	base := strings.TrimRight(cfg.WSBaseURL(), "/")
	return &KlineStream{
		url:    fmt.Sprintf("%s/ws/%s@kline_%s", base, strings.ToLower(symbol), interval),
		symbol: symbol,
		logger: logger,
		backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		dialer: websocket.DefaultDialer,
	}
}

// URL 返回订阅地址
func (s *KlineStream) URL() string { return s.url }

// Run 阻塞读取推送直到 ctx 结束，每条消息调用一次 handler
func (s *KlineStream) Run(ctx context.Context, handler func(KlineEvent)) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		err := s.session(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		d := s.backoff.Duration()
		s.logger.Warn("K线推送连接断开，准备重连",
			zap.String("symbol", s.symbol),
			zap.Duration("wait", d),
			zap.Error(err))
		if err := waitCtx(ctx, d); err != nil {
			return nil
		}
	}
}

func (s *KlineStream) session(ctx context.Context, handler func(KlineEvent)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("连接 %s 失败: %w", s.url, err)
	}
	defer conn.Close()
	s.logger.Info("K线推送已连接", zap.String("url", s.url))

	// ctx 结束时关闭连接以打断阻塞的读取
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	first := true
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if first {
			s.backoff.Reset()
			first = false
		}
		ev, ok, err := ParseKlineMessage(message)
		if err != nil {
			s.logger.Warn("解析K线推送失败", zap.Error(err))
			continue
		}
		if ok {
			handler(ev)
		}
	}
}

// ParseKlineMessage 解析 kline 推送；非K线消息返回 ok=false
func ParseKlineMessage(message []byte) (KlineEvent, bool, error) {
	var msg wsKlineMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return KlineEvent{}, false, err
	}
	if msg.Event != "kline" {
		return KlineEvent{}, false, nil
	}
	k := msg.Kline
	return KlineEvent{
		Symbol: msg.Symbol,
		Candle: models.Candle{
			OpenTime: time.UnixMilli(k.StartTime).UTC(),
			Open:     parseNum(k.Open),
			High:     parseNum(k.High),
			Low:      parseNum(k.Low),
			Close:    parseNum(k.Close),
			Volume:   parseNum(k.Volume),
		},
		Closed: k.Closed,
	}, true, nil
}

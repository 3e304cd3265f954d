package exchange

import (
	"context"
	"errors"
	"net"
	"net/http"

	"grid-box-finder-go/internal/models"

	"github.com/adshao/go-binance/v2/common"
)

var (
	// ErrSymbolNotFound 交易所市场表中不存在该交易对
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrTransientNetwork 可重试的网络错误
	ErrTransientNetwork = errors.New("transient network error")
)

// IsTransient 判断错误是否值得重试：网络错误、限频(429/418)以及服务端 5xx。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransientNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return transientCode(apiErr.Code)
	}
	var modelErr *models.Error
	if errors.As(err, &modelErr) {
		return transientCode(modelErr.Code)
	}
	return false
}

// transientCode 币安错误码: -1003 限频, -1001/-1007 服务端断开或超时；
// 部分网关直接把 HTTP 状态码放在 code 中。
func transientCode(code int64) bool {
	switch code {
	case -1003, -1001, -1007, http.StatusTooManyRequests, 418:
		return true
	}
	return code >= 500 && code < 600
}

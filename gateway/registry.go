package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Options 构造协议变体的公共参数；零值字段使用各交易所默认值。
type Options struct {
	URL          string
	TokenURL     string
	Symbols      []string
	PingInterval time.Duration
	HTTPClient   *http.Client
	Limiter      RateLimiter
}

// Factory 构造一个协议变体。
type Factory func(Options) Protocol

var registry = map[string]Factory{
	"binance": func(o Options) Protocol { return NewBinance(o) },
	"bybit":   func(o Options) Protocol { return NewBybit(o) },
	"kucoin":  func(o Options) Protocol { return NewKucoin(o) },
	"gateio":  func(o Options) Protocol { return NewGateio(o) },
}

var aliases = map[string]string{
	"gate":    "gateio",
	"gate.io": "gateio",
}

// CanonicalName 统一大小写与别名；未注册返回 false。
func CanonicalName(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	_, ok := registry[key]
	return key, ok
}

// New 按名称构造协议变体，这是唯一的名称分派点。
func New(name string, opts Options) (Protocol, error) {
	key, ok := CanonicalName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, name)
	}
	return registry[key](opts), nil
}

// Supported 已注册的交易所（排序后）。
func Supported() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

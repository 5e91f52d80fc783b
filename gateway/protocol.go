// Package gateway 描述各交易所行情 WS 协议：端点、订阅报文、帧解码与应用层心跳。
// 每个交易所一个变体，连接生命周期由 internal/exchange 统一管理。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProtocolParse 单条消息无法解码，丢弃该消息即可。
	ErrProtocolParse = errors.New("protocol parse error")
	// ErrEmptyEndpoint 无法获得可用的 WS 地址。
	ErrEmptyEndpoint = errors.New("empty ws endpoint")
	// ErrUnsupportedExchange 未注册的交易所名称。
	ErrUnsupportedExchange = errors.New("unsupported exchange")
)

// FrameKind 解码后的帧类别。
type FrameKind int

const (
	FrameIgnored FrameKind = iota
	FrameTickers
	FramePing
	FramePong
	FrameAck
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameTickers:
		return "tickers"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameAck:
		return "ack"
	case FrameError:
		return "error"
	default:
		return "ignored"
	}
}

// Ticker 交易所原生代码 + 最新成交价 + 可选成交量（base 计）。
type Ticker struct {
	Symbol string
	Last   float64
	Volume float64
}

// Frame 单条 WS 消息的解码结果。
type Frame struct {
	Kind    FrameKind
	Tickers []Ticker
	PingID  string
	Message string
}

// Protocol 交易所协议变体。实现必须是纯解码：不持有连接，不做 I/O（Endpoint 除外）。
type Protocol interface {
	Name() string
	// Endpoint 返回本次会话要拨号的地址；KuCoin 需先取 bullet token。
	Endpoint(ctx context.Context) (string, error)
	// SubscribePayloads 连接建立后按顺序发送的订阅报文，可为空。
	SubscribePayloads() ([][]byte, error)
	Decode(raw []byte) (Frame, error)
	// KeepaliveReply 对服务端应用层 ping 的应答；无需应答返回 nil。
	KeepaliveReply(f Frame) []byte
	// PingInterval 客户端主动应用层 ping 周期，0 表示只依赖传输层 ping。
	PingInterval() time.Duration
	PingPayload() []byte
}

func parseErr(exchange string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProtocolParse, exchange, err)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// BinanceSpotTickerEndpoint 全市场 24h ticker 数组流，无需订阅报文。
const BinanceSpotTickerEndpoint = "wss://stream.binance.com:9443/ws/!ticker@arr"

// binanceTicker 24hrTicker 的核心字段：s=代码 c=最新价 v=base 成交量 q=quote 成交量。
// C/Q 必须显式占位，否则大小写不敏感匹配会用收盘时间覆盖 c、用末笔数量覆盖 q。
type binanceTicker struct {
	Symbol      string          `json:"s"`
	Last        FlexFloat       `json:"c"`
	BaseVolume  FlexFloat       `json:"v"`
	QuoteVolume FlexFloat       `json:"q"`
	CloseTime   json.RawMessage `json:"C"`
	LastQty     json.RawMessage `json:"Q"`
}

// binanceEnvelope 兼容 combined stream、单个 ticker 对象以及订阅应答。
type binanceEnvelope struct {
	binanceTicker
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     json.RawMessage `json:"id"`
	Code   json.RawMessage `json:"code"`
	Msg    string          `json:"msg"`
}

// Binance 现货全市场 ticker。
type Binance struct {
	URL string
}

func NewBinance(opts Options) *Binance {
	u := opts.URL
	if u == "" {
		u = BinanceSpotTickerEndpoint
	}
	return &Binance{URL: u}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Endpoint(ctx context.Context) (string, error) {
	if b.URL == "" {
		return "", ErrEmptyEndpoint
	}
	return b.URL, nil
}

func (b *Binance) SubscribePayloads() ([][]byte, error) { return nil, nil }

func (b *Binance) KeepaliveReply(Frame) []byte { return nil }

func (b *Binance) PingInterval() time.Duration { return 0 }

func (b *Binance) PingPayload() []byte { return nil }

func (b *Binance) Decode(raw []byte) (Frame, error) {
	switch firstByte(raw) {
	case '[':
		var arr []binanceTicker
		if err := sonnet.Unmarshal(raw, &arr); err != nil {
			return Frame{}, parseErr(b.Name(), err)
		}
		return tickersFrame(convertBinance(arr)), nil
	case '{':
	default:
		return Frame{}, parseErr(b.Name(), errors.New("not a json object or array"))
	}

	var env binanceEnvelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return Frame{}, parseErr(b.Name(), err)
	}
	if len(env.Code) > 0 && string(env.Code) != "null" {
		return Frame{Kind: FrameError, Message: env.Msg}, nil
	}
	if len(env.Data) > 0 {
		items, err := decodeOneOrMany[binanceTicker](env.Data)
		if err != nil {
			return Frame{}, parseErr(b.Name(), err)
		}
		return tickersFrame(convertBinance(items)), nil
	}
	if env.Symbol != "" {
		return tickersFrame(convertBinance([]binanceTicker{env.binanceTicker})), nil
	}
	if len(env.ID) > 0 {
		return Frame{Kind: FrameAck}, nil
	}
	return Frame{Kind: FrameIgnored}, nil
}

func convertBinance(items []binanceTicker) []Ticker {
	out := make([]Ticker, 0, len(items))
	for _, it := range items {
		if it.Symbol == "" || !it.Last.Set {
			continue
		}
		out = append(out, Ticker{
			Symbol: it.Symbol,
			Last:   it.Last.Value,
			Volume: firstSet(it.BaseVolume, it.QuoteVolume),
		})
	}
	return out
}

func tickersFrame(ts []Ticker) Frame {
	if len(ts) == 0 {
		return Frame{Kind: FrameIgnored}
	}
	return Frame{Kind: FrameTickers, Tickers: ts}
}

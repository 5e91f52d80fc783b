package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"tri-arb-go/market"
)

const (
	BybitSpotEndpoint = "wss://stream.bybit.com/v5/public/spot"
	// bybitArgsPerRequest 现货公共频道单次订阅最多 10 个 args。
	bybitArgsPerRequest = 10
	bybitPingInterval   = 20 * time.Second
)

// DefaultBybitSymbols 未配置时订阅的主流交易对，覆盖常见三角。
var DefaultBybitSymbols = []string{
	"BTCUSDT", "ETHUSDT", "ETHBTC", "SOLUSDT", "SOLBTC", "XRPUSDT", "XRPBTC",
	"BTCUSDC", "ETHUSDC", "USDCUSDT", "SOLUSDC", "DOGEUSDT", "DOGEBTC", "LTCUSDT",
	"LTCBTC", "ADAUSDT", "ADABTC", "DOTUSDT", "DOTBTC", "LINKUSDT", "LINKBTC",
}

type bybitTicker struct {
	Symbol     string    `json:"symbol"`
	LastPrice  FlexFloat `json:"lastPrice"`
	Volume24h  FlexFloat `json:"volume24h"`
	Turnover24 FlexFloat `json:"turnover24h"`
}

type bybitEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

// Bybit v5 现货 tickers.{symbol}。
type Bybit struct {
	URL     string
	Symbols []string
	ping    time.Duration
}

func NewBybit(opts Options) *Bybit {
	b := &Bybit{URL: opts.URL, Symbols: opts.Symbols, ping: opts.PingInterval}
	if b.URL == "" {
		b.URL = BybitSpotEndpoint
	}
	if len(b.Symbols) == 0 {
		b.Symbols = DefaultBybitSymbols
	}
	if b.ping <= 0 {
		b.ping = bybitPingInterval
	}
	return b
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) Endpoint(ctx context.Context) (string, error) {
	if b.URL == "" {
		return "", ErrEmptyEndpoint
	}
	return b.URL, nil
}

// SubscribePayloads 以 BASEQUOTE 形式订阅，每批最多 10 个。
func (b *Bybit) SubscribePayloads() ([][]byte, error) {
	topics := make([]string, 0, len(b.Symbols))
	for _, s := range b.Symbols {
		base, quote, ok := market.NormalizeSymbol(s)
		if !ok {
			continue
		}
		topics = append(topics, "tickers."+base+quote)
	}
	var out [][]byte
	for _, batch := range chunk(topics, bybitArgsPerRequest) {
		payload, err := sonnet.Marshal(map[string]interface{}{
			"op":   "subscribe",
			"args": batch,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

func (b *Bybit) KeepaliveReply(f Frame) []byte {
	if f.Kind != FramePing {
		return nil
	}
	return []byte(`{"op":"pong"}`)
}

func (b *Bybit) PingInterval() time.Duration { return b.ping }

func (b *Bybit) PingPayload() []byte { return []byte(`{"op":"ping"}`) }

func (b *Bybit) Decode(raw []byte) (Frame, error) {
	if firstByte(raw) != '{' {
		return Frame{}, parseErr(b.Name(), errors.New("not a json object"))
	}
	var env bybitEnvelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return Frame{}, parseErr(b.Name(), err)
	}
	switch {
	case env.Op == "ping" && env.Success == nil:
		return Frame{Kind: FramePing}, nil
	case env.Op == "pong", env.Op == "ping":
		return Frame{Kind: FramePong}, nil
	case env.Success != nil && !*env.Success:
		return Frame{Kind: FrameError, Message: env.RetMsg}, nil
	case env.Success != nil:
		return Frame{Kind: FrameAck}, nil
	}
	if !strings.HasPrefix(env.Topic, "tickers") {
		return Frame{Kind: FrameIgnored}, nil
	}
	items, err := decodeOneOrMany[bybitTicker](env.Data)
	if err != nil {
		return Frame{}, parseErr(b.Name(), err)
	}
	topicSymbol := strings.TrimPrefix(strings.TrimPrefix(env.Topic, "tickers"), ".")
	out := make([]Ticker, 0, len(items))
	for _, it := range items {
		sym := it.Symbol
		if sym == "" {
			sym = topicSymbol
		}
		if sym == "" || !it.LastPrice.Set {
			continue
		}
		out = append(out, Ticker{
			Symbol: sym,
			Last:   it.LastPrice.Value,
			Volume: firstSet(it.Volume24h, it.Turnover24),
		})
	}
	return tickersFrame(out), nil
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for len(items) > 0 {
		n := size
		if len(items) < n {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

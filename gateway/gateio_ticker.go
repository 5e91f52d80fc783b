package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"tri-arb-go/market"
)

const (
	GateioSpotEndpoint    = "wss://api.gateio.ws/ws/v4/"
	gateioTickersChannel  = "spot.tickers"
	gateioPingChannel     = "spot.ping"
	gateioPongChannel     = "spot.pong"
	gateioPairsPerRequest = 100
	gateioPingInterval    = 15 * time.Second
)

// DefaultGateioSymbols 未配置时订阅的主流交易对。
var DefaultGateioSymbols = []string{
	"BTC_USDT", "ETH_USDT", "ETH_BTC", "SOL_USDT", "SOL_BTC", "XRP_USDT", "XRP_BTC",
	"BTC_USDC", "ETH_USDC", "USDC_USDT", "SOL_USDC", "DOGE_USDT", "DOGE_BTC", "LTC_USDT",
	"LTC_BTC", "ADA_USDT", "DOT_USDT", "LINK_USDT", "LINK_BTC", "TRX_USDT", "TRX_BTC",
}

type gateioTicker struct {
	CurrencyPair string    `json:"currency_pair"`
	Last         FlexFloat `json:"last"`
	BaseVolume   FlexFloat `json:"base_volume"`
	QuoteVolume  FlexFloat `json:"quote_volume"`
}

type gateioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type gateioEnvelope struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *gateioError    `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Gateio v4 spot.tickers。
type Gateio struct {
	URL     string
	Symbols []string
	ping    time.Duration
	now     func() time.Time
}

func NewGateio(opts Options) *Gateio {
	g := &Gateio{URL: opts.URL, Symbols: opts.Symbols, ping: opts.PingInterval, now: time.Now}
	if g.URL == "" {
		g.URL = GateioSpotEndpoint
	}
	if len(g.Symbols) == 0 {
		g.Symbols = DefaultGateioSymbols
	}
	if g.ping <= 0 {
		g.ping = gateioPingInterval
	}
	return g
}

func (g *Gateio) Name() string { return "gateio" }

func (g *Gateio) Endpoint(ctx context.Context) (string, error) {
	if g.URL == "" {
		return "", ErrEmptyEndpoint
	}
	return g.URL, nil
}

// SubscribePayloads 交易对统一转为 BASE_QUOTE。
func (g *Gateio) SubscribePayloads() ([][]byte, error) {
	pairs := make([]string, 0, len(g.Symbols))
	for _, s := range g.Symbols {
		base, quote, ok := market.NormalizeSymbol(s)
		if !ok {
			continue
		}
		pairs = append(pairs, base+"_"+quote)
	}
	var out [][]byte
	for _, batch := range chunk(pairs, gateioPairsPerRequest) {
		payload, err := sonnet.Marshal(map[string]interface{}{
			"time":    g.now().Unix(),
			"channel": gateioTickersChannel,
			"event":   "subscribe",
			"payload": batch,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

// KeepaliveReply Gate 不下发应用层 ping，只需客户端定期 spot.ping。
func (g *Gateio) KeepaliveReply(Frame) []byte { return nil }

func (g *Gateio) PingInterval() time.Duration { return g.ping }

func (g *Gateio) PingPayload() []byte {
	payload, _ := sonnet.Marshal(map[string]interface{}{
		"time":    g.now().Unix(),
		"channel": gateioPingChannel,
	})
	return payload
}

func (g *Gateio) Decode(raw []byte) (Frame, error) {
	if firstByte(raw) != '{' {
		return Frame{}, parseErr(g.Name(), errors.New("not a json object"))
	}
	var env gateioEnvelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return Frame{}, parseErr(g.Name(), err)
	}
	if env.Error != nil {
		return Frame{Kind: FrameError, Message: env.Error.Message}, nil
	}
	switch {
	case env.Channel == gateioPongChannel:
		return Frame{Kind: FramePong}, nil
	case env.Channel != gateioTickersChannel:
		return Frame{Kind: FrameIgnored}, nil
	case env.Event == "subscribe" || env.Event == "unsubscribe":
		return Frame{Kind: FrameAck}, nil
	case env.Event != "update":
		return Frame{Kind: FrameIgnored}, nil
	}
	items, err := decodeOneOrMany[gateioTicker](env.Result)
	if err != nil {
		return Frame{}, parseErr(g.Name(), err)
	}
	out := make([]Ticker, 0, len(items))
	for _, it := range items {
		if it.CurrencyPair == "" || !it.Last.Set {
			continue
		}
		out = append(out, Ticker{
			Symbol: it.CurrencyPair,
			Last:   it.Last.Value,
			Volume: firstSet(it.BaseVolume, it.QuoteVolume),
		})
	}
	return tickersFrame(out), nil
}

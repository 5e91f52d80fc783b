package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"

	"tri-arb-go/market"
)

const (
	kucoinAllTickersTopic = "/market/ticker:all"
	kucoinTickerTopic     = "/market/ticker:"
	// kucoinTopicsPerRequest 单个 topic 最多携带 100 个交易对。
	kucoinTopicsPerRequest = 100
	kucoinDefaultPing      = 18 * time.Second
)

type kucoinTicker struct {
	Symbol    string    `json:"symbol"`
	Price     FlexFloat `json:"price"`
	LastPrice FlexFloat `json:"lastTradedPrice"`
	Vol       FlexFloat `json:"vol"`
	Size      FlexFloat `json:"size"`
}

type kucoinEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
	Code    json.RawMessage `json:"code"`
}

// Kucoin 现货 ticker；Endpoint 每次会话重新申请 bullet token。
type Kucoin struct {
	Bullet  *BulletClient
	Symbols []string

	mu   sync.Mutex
	ping time.Duration
}

func NewKucoin(opts Options) *Kucoin {
	httpCli := opts.HTTPClient
	if httpCli == nil {
		httpCli = NewDefaultHTTPClient()
	}
	k := &Kucoin{
		Bullet:  &BulletClient{URL: opts.TokenURL, HTTPClient: httpCli, Limiter: opts.Limiter},
		Symbols: opts.Symbols,
		ping:    opts.PingInterval,
	}
	if k.ping <= 0 {
		k.ping = kucoinDefaultPing
	}
	return k
}

func (k *Kucoin) Name() string { return "kucoin" }

func (k *Kucoin) Endpoint(ctx context.Context) (string, error) {
	tok, err := k.Bullet.Fetch(ctx)
	if err != nil {
		return "", err
	}
	if tok.PingInterval > 0 {
		k.mu.Lock()
		k.ping = tok.PingInterval
		k.mu.Unlock()
	}
	return tok.URL(), nil
}

// SubscribePayloads 未配置交易对时订阅全市场 ticker:all。
func (k *Kucoin) SubscribePayloads() ([][]byte, error) {
	var topics []string
	if len(k.Symbols) == 0 {
		topics = []string{kucoinAllTickersTopic}
	} else {
		syms := make([]string, 0, len(k.Symbols))
		for _, s := range k.Symbols {
			base, quote, ok := market.NormalizeSymbol(s)
			if !ok {
				continue
			}
			syms = append(syms, base+"-"+quote)
		}
		for _, batch := range chunk(syms, kucoinTopicsPerRequest) {
			topics = append(topics, kucoinTickerTopic+strings.Join(batch, ","))
		}
	}
	out := make([][]byte, 0, len(topics))
	for _, topic := range topics {
		payload, err := sonnet.Marshal(map[string]interface{}{
			"id":             uuid.NewString(),
			"type":           "subscribe",
			"topic":          topic,
			"privateChannel": false,
			"response":       true,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

func (k *Kucoin) KeepaliveReply(f Frame) []byte {
	if f.Kind != FramePing {
		return nil
	}
	payload, _ := sonnet.Marshal(map[string]string{"id": f.PingID, "type": "pong"})
	return payload
}

func (k *Kucoin) PingInterval() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ping
}

func (k *Kucoin) PingPayload() []byte {
	payload, _ := sonnet.Marshal(map[string]string{
		"id":   strconv.FormatInt(time.Now().UnixMilli(), 10),
		"type": "ping",
	})
	return payload
}

func (k *Kucoin) Decode(raw []byte) (Frame, error) {
	if firstByte(raw) != '{' {
		return Frame{}, parseErr(k.Name(), errors.New("not a json object"))
	}
	var env kucoinEnvelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return Frame{}, parseErr(k.Name(), err)
	}
	switch env.Type {
	case "welcome", "ack":
		return Frame{Kind: FrameAck}, nil
	case "ping":
		return Frame{Kind: FramePing, PingID: env.ID}, nil
	case "pong":
		return Frame{Kind: FramePong}, nil
	case "error":
		return Frame{Kind: FrameError, Message: strings.Trim(string(env.Data), `"`)}, nil
	case "message":
	default:
		return Frame{Kind: FrameIgnored}, nil
	}
	if !strings.HasPrefix(env.Topic, kucoinTickerTopic) {
		return Frame{Kind: FrameIgnored}, nil
	}
	items, err := decodeOneOrMany[kucoinTicker](env.Data)
	if err != nil {
		return Frame{}, parseErr(k.Name(), err)
	}
	// ticker:all 的交易对在 subject；单对订阅在 topic 冒号之后
	fallback := env.Subject
	if env.Topic != kucoinAllTickersTopic {
		fallback = strings.TrimPrefix(env.Topic, kucoinTickerTopic)
	}
	out := make([]Ticker, 0, len(items))
	for _, it := range items {
		sym := it.Symbol
		if sym == "" {
			sym = fallback
		}
		last := it.Price
		if !last.Set {
			last = it.LastPrice
		}
		if sym == "" || !last.Set {
			continue
		}
		out = append(out, Ticker{
			Symbol: sym,
			Last:   last.Value,
			Volume: firstSet(it.Vol, it.Size),
		})
	}
	return tickersFrame(out), nil
}

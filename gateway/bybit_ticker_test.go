package gateway

import (
	"errors"
	"testing"

	"github.com/sugawarayuuta/sonnet"
)

func TestBybitSubscribeBatches(t *testing.T) {
	syms := []string{"BTCUSDT", "eth-usdt", "ETH/BTC", "SOL_USDT", "XRPUSDT", "DOGEUSDT",
		"LTCUSDT", "ADAUSDT", "DOTUSDT", "LINKUSDT", "TRXUSDT", "-bad-"}
	b := NewBybit(Options{Symbols: syms})
	payloads, err := b.SubscribePayloads()
	if err != nil {
		t.Fatalf("subscribe err: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(payloads))
	}
	var first struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}
	if err := sonnet.Unmarshal(payloads[0], &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Op != "subscribe" || len(first.Args) != 10 {
		t.Fatalf("unexpected first batch %+v", first)
	}
	if first.Args[1] != "tickers.ETHUSDT" || first.Args[2] != "tickers.ETHBTC" {
		t.Fatalf("symbols not normalized: %v", first.Args)
	}
}

func TestBybitDecodeTicker(t *testing.T) {
	b := NewBybit(Options{})
	raw := []byte(`{"topic":"tickers.BTCUSDT","ts":1700000000000,"type":"snapshot","cs":1,
		"data":{"symbol":"BTCUSDT","lastPrice":"65000.5","volume24h":"1234.5","turnover24h":"80000000"}}`)
	f, err := b.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Kind != FrameTickers || len(f.Tickers) != 1 {
		t.Fatalf("unexpected frame %+v", f)
	}
	tk := f.Tickers[0]
	if tk.Symbol != "BTCUSDT" || tk.Last != 65000.5 || tk.Volume != 1234.5 {
		t.Fatalf("unexpected ticker %+v", tk)
	}

	arr := []byte(`{"topic":"tickers","data":[{"symbol":"ETHBTC","lastPrice":0.05},{"symbol":"SOLBTC"}]}`)
	f, err = b.Decode(arr)
	if err != nil || len(f.Tickers) != 1 || f.Tickers[0].Last != 0.05 {
		t.Fatalf("array data: %+v %v", f, err)
	}

	// delta 帧缺少 symbol 时取 topic
	delta := []byte(`{"topic":"tickers.XRPUSDT","type":"delta","data":{"lastPrice":"0.6"}}`)
	f, err = b.Decode(delta)
	if err != nil || len(f.Tickers) != 1 || f.Tickers[0].Symbol != "XRPUSDT" {
		t.Fatalf("delta: %+v %v", f, err)
	}
}

func TestBybitKeepalive(t *testing.T) {
	b := NewBybit(Options{})

	f, err := b.Decode([]byte(`{"op":"ping"}`))
	if err != nil || f.Kind != FramePing {
		t.Fatalf("server ping: %+v %v", f, err)
	}
	if string(b.KeepaliveReply(f)) != `{"op":"pong"}` {
		t.Fatalf("unexpected pong %s", b.KeepaliveReply(f))
	}

	f, err = b.Decode([]byte(`{"success":true,"ret_msg":"pong","conn_id":"x","op":"ping"}`))
	if err != nil || f.Kind != FramePong {
		t.Fatalf("pong response: %+v %v", f, err)
	}
	if b.KeepaliveReply(f) != nil {
		t.Fatalf("pong must not be answered")
	}

	f, err = b.Decode([]byte(`{"success":true,"ret_msg":"","op":"subscribe","conn_id":"x"}`))
	if err != nil || f.Kind != FrameAck {
		t.Fatalf("ack: %+v %v", f, err)
	}
	f, err = b.Decode([]byte(`{"success":false,"ret_msg":"handler not found","op":"subscribe"}`))
	if err != nil || f.Kind != FrameError || f.Message != "handler not found" {
		t.Fatalf("sub error: %+v %v", f, err)
	}
	if b.PingInterval() != bybitPingInterval || string(b.PingPayload()) != `{"op":"ping"}` {
		t.Fatalf("unexpected client ping config")
	}
}

func TestBybitDecodeMalformed(t *testing.T) {
	b := NewBybit(Options{})
	for _, raw := range []string{`[1,2]`, `{"topic":"tickers.BTCUSDT","data":{"lastPrice":"x"}}`, `{"topic":`} {
		if _, err := b.Decode([]byte(raw)); !errors.Is(err, ErrProtocolParse) {
			t.Fatalf("%q: expected parse error, got %v", raw, err)
		}
	}
}

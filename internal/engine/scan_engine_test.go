package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tri-arb-go/config"
	"tri-arb-go/internal/store"
	"tri-arb-go/market"
)

func pair(ex, base, quote string, price, vol float64) market.PairPrice {
	return market.PairPrice{Exchange: ex, Symbol: base + quote, Base: base, Quote: quote, Price: price, Volume: vol, IsSpot: true}
}

func defaults() config.ScanConfig {
	return config.ScanConfig{FeePerLegPct: 0.1, NeighborLimit: 100}
}

type chanSink struct {
	got chan ScanResult
	err error
}

func (s *chanSink) Name() string { return "test" }

func (s *chanSink) Publish(ctx context.Context, res ScanResult) error {
	s.got <- res
	return s.err
}

func newEngine(t *testing.T, st *store.Store, sink ResultSink) *ScanEngine {
	t.Helper()
	e, err := New(defaults(), Components{Store: st, Sink: sink})
	require.NoError(t, err)
	return e
}

func f64(v float64) *float64 { return &v }

func TestRunScanFindsTriangle(t *testing.T) {
	st := store.New(nil)
	st.Write("binance", []market.PairPrice{
		pair("binance", "A", "B", 2, 10),
		pair("binance", "B", "C", 3, 10),
	})
	st.Write("bybit", []market.PairPrice{pair("bybit", "C", "A", 0.2, 10)})
	e := newEngine(t, st, nil)

	res, err := e.RunScan(ScanRequest{Exchanges: []string{"Binance", "bybit", "binance"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"binance", "bybit"}, res.Exchanges)
	require.Equal(t, 1, res.CountOpportunities)
	assert.Equal(t, 19.64, res.Opportunities[0].ProfitAfterFeesPct)
	assert.Equal(t, 3, res.PairsConsidered)
	assert.Equal(t, 3, res.Nodes)
	assert.Equal(t, 6, res.Edges)

	// 只扫 binance 时闭环缺一条边
	res, err = e.RunScan(ScanRequest{Exchanges: []string{"binance"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.CountOpportunities)
}

func TestRunScanEmptySnapshot(t *testing.T) {
	sink := &chanSink{got: make(chan ScanResult, 1)}
	e := newEngine(t, store.New(nil), sink)

	res, err := e.RunScan(ScanRequest{Exchanges: []string{"kucoin"}})
	require.NoError(t, err)
	assert.NotNil(t, res.Opportunities)
	assert.Empty(t, res.Opportunities)
	assert.Equal(t, 0, res.PairsConsidered)
	assert.Equal(t, int64(1), e.GetStatistics().EmptyScans)
	e.Wait()
	assert.Len(t, sink.got, 0, "empty scans are not published")
}

func TestRunScanDefaultsToAllExchanges(t *testing.T) {
	e := newEngine(t, store.New(nil), nil)
	res, err := e.RunScan(ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"binance", "bybit", "gateio", "kucoin"}, res.Exchanges)
	assert.Equal(t, 0.1, res.FeePerLegPct)
	assert.Equal(t, 100, res.NeighborLimit)
}

func TestRunScanRejectsBadRequest(t *testing.T) {
	e := newEngine(t, store.New(nil), nil)
	_, err := e.RunScan(ScanRequest{Exchanges: []string{"okx"}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = e.RunScan(ScanRequest{FeePerLegPct: f64(-0.5)})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestRunScanRequestOverrides(t *testing.T) {
	st := store.New(nil)
	st.Write("gateio", []market.PairPrice{
		pair("gateio", "A", "B", 2, 10),
		pair("gateio", "B", "C", 3, 10),
		pair("gateio", "C", "A", 0.2, 10),
	})
	e := newEngine(t, st, nil)

	res, err := e.RunScan(ScanRequest{Exchanges: []string{"gate.io"}, FeePerLegPct: f64(0), NeighborLimit: -1})
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, 20.0, res.Opportunities[0].ProfitAfterFeesPct)
	assert.Equal(t, 0, res.NeighborLimit)

	res, err = e.RunScan(ScanRequest{MinProfitAfterFeesPct: f64(25)})
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
}

func TestUpdateDefaults(t *testing.T) {
	e := newEngine(t, store.New(nil), nil)
	require.NoError(t, e.UpdateDefaults(config.ScanConfig{FeePerLegPct: 0.2, NeighborLimit: 10}))
	assert.Equal(t, 0.2, e.Defaults().FeePerLegPct)

	assert.Error(t, e.UpdateDefaults(config.ScanConfig{FeePerLegPct: 200}))
	assert.Equal(t, 0.2, e.Defaults().FeePerLegPct)
}

func TestPublishesToSink(t *testing.T) {
	st := store.New(nil)
	st.Write("binance", []market.PairPrice{pair("binance", "BTC", "USDT", 50000, 1)})
	sink := &chanSink{got: make(chan ScanResult, 1), err: errors.New("redis down")}
	e := newEngine(t, st, sink)

	res, err := e.RunScan(ScanRequest{Exchanges: []string{"binance"}})
	require.NoError(t, err, "sink errors never reach the caller")
	select {
	case got := <-sink.got:
		assert.Equal(t, res.PairsConsidered, got.PairsConsidered)
	case <-time.After(time.Second):
		t.Fatal("sink not called")
	}
	e.Wait()
}

func TestPublishesToEverySink(t *testing.T) {
	st := store.New(nil)
	st.Write("binance", []market.PairPrice{pair("binance", "BTC", "USDT", 50000, 1)})
	failing := &chanSink{got: make(chan ScanResult, 1), err: errors.New("redis down")}
	ok := &chanSink{got: make(chan ScanResult, 1)}
	e, err := New(defaults(), Components{Store: st, Sink: failing, Sinks: []ResultSink{nil, ok}})
	require.NoError(t, err)

	_, err = e.RunScan(ScanRequest{})
	require.NoError(t, err)
	e.Wait()
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1, "a failing sink does not block the others")
}

func TestConcurrentScansWithWriters(t *testing.T) {
	st := store.New(nil)
	e := newEngine(t, st, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			st.Write("binance", []market.PairPrice{
				pair("binance", "A", "B", 2, float64(i)),
				pair("binance", "B", "C", 3, 1),
				pair("binance", "C", "A", 0.2, 1),
			})
		}
	}()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := e.RunScan(ScanRequest{Exchanges: []string{"binance"}})
				if err != nil {
					t.Errorf("scan: %v", err)
					return
				}
				if res.PairsConsidered != 0 && res.PairsConsidered != 3 {
					t.Errorf("torn snapshot: %d pairs", res.PairsConsidered)
				}
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	assert.GreaterOrEqual(t, e.GetStatistics().TotalScans, int64(200))
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(defaults(), Components{})
	assert.Error(t, err)
	_, err = New(config.ScanConfig{FeePerLegPct: -1}, Components{Store: store.New(nil)})
	assert.Error(t, err)
}

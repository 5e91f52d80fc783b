package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tri-arb-go/arbitrage"
	"tri-arb-go/config"
	"tri-arb-go/infrastructure/monitor"
	"tri-arb-go/internal/engine"
	"tri-arb-go/internal/exchange"
	"tri-arb-go/internal/store"
	"tri-arb-go/market"
)

// MockScanService implements ScanService for testing
type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) RunScan(req engine.ScanRequest) (engine.ScanResult, error) {
	args := m.Called(req)
	return args.Get(0).(engine.ScanResult), args.Error(1)
}

type staticStatus []exchange.Stats

func (s staticStatus) Stats() []exchange.Stats { return s }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScanEndToEnd(t *testing.T) {
	st := store.New(nil)
	st.Write("binance", []market.PairPrice{
		{Exchange: "binance", Symbol: "AB", Base: "A", Quote: "B", Price: 2, Volume: 1, IsSpot: true},
		{Exchange: "binance", Symbol: "BC", Base: "B", Quote: "C", Price: 3, Volume: 1, IsSpot: true},
		{Exchange: "binance", Symbol: "CA", Base: "C", Quote: "A", Price: 0.2, Volume: 1, IsSpot: true},
	})
	eng, err := engine.New(config.ScanConfig{FeePerLegPct: 0.1, NeighborLimit: 100}, engine.Components{Store: st})
	require.NoError(t, err)
	router := NewHandler(eng, nil, nil, nil, nil).Routes()

	rec := do(t, router, http.MethodPost, "/scan", `{"exchanges":["binance"],"min_profit_after_fees_pct":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Status             string   `json:"status"`
		Errors             []string `json:"errors"`
		CountPairs         int      `json:"count_pairs"`
		CountOpportunities int      `json:"count_opportunities"`
		Results            []struct {
			Route              string    `json:"route"`
			Pairs              [3]string `json:"pairs"`
			ProfitAfterFeesPct float64   `json:"profit_after_fees_pct"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Errors)
	assert.Equal(t, 3, body.CountPairs)
	require.Equal(t, 1, body.CountOpportunities)
	assert.Equal(t, "A → B → C → A", body.Results[0].Route)
	assert.Equal(t, [3]string{"A/B", "B/C", "C/A"}, body.Results[0].Pairs)
	assert.Equal(t, 19.64, body.Results[0].ProfitAfterFeesPct)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeaderKey))
}

func TestScanEmptyBodyUsesDefaults(t *testing.T) {
	svc := new(MockScanService)
	svc.On("RunScan", engine.ScanRequest{}).Return(engine.ScanResult{Opportunities: []arbitrage.Opportunity{}}, nil)
	router := NewHandler(svc, nil, nil, nil, nil).Routes()

	rec := do(t, router, http.MethodPost, "/scan", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestScanUnsupportedExchange(t *testing.T) {
	svc := new(MockScanService)
	svc.On("RunScan", mock.Anything).Return(engine.ScanResult{}, fmt.Errorf("%w: okx", engine.ErrInvalidRequest))
	mon := monitor.New(monitor.DefaultConfig())
	router := NewHandler(svc, nil, nil, nil, mon).Routes()

	rec := do(t, router, http.MethodPost, "/scan", `{"exchanges":["okx"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
	assert.Contains(t, rec.Body.String(), "okx")

	metrics := httptest.NewRecorder()
	mon.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), `triarb_scanner_api_errors_total{route="/scan"} 1`)
}

func TestScanBadJSON(t *testing.T) {
	svc := new(MockScanService)
	router := NewHandler(svc, nil, nil, nil, nil).Routes()
	rec := do(t, router, http.MethodPost, "/scan", `{"exchanges":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "RunScan", mock.Anything)
}

func TestScanInternalError(t *testing.T) {
	svc := new(MockScanService)
	svc.On("RunScan", mock.Anything).Return(engine.ScanResult{}, errors.New("boom"))
	router := NewHandler(svc, nil, nil, nil, nil).Routes()
	rec := do(t, router, http.MethodPost, "/scan", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestExchangesEndpoint(t *testing.T) {
	status := staticStatus{{Exchange: "binance", State: "streaming", Messages: 10}}
	router := NewHandler(new(MockScanService), status, nil, nil, nil).Routes()
	rec := do(t, router, http.MethodGet, "/exchanges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"streaming"`)
	assert.Contains(t, rec.Body.String(), `"gateio"`)
}

func TestHealthCheck(t *testing.T) {
	healthy := NewHandler(new(MockScanService), nil, func() error { return nil }, nil, nil).Routes()
	assert.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/health", "").Code)

	broken := NewHandler(new(MockScanService), nil, func() error { return errors.New("binance connector not started") }, nil, nil).Routes()
	rec := do(t, broken, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not started")
}

func TestRequestIDPropagated(t *testing.T) {
	router := NewHandler(new(MockScanService), nil, nil, nil, nil).Routes()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeaderKey, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeaderKey))
}

func TestCORSPreflight(t *testing.T) {
	router := NewHandler(new(MockScanService), nil, nil, nil, nil).Routes()
	rec := do(t, router, http.MethodOptions, "/scan", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

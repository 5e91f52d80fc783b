package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectorMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordWSConnection("binance")
	m.RecordWSConnection("binance")
	m.RecordWSDisconnect("binance")
	m.RecordParseError("bybit")
	m.RecordDroppedTick("gateio", "normalize")
	m.RecordFlush("kucoin", 42)
	m.UpdateConnectorState("kucoin", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.wsConnections.WithLabelValues("binance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsDisconnects.WithLabelValues("binance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseErrors.WithLabelValues("bybit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedTicks.WithLabelValues("gateio", "normalize")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.snapshotPairs.WithLabelValues("kucoin")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.connectorState.WithLabelValues("kucoin")))
}

func TestScanMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordScan(0.02, 1500, 3, 1.25)
	m.RecordScan(0.01, 1400, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scansTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.opportunities))
	assert.Equal(t, 1400.0, testutil.ToFloat64(m.scanPairs))
	assert.Equal(t, 1, testutil.CollectAndCount(m.scanDuration))
}

func TestIndependentRegistries(t *testing.T) {
	a := New(DefaultConfig())
	b := New(DefaultConfig())
	a.RecordSinkError("redis")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.sinkErrors.WithLabelValues("redis")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordAPIRequest("/scan")
	m.RecordAPILatency("/scan", 0.003)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `triarb_scanner_api_requests_total{route="/scan"} 1`))
}

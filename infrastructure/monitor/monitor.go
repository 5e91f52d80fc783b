package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器，每个实例独立 registry
type Monitor struct {
	registry *prometheus.Registry

	// 连接器指标（按交易所）
	wsConnections   *prometheus.CounterVec
	wsDisconnects   *prometheus.CounterVec
	connectErrors   *prometheus.CounterVec
	subscribeErrors *prometheus.CounterVec
	messages        *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	droppedTicks    *prometheus.CounterVec
	flushes         *prometheus.CounterVec
	snapshotPairs   *prometheus.GaugeVec
	connectorState  *prometheus.GaugeVec

	// 扫描指标
	scansTotal    prometheus.Counter
	scanDuration  prometheus.Histogram
	opportunities prometheus.Gauge
	bestProfit    prometheus.Gauge
	scanPairs     prometheus.Gauge

	// 结果推送
	sinkErrors *prometheus.CounterVec

	// HTTP 接口
	apiRequests *prometheus.CounterVec
	apiErrors   *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "triarb",
		Subsystem: "scanner",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	m := &Monitor{
		registry: reg,

		wsConnections:   counterVec("ws_connections_total", "WebSocket连接成功次数", "exchange"),
		wsDisconnects:   counterVec("ws_disconnects_total", "WebSocket断开次数", "exchange"),
		connectErrors:   counterVec("connect_errors_total", "连接失败次数", "exchange"),
		subscribeErrors: counterVec("subscribe_errors_total", "订阅失败次数", "exchange"),
		messages:        counterVec("messages_total", "收到的帧总数", "exchange"),
		parseErrors:     counterVec("parse_errors_total", "无法解析的帧", "exchange"),
		droppedTicks:    counterVec("dropped_ticks_total", "被丢弃的行情", "exchange", "reason"),
		flushes:         counterVec("flushes_total", "快照写入次数", "exchange"),
		snapshotPairs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "snapshot_pairs",
			Help:      "最近一次快照的交易对数量",
		}, []string{"exchange"}),
		connectorState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connector_state",
			Help:      "连接器状态(0=断开,1=连接中,2=已订阅,3=接收中)",
		}, []string{"exchange"}),

		scansTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scans_total",
			Help:      "扫描次数",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scan_duration_seconds",
			Help:      "单次扫描耗时（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		opportunities: gauge("scan_opportunities", "最近一次扫描的机会数"),
		bestProfit:    gauge("scan_best_profit_pct", "最近一次扫描的最高费后收益(%)"),
		scanPairs:     gauge("scan_pairs", "最近一次扫描参与的行情条数"),

		sinkErrors: counterVec("sink_errors_total", "结果推送失败次数", "sink"),

		apiRequests: counterVec("api_requests_total", "HTTP请求总数", "route"),
		apiErrors:   counterVec("api_errors_total", "HTTP错误响应总数", "route"),
		apiLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "api_latency_seconds",
				Help:      "HTTP请求延迟（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	return m
}

// 连接器相关方法
func (m *Monitor) RecordWSConnection(exchange string) {
	m.wsConnections.WithLabelValues(exchange).Inc()
}

func (m *Monitor) RecordWSDisconnect(exchange string) {
	m.wsDisconnects.WithLabelValues(exchange).Inc()
}

func (m *Monitor) RecordConnectError(exchange string) {
	m.connectErrors.WithLabelValues(exchange).Inc()
}

func (m *Monitor) RecordSubscribeError(exchange string) {
	m.subscribeErrors.WithLabelValues(exchange).Inc()
}

func (m *Monitor) RecordMessage(exchange string) {
	m.messages.WithLabelValues(exchange).Inc()
}

func (m *Monitor) RecordParseError(exchange string) {
	m.parseErrors.WithLabelValues(exchange).Inc()
}

func (m *Monitor) RecordDroppedTick(exchange, reason string) {
	m.droppedTicks.WithLabelValues(exchange, reason).Inc()
}

// RecordFlush 记录一次快照写入及其大小
func (m *Monitor) RecordFlush(exchange string, pairs int) {
	m.flushes.WithLabelValues(exchange).Inc()
	m.snapshotPairs.WithLabelValues(exchange).Set(float64(pairs))
}

func (m *Monitor) UpdateConnectorState(exchange string, state int) {
	m.connectorState.WithLabelValues(exchange).Set(float64(state))
}

// RecordScan 记录一次扫描结果
func (m *Monitor) RecordScan(seconds float64, pairs, found int, best float64) {
	m.scansTotal.Inc()
	m.scanDuration.Observe(seconds)
	m.scanPairs.Set(float64(pairs))
	m.opportunities.Set(float64(found))
	m.bestProfit.Set(best)
}

func (m *Monitor) RecordSinkError(sink string) {
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// HTTP 相关方法
func (m *Monitor) RecordAPIRequest(route string) {
	m.apiRequests.WithLabelValues(route).Inc()
}

func (m *Monitor) RecordAPIError(route string) {
	m.apiErrors.WithLabelValues(route).Inc()
}

func (m *Monitor) RecordAPILatency(route string, seconds float64) {
	m.apiLatency.WithLabelValues(route).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Package engine 编排一次扫描：读快照、建图、搜环、排序，并把结果交给可选的推送器。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tri-arb-go/arbitrage"
	"tri-arb-go/config"
	"tri-arb-go/gateway"
	"tri-arb-go/infrastructure/logger"
	"tri-arb-go/infrastructure/monitor"
	"tri-arb-go/market"
)

// ErrInvalidRequest 请求参数非法（未知交易所、费率越界等）。
var ErrInvalidRequest = errors.New("invalid scan request")

// SnapshotReader 快照读取，通常是 *store.Store。
type SnapshotReader interface {
	Read(exchanges []string) []market.PairPrice
	Exchanges() []string
}

// ResultSink 扫描结果的外部推送（Redis 等），错误不影响扫描调用方。
type ResultSink interface {
	Publish(ctx context.Context, res ScanResult) error
	Name() string
}

// ScanRequest 单次扫描参数；指针字段为空时使用默认值。
// NeighborLimit 为 0 使用默认值，负数表示不限制。
type ScanRequest struct {
	Exchanges             []string `json:"exchanges"`
	MinProfitAfterFeesPct *float64 `json:"min_profit_after_fees_pct"`
	FeePerLegPct          *float64 `json:"fee_per_leg_pct"`
	NeighborLimit         int      `json:"neighbor_limit"`
}

// ScanResult 排好序的机会列表与聚合计数。
type ScanResult struct {
	Opportunities      []arbitrage.Opportunity `json:"results"`
	CountOpportunities int                     `json:"count_opportunities"`
	PairsConsidered    int                     `json:"count_pairs"`
	Nodes              int                     `json:"nodes"`
	Edges              int                     `json:"edges"`
	Exchanges          []string                `json:"exchanges"`
	FeePerLegPct       float64                 `json:"fee_per_leg_pct"`
	NeighborLimit      int                     `json:"neighbor_limit"`
	DurationMs         float64                 `json:"duration_ms"`
	ScannedAt          time.Time               `json:"scanned_at"`
}

// Components 引擎依赖组件
type Components struct {
	Store   SnapshotReader
	Logger  *logger.Logger
	Monitor *monitor.Monitor
	Sink    ResultSink
	// Sinks 额外的推送目标，与 Sink 一起按顺序调用。
	Sinks []ResultSink
}

// Statistics 引擎统计信息
type Statistics struct {
	TotalScans    int64
	EmptyScans    int64
	TotalFound    int64
	LastScanTime  time.Time
	LastScanPairs int
}

// ScanEngine 扫描编排器。RunScan 可被并发调用，只做内存计算。
type ScanEngine struct {
	store  SnapshotReader
	logger *logger.Logger
	mon    *monitor.Monitor
	sinks  []ResultSink

	mu       sync.RWMutex
	defaults config.ScanConfig
	stats    Statistics

	publishTimeout time.Duration
	wg             sync.WaitGroup
}

// New 创建扫描引擎
func New(defaults config.ScanConfig, c Components) (*ScanEngine, error) {
	if c.Store == nil {
		return nil, errors.New("snapshot store is required")
	}
	if err := config.ValidateScan(defaults); err != nil {
		return nil, fmt.Errorf("invalid defaults: %w", err)
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Monitor == nil {
		c.Monitor = monitor.New(monitor.DefaultConfig())
	}
	var sinks []ResultSink
	if c.Sink != nil {
		sinks = append(sinks, c.Sink)
	}
	for _, s := range c.Sinks {
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	return &ScanEngine{
		store:          c.Store,
		logger:         c.Logger,
		mon:            c.Monitor,
		sinks:          sinks,
		defaults:       defaults,
		publishTimeout: 3 * time.Second,
	}, nil
}

// Defaults 当前默认参数。
func (e *ScanEngine) Defaults() config.ScanConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults
}

// UpdateDefaults 热更新默认参数，非法值被拒绝且保留旧值。
func (e *ScanEngine) UpdateDefaults(d config.ScanConfig) error {
	if err := config.ValidateScan(d); err != nil {
		return err
	}
	e.mu.Lock()
	old := e.defaults
	e.defaults = d
	e.mu.Unlock()
	e.logger.Info("scan defaults updated",
		zap.Float64("old_fee_pct", old.FeePerLegPct),
		zap.Float64("new_fee_pct", d.FeePerLegPct),
		zap.Int("old_neighbor_limit", old.NeighborLimit),
		zap.Int("new_neighbor_limit", d.NeighborLimit),
	)
	return nil
}

// GetStatistics 获取统计信息
func (e *ScanEngine) GetStatistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// resolve 合并请求与默认值，并将交易所名称规范化、去重。
func (e *ScanEngine) resolve(req ScanRequest) ([]string, config.ScanConfig, error) {
	params := e.Defaults()
	if req.FeePerLegPct != nil {
		params.FeePerLegPct = *req.FeePerLegPct
	}
	if req.MinProfitAfterFeesPct != nil {
		params.MinProfitAfterFeesPct = *req.MinProfitAfterFeesPct
	}
	switch {
	case req.NeighborLimit > 0:
		params.NeighborLimit = req.NeighborLimit
	case req.NeighborLimit < 0:
		params.NeighborLimit = 0
	}
	if err := config.ValidateScan(params); err != nil {
		return nil, params, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var names []string
	if len(req.Exchanges) == 0 {
		names = gateway.Supported()
	} else {
		seen := make(map[string]bool, len(req.Exchanges))
		for _, raw := range req.Exchanges {
			name, ok := gateway.CanonicalName(raw)
			if !ok {
				return nil, params, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, raw, gateway.ErrUnsupportedExchange)
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		sort.Strings(names)
	}
	return names, params, nil
}

// RunScan 读快照 → 建图 → 搜环。没有数据时返回空结果而不是错误；
// 只有请求本身非法才返回 ErrInvalidRequest。
func (e *ScanEngine) RunScan(req ScanRequest) (ScanResult, error) {
	start := time.Now()
	names, params, err := e.resolve(req)
	if err != nil {
		return ScanResult{}, err
	}

	pairs := e.store.Read(names)
	res := ScanResult{
		Opportunities: []arbitrage.Opportunity{},
		Exchanges:     names,
		FeePerLegPct:  params.FeePerLegPct,
		NeighborLimit: params.NeighborLimit,
		ScannedAt:     start.UTC(),
	}
	if len(pairs) == 0 {
		e.logger.Debug("snapshot empty", zap.Strings("exchanges", names))
		e.finish(&res, start, true)
		return res, nil
	}

	g := arbitrage.BuildGraph(pairs, params.NeighborLimit)
	res.Opportunities = arbitrage.Scan(g, arbitrage.ScanParams{
		MinProfitAfterFeesPct: params.MinProfitAfterFeesPct,
		FeePerLegPct:          params.FeePerLegPct,
	})
	res.PairsConsidered = g.PairCount()
	res.Nodes = len(g.Nodes())
	res.Edges = g.EdgeCount()
	e.finish(&res, start, false)
	e.publish(res)
	return res, nil
}

func (e *ScanEngine) finish(res *ScanResult, start time.Time, empty bool) {
	res.CountOpportunities = len(res.Opportunities)
	elapsed := time.Since(start)
	res.DurationMs = float64(elapsed.Microseconds()) / 1000

	best := 0.0
	if len(res.Opportunities) > 0 {
		best = res.Opportunities[0].ProfitAfterFeesPct
	}
	e.mon.RecordScan(elapsed.Seconds(), res.PairsConsidered, res.CountOpportunities, best)

	e.mu.Lock()
	e.stats.TotalScans++
	if empty {
		e.stats.EmptyScans++
	}
	e.stats.TotalFound += int64(res.CountOpportunities)
	e.stats.LastScanTime = res.ScannedAt
	e.stats.LastScanPairs = res.PairsConsidered
	e.mu.Unlock()

	if !empty {
		e.logger.LogScan(map[string]interface{}{
			"exchanges":     res.Exchanges,
			"pairs":         res.PairsConsidered,
			"nodes":         res.Nodes,
			"edges":         res.Edges,
			"opportunities": res.CountOpportunities,
			"best_pct":      best,
			"duration_ms":   res.DurationMs,
		})
	}
}

// publish 异步推送，不阻塞调用方；每个 sink 独立超时。
func (e *ScanEngine) publish(res ScanResult) {
	for _, sink := range e.sinks {
		e.wg.Add(1)
		go func(sink ResultSink) {
			defer e.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), e.publishTimeout)
			defer cancel()
			if err := sink.Publish(ctx, res); err != nil {
				e.mon.RecordSinkError(sink.Name())
				e.logger.LogError(err, map[string]interface{}{"component": "engine", "sink": sink.Name()})
			}
		}(sink)
	}
}

// Wait 等待所有在途推送完成，关闭时调用。
func (e *ScanEngine) Wait() {
	e.wg.Wait()
}

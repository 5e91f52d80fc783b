package alert

import (
	"context"
	"sync"

	"tri-arb-go/internal/engine"
	"tri-arb-go/internal/exchange"
)

// OpportunityNotifier 费后收益达到阈值的三角发出告警，同一三角受限流约束。
// 实现 engine.ResultSink。
type OpportunityNotifier struct {
	manager   *Manager
	threshold float64
}

func NewOpportunityNotifier(m *Manager, minProfitPct float64) *OpportunityNotifier {
	return &OpportunityNotifier{manager: m, threshold: minProfitPct}
}

func (n *OpportunityNotifier) Name() string { return "alert" }

func (n *OpportunityNotifier) Publish(ctx context.Context, res engine.ScanResult) error {
	var lastErr error
	// 结果已按费后收益降序
	for _, o := range res.Opportunities {
		if o.ProfitAfterFeesPct < n.threshold {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := n.manager.Send(Alert{
			Level:   LevelWarning,
			Key:     "opportunity:" + o.Route,
			Message: "triangular opportunity",
			Fields: map[string]interface{}{
				"route":                 o.Route,
				"pairs":                 o.PairsLabel(),
				"profit_after_fees_pct": o.ProfitAfterFeesPct,
				"liquidity_score":       o.LiquidityScore,
				"exchanges":             res.Exchanges,
			},
		})
		if err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// StreamWatch 返回连接器状态回调：行情流中断发 WARNING，恢复发 INFO。
// 从未进入 streaming 的重连不告警。
func StreamWatch(m *Manager, exchangeName string) func(exchange.State) {
	var mu sync.Mutex
	streaming, lost := false, false
	return func(s exchange.State) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case s == exchange.StateStreaming && !streaming:
			streaming = true
			if lost {
				lost = false
				m.ResetThrottle("stream_lost:" + exchangeName)
				_, _ = m.Send(Alert{
					Level:   LevelInfo,
					Key:     "stream_restored:" + exchangeName,
					Message: "exchange stream restored",
					Fields:  map[string]interface{}{"exchange": exchangeName},
				})
			}
		case s == exchange.StateDisconnected && streaming:
			streaming, lost = false, true
			_, _ = m.Send(Alert{
				Level:   LevelWarning,
				Key:     "stream_lost:" + exchangeName,
				Message: "exchange stream lost",
				Fields:  map[string]interface{}{"exchange": exchangeName},
			})
		}
	}
}

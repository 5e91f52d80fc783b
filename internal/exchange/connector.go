// Package exchange 管理交易所 WS 会话：拨号、订阅、心跳、读取、定时落盘与断线重连。
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tri-arb-go/gateway"
	"tri-arb-go/infrastructure/logger"
	"tri-arb-go/infrastructure/monitor"
	"tri-arb-go/market"
)

var (
	// ErrConnect 拨号或取端点失败，按退避重试。
	ErrConnect = errors.New("exchange connect failed")
	// ErrSubscribe 订阅报文发送失败。
	ErrSubscribe = errors.New("exchange subscribe failed")
)

// SnapshotWriter 快照落盘目标，通常是 *store.Store。
type SnapshotWriter interface {
	Write(exchange string, pairs []market.PairPrice)
}

// Options 连接器参数，零值字段由 DefaultOptions 补齐。
type Options struct {
	FlushInterval    time.Duration
	ReadTimeout      time.Duration
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	// MaxSubscribeFailures 连续多少次会话订阅失败后按连接失败退避。
	MaxSubscribeFailures int
	// Limiter 订阅报文限速，可为空。
	Limiter gateway.RateLimiter
	Header  http.Header
}

func DefaultOptions() Options {
	return Options{
		FlushInterval:        time.Second,
		ReadTimeout:          60 * time.Second,
		ReconnectDelay:       2 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		InitialBackoff:       3 * time.Second,
		MaxBackoff:           60 * time.Second,
		MaxSubscribeFailures: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FlushInterval <= 0 {
		o.FlushInterval = d.FlushInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.MaxSubscribeFailures <= 0 {
		o.MaxSubscribeFailures = d.MaxSubscribeFailures
	}
	return o
}

// Stats 连接器运行计数，供 /exchanges 状态接口使用。
type Stats struct {
	Exchange    string    `json:"exchange"`
	State       string    `json:"state"`
	Messages    int64     `json:"messages"`
	ParseErrors int64     `json:"parse_errors"`
	Dropped     int64     `json:"dropped"`
	Flushes     int64     `json:"flushes"`
	Reconnects  int64     `json:"reconnects"`
	LastPairs   int       `json:"last_pairs"`
	LastFlush   time.Time `json:"last_flush"`
	LastError   string    `json:"last_error,omitempty"`
}

// Connector 单个交易所的行情会话。
type Connector struct {
	proto  gateway.Protocol
	name   string
	sink   SnapshotWriter
	opts   Options
	log    *logger.Logger
	mon    *monitor.Monitor
	dialer *websocket.Dialer

	state       atomic.Int32
	messages    atomic.Int64
	parseErrors atomic.Int64
	dropped     atomic.Int64
	flushes     atomic.Int64
	reconnects  atomic.Int64

	mu        sync.Mutex
	lastFlush time.Time
	lastPairs int
	lastErr   string
	onState   func(State)
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
	now     func() time.Time
	// sleep 等待重连延迟，ctx 结束返回 false。
	sleep func(ctx context.Context, d time.Duration) bool
}

// New 创建连接器；log/mon 为空时使用丢弃实现。
func New(proto gateway.Protocol, sink SnapshotWriter, opts Options, log *logger.Logger, mon *monitor.Monitor) *Connector {
	if log == nil {
		log = logger.Nop()
	}
	if mon == nil {
		mon = monitor.New(monitor.DefaultConfig())
	}
	opts = opts.withDefaults()
	return &Connector{
		proto: proto,
		name:  proto.Name(),
		sink:  sink,
		opts:  opts,
		log:   log,
		mon:   mon,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Connector) Name() string { return c.name }

// State 当前状态。
func (c *Connector) State() State { return State(c.state.Load()) }

// OnStateChange 注册状态变更回调，需在 Start/Run 之前调用。
func (c *Connector) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connector) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.mon.UpdateConnectorState(c.name, int(s))
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Connector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Exchange:    c.name,
		State:       c.State().String(),
		Messages:    c.messages.Load(),
		ParseErrors: c.parseErrors.Load(),
		Dropped:     c.dropped.Load(),
		Flushes:     c.flushes.Load(),
		Reconnects:  c.reconnects.Load(),
		LastPairs:   c.lastPairs,
		LastFlush:   c.lastFlush,
		LastError:   c.lastErr,
	}
}

// Start 后台运行 Run，直到 Stop 或 ctx 结束。
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = c.Run(runCtx)
	}(c.done)
	return nil
}

// Stop 取消会话并等待后台循环退出。
func (c *Connector) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Health 未启动视为不健康；断线重连属于正常运行。
func (c *Connector) Health() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return fmt.Errorf("%s connector not started", c.name)
	}
	return nil
}

// Run 阻塞执行连接循环，ctx 结束时返回 nil。连接失败永远不会终止循环。
// 连接成功即重置连接退避；订阅连续失败达到阈值后改用独立的订阅退避，
// 直到某次会话订阅成功。
func (c *Connector) Run(ctx context.Context) error {
	bo := &Backoff{Initial: c.opts.InitialBackoff, Max: c.opts.MaxBackoff}
	subBo := &Backoff{Initial: c.opts.InitialBackoff, Max: c.opts.MaxBackoff}
	subFailures := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}
		res := c.session(ctx)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}

		if res.connected {
			bo.Reset()
			if res.subscribeFailed {
				subFailures++
			} else {
				subFailures = 0
				subBo.Reset()
			}
		}

		delay := c.opts.ReconnectDelay
		switch {
		case !res.connected:
			delay = bo.Next()
		case subFailures >= c.opts.MaxSubscribeFailures:
			delay = subBo.Next()
			c.log.LogConnector("subscribe_failures_exceeded", c.name, map[string]interface{}{
				"consecutive": subFailures,
			})
		}
		if res.err != nil {
			c.setLastError(res.err)
		}
		c.reconnects.Add(1)
		c.log.LogConnector("reconnect_scheduled", c.name, map[string]interface{}{
			"delay_ms": delay.Milliseconds(),
			"reason":   errString(res.err),
		})

		if !c.sleep(ctx, delay) {
			c.setState(StateDisconnected)
			return nil
		}
	}
}

type sessionResult struct {
	connected       bool
	subscribeFailed bool
	err             error
}

// session 单次会话：本地 map 只在此函数内可见，返回即丢弃。
func (c *Connector) session(ctx context.Context) sessionResult {
	c.setState(StateConnecting)
	endpoint, err := c.proto.Endpoint(ctx)
	if err == nil && endpoint == "" {
		err = gateway.ErrEmptyEndpoint
	}
	if err != nil {
		return c.connectFailed(fmt.Errorf("%w: %s endpoint: %v", ErrConnect, c.name, err))
	}
	conn, _, err := c.dialer.DialContext(ctx, endpoint, c.opts.Header)
	if err != nil {
		return c.connectFailed(fmt.Errorf("%w: %s dial: %v", ErrConnect, c.name, err))
	}
	defer conn.Close()

	c.mon.RecordWSConnection(c.name)
	c.log.LogConnector("connected", c.name, map[string]interface{}{"endpoint": endpoint})
	defer func() {
		c.mon.RecordWSDisconnect(c.name)
		c.log.LogConnector("disconnected", c.name, nil)
	}()

	res := sessionResult{connected: true}
	c.setState(StateSubscribed)
	if err := c.subscribe(ctx, conn); err != nil {
		res.subscribeFailed = true
		c.setLastError(err)
		c.mon.RecordSubscribeError(c.name)
		c.log.Warn("subscribe failed, keep reading", zap.String("exchange", c.name), zap.Error(err))
	}

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	msgs := make(chan []byte, 256)
	readErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
			select {
			case msgs <- data:
			case <-sessCtx.Done():
				return
			}
		}
	}()

	if iv := c.proto.PingInterval(); iv > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.keepalive(sessCtx, conn, iv)
		}()
	}

	c.setState(StateStreaming)
	local := make(map[string]market.PairPrice)
	flush := time.NewTicker(c.opts.FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return res
		case <-flush.C:
			c.flush(local)
		case data, ok := <-msgs:
			if !ok {
				select {
				case res.err = <-readErr:
				default:
				}
				return res
			}
			if err := c.handle(conn, data, local); err != nil {
				res.err = err
				return res
			}
		}
	}
}

func (c *Connector) connectFailed(err error) sessionResult {
	c.mon.RecordConnectError(c.name)
	c.log.LogError(err, map[string]interface{}{"exchange": c.name, "stage": "connect"})
	return sessionResult{err: err}
}

func (c *Connector) subscribe(ctx context.Context, conn *websocket.Conn) error {
	payloads, err := c.proto.SubscribePayloads()
	if err != nil {
		return fmt.Errorf("%w: %s build payload: %v", ErrSubscribe, c.name, err)
	}
	for i, p := range payloads {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %s limiter: %v", ErrSubscribe, c.name, err)
			}
		}
		if err := c.write(conn, p); err != nil {
			return fmt.Errorf("%w: %s payload %d/%d: %v", ErrSubscribe, c.name, i+1, len(payloads), err)
		}
	}
	if len(payloads) > 0 {
		c.log.LogConnector("subscribed", c.name, map[string]interface{}{"payloads": len(payloads)})
	}
	return nil
}

func (c *Connector) keepalive(ctx context.Context, conn *websocket.Conn, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p := c.proto.PingPayload()
			if p == nil {
				continue
			}
			if err := c.write(conn, p); err != nil {
				c.log.LogError(err, map[string]interface{}{"exchange": c.name, "stage": "ping"})
				_ = conn.Close()
				return
			}
		}
	}
}

// write 所有写操作串行化，gorilla 连接只允许一个并发写者。
func (c *Connector) write(conn *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// handle 处理一帧；只有写失败（连接已坏）才返回错误。
func (c *Connector) handle(conn *websocket.Conn, data []byte, local map[string]market.PairPrice) error {
	c.messages.Add(1)
	c.mon.RecordMessage(c.name)

	frame, err := c.proto.Decode(data)
	if err != nil {
		c.parseErrors.Add(1)
		c.mon.RecordParseError(c.name)
		c.log.Debug("skip unparseable frame", zap.String("exchange", c.name), zap.Error(err))
		return nil
	}

	switch frame.Kind {
	case gateway.FramePing:
		if reply := c.proto.KeepaliveReply(frame); reply != nil {
			if err := c.write(conn, reply); err != nil {
				return fmt.Errorf("%s keepalive reply: %w", c.name, err)
			}
		}
	case gateway.FrameError:
		c.mon.RecordSubscribeError(c.name)
		c.setLastError(fmt.Errorf("%s: %s", c.name, frame.Message))
		c.log.Warn("exchange_error", zap.String("exchange", c.name), zap.String("message", frame.Message))
	case gateway.FrameTickers:
		ts := c.now()
		for _, t := range frame.Tickers {
			pp, err := market.NewPairPrice(c.name, t.Symbol, t.Last, t.Volume, ts)
			if err != nil {
				reason := "invalid_price"
				if errors.Is(err, market.ErrNormalize) {
					reason = "normalize"
				}
				c.dropped.Add(1)
				c.mon.RecordDroppedTick(c.name, reason)
				continue
			}
			local[t.Symbol] = pp
		}
	}
	return nil
}

// flush 用本地 map 整体替换该交易所快照；空 map 不覆盖上一次的结果。
func (c *Connector) flush(local map[string]market.PairPrice) {
	if len(local) == 0 {
		return
	}
	pairs := make([]market.PairPrice, 0, len(local))
	for _, p := range local {
		pairs = append(pairs, p)
	}
	c.sink.Write(c.name, pairs)
	c.flushes.Add(1)
	c.mon.RecordFlush(c.name, len(pairs))

	c.mu.Lock()
	c.lastFlush = c.now()
	c.lastPairs = len(pairs)
	c.mu.Unlock()
}

func (c *Connector) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

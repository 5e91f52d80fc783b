package container

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tri-arb-go/api"
	"tri-arb-go/config"
	"tri-arb-go/gateway"
	"tri-arb-go/infrastructure/alert"
	"tri-arb-go/infrastructure/logger"
	"tri-arb-go/infrastructure/monitor"
	"tri-arb-go/internal/engine"
	"tri-arb-go/internal/exchange"
	"tri-arb-go/internal/publish"
	"tri-arb-go/internal/store"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor

	// 核心服务
	store      *store.Store
	connectors []*exchange.Connector
	engine     *engine.ScanEngine
	sink       *publish.RedisSink
	alerts     *alert.Manager
	watcher    *config.Watcher

	// HTTP服务器
	apiServer *httpServer

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 从配置文件创建 Container，并开启配置热更新。
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewFromConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewFromConfig 使用已加载的配置，不监听文件。
func NewFromConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := config.Validate(*c.cfg); err != nil {
		return err
	}
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildConnectors(); err != nil {
		return fmt.Errorf("build connectors failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully", zap.Int("connectors", len(c.connectors)))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(monitor.DefaultConfig())

	c.store = store.New(func(event string, fields map[string]interface{}) {
		c.logger.Debug(event, zap.Any("fields", fields))
	})

	c.logger.Info("infrastructure built")
	return nil
}

// buildConnectors 每个启用的交易所一个连接器，按名称排序保证启动顺序稳定。
func (c *Container) buildConnectors() error {
	names := make([]string, 0, len(c.cfg.Exchanges))
	for name, ec := range c.cfg.Exchanges {
		if ec.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	for _, name := range names {
		ec := c.cfg.Exchanges[name]
		opts := protocolOptions(ec)
		proto, err := gateway.New(name, opts)
		if err != nil {
			return err
		}
		if seen[proto.Name()] {
			return fmt.Errorf("exchange %s configured twice", proto.Name())
		}
		seen[proto.Name()] = true

		conn := exchange.New(proto, c.store, connectorOptions(ec, opts.Limiter), c.logger, c.monitor)
		c.connectors = append(c.connectors, conn)
	}
	if len(c.connectors) == 0 {
		return errors.New("no exchange enabled")
	}
	return nil
}

func protocolOptions(ec config.ExchangeConfig) gateway.Options {
	opts := gateway.Options{
		URL:          ec.URL,
		TokenURL:     ec.TokenURL,
		Symbols:      ec.Symbols,
		PingInterval: config.Ms(ec.PingIntervalMs),
		HTTPClient:   gateway.NewDefaultHTTPClient(),
	}
	if ec.SubscribeRate > 0 {
		opts.Limiter = gateway.NewTokenBucketLimiter(ec.SubscribeRate, 1)
	}
	return opts
}

func connectorOptions(ec config.ExchangeConfig, limiter gateway.RateLimiter) exchange.Options {
	return exchange.Options{
		FlushInterval:  config.Ms(ec.FlushIntervalMs),
		ReadTimeout:    config.Ms(ec.ReadTimeoutMs),
		InitialBackoff: config.Ms(ec.InitialBackoffMs),
		MaxBackoff:     config.Ms(ec.MaxBackoffMs),
		Limiter:        limiter,
	}
}

func (c *Container) buildCoreServices() error {
	var sink engine.ResultSink
	if c.cfg.Redis.Enabled {
		c.sink = publish.NewRedisSink(publish.RedisOptions{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
			Key:      c.cfg.Redis.Key,
			Channel:  c.cfg.Redis.Channel,
			TTL:      time.Duration(c.cfg.Redis.TTLSec) * time.Second,
		}, c.logger)
		sink = c.sink
	}

	var extra []engine.ResultSink
	if c.cfg.Alert.Enabled {
		extra = append(extra, c.buildAlerts())
	}

	var err error
	c.engine, err = engine.New(c.cfg.Scan, engine.Components{
		Store:   c.store,
		Logger:  c.logger,
		Monitor: c.monitor,
		Sink:    sink,
		Sinks:   extra,
	})
	if err != nil {
		return err
	}

	if c.configPath != "" {
		c.watcher, err = config.NewWatcher(c.configPath, 2*time.Second, c.applyConfig)
		if err != nil {
			return err
		}
		c.watcher.OnError(func(err error) {
			c.logger.LogError(err, map[string]interface{}{"component": "config_watcher"})
		})
	}

	c.logger.Info("core services built")
	return nil
}

// buildAlerts 告警管理器：日志通道必选，Redis 通道复用推送连接；连接器状态回调在启动前注册。
func (c *Container) buildAlerts() *alert.OpportunityNotifier {
	ac := c.cfg.Alert
	c.alerts = alert.NewManager(time.Duration(ac.ThrottleSec)*time.Second, alert.NewLogChannel(c.logger))
	if c.sink != nil && ac.RedisChannel != "" {
		c.alerts.AddChannel(alert.NewRedisChannel(c.sink.Client(), ac.RedisChannel))
	}
	for _, conn := range c.connectors {
		conn.OnStateChange(alert.StreamWatch(c.alerts, conn.Name()))
	}
	c.logger.Info("alerts enabled", zap.Strings("channels", c.alerts.Channels()), zap.Float64("min_profit_pct", ac.MinProfitPct))
	return alert.NewOpportunityNotifier(c.alerts, ac.MinProfitPct)
}

// applyConfig 热更新只作用于扫描默认参数；连接器、端口变化需要重启。
func (c *Container) applyConfig(cfg config.AppConfig) {
	if err := c.engine.UpdateDefaults(cfg.Scan); err != nil {
		c.logger.LogError(err, map[string]interface{}{"component": "config_watcher", "action": "apply"})
		return
	}
	if cfg.Log.Level != c.cfg.Log.Level {
		c.logger.Info("log level change requires restart", zap.String("level", cfg.Log.Level))
	}
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Server.MetricsAddr != "" {
		c.lifecycle.Register("http", newHTTPServer("metrics", c.cfg.Server.MetricsAddr, c.monitor.Handler(), c.logger))
	}
	if c.sink != nil {
		c.lifecycle.Register("sink", c.sink)
	}
	for _, conn := range c.connectors {
		c.lifecycle.Register("connector", conn)
	}
	handler := api.NewHandler(c.engine, c, c.HealthCheck, c.logger, c.monitor).Routes()
	c.apiServer = newHTTPServer("api", c.cfg.Server.Addr, handler, c.logger)
	c.lifecycle.Register("http", c.apiServer)
	if c.watcher != nil {
		c.lifecycle.Register("config_watcher", c.watcher)
	}
	c.logger.Info("lifecycle components registered", zap.Strings("components", c.lifecycle.Names()))
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.engine.Wait()

	if c.logger != nil {
		_ = c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Stats 实现 api.StatusSource。
func (c *Container) Stats() []exchange.Stats {
	out := make([]exchange.Stats, 0, len(c.connectors))
	for _, conn := range c.connectors {
		out = append(out, conn.Stats())
	}
	return out
}

// APIAddr API 服务实际监听地址，启动前为空。
func (c *Container) APIAddr() string {
	if c.apiServer == nil {
		return ""
	}
	return c.apiServer.Addr()
}

func (c *Container) Engine() *engine.ScanEngine { return c.engine }

func (c *Container) Store() *store.Store { return c.store }

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Connectors() []*exchange.Connector { return c.connectors }

func (c *Container) Config() config.AppConfig { return *c.cfg }

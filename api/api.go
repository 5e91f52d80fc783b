// Package api 暴露扫描接口：POST /scan、GET /exchanges、GET /health。
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"tri-arb-go/infrastructure/logger"
	"tri-arb-go/infrastructure/monitor"
	"tri-arb-go/internal/engine"
	"tri-arb-go/internal/exchange"
)

const (
	ServiceName         = "tri-arb-scanner"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
	maxBodyBytes        = 64 << 10
)

// ScanService 扫描入口，通常是 *engine.ScanEngine。
type ScanService interface {
	RunScan(req engine.ScanRequest) (engine.ScanResult, error)
}

// StatusSource 连接器运行状态。
type StatusSource interface {
	Stats() []exchange.Stats
}

// Handler HTTP 处理器及其依赖
type Handler struct {
	scanner ScanService
	status  StatusSource
	health  func() error
	logger  *logger.Logger
	monitor *monitor.Monitor
	started time.Time
}

// NewHandler health 可为空，此时 /health 恒为 ok。
func NewHandler(scanner ScanService, status StatusSource, health func() error, log *logger.Logger, mon *monitor.Monitor) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if mon == nil {
		mon = monitor.New(monitor.DefaultConfig())
	}
	return &Handler{
		scanner: scanner,
		status:  status,
		health:  health,
		logger:  log,
		monitor: mon,
		started: time.Now(),
	}
}

// Routes 构建 gin 路由。
func (h *Handler) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(h.accessLogMiddleware())
	router.Use(h.metricsMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/", h.Index)
	router.POST("/scan", h.Scan)
	router.GET("/exchanges", h.Exchanges)
	router.GET("/health", h.HealthCheck)

	return router
}

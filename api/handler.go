package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tri-arb-go/gateway"
	"tri-arb-go/internal/engine"
	"tri-arb-go/internal/exchange"
)

// scanResponse 在扫描结果外包一层状态字段。
type scanResponse struct {
	Status string   `json:"status"`
	Errors []string `json:"errors"`
	engine.ScanResult
}

// Index handles GET /
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   ServiceName,
		"version":   ServiceVersion,
		"exchanges": gateway.Supported(),
		"endpoints": []string{"POST /scan", "GET /exchanges", "GET /health"},
	})
}

// Scan handles POST /scan；空 body 等同于使用全部默认值。
func (h *Handler) Scan(c *gin.Context) {
	var req engine.ScanRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.handleError(c, err, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.scanner.RunScan(req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			h.handleError(c, err, http.StatusBadRequest, err.Error())
			return
		}
		h.handleError(c, err, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, scanResponse{Status: "ok", Errors: []string{}, ScanResult: res})
}

// Exchanges handles GET /exchanges
func (h *Handler) Exchanges(c *gin.Context) {
	stats := []exchange.Stats{}
	if h.status != nil {
		stats = h.status.Stats()
	}
	c.JSON(http.StatusOK, gin.H{
		"supported":  gateway.Supported(),
		"connectors": stats,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	status, code, detail := "OK", http.StatusOK, ""
	if h.health != nil {
		if err := h.health(); err != nil {
			status, code, detail = "DEGRADED", http.StatusServiceUnavailable, err.Error()
		}
	}
	body := gin.H{
		"status":    status,
		"service":   ServiceName,
		"version":   ServiceVersion,
		"uptime_s":  int64(time.Since(h.started).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if detail != "" {
		body["detail"] = detail
	}
	c.JSON(code, body)
}

// handleError 记录错误并返回统一的错误结构
func (h *Handler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}
	h.logger.Warn("API error",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
		zap.Int("status_code", statusCode),
	)
	c.JSON(statusCode, gin.H{
		"status":     "error",
		"errors":     []string{userMessage},
		"request_id": requestID,
	})
}

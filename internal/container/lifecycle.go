package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tri-arb-go/infrastructure/logger"
)

// Lifecycle 由容器统一启停的组件
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager 按注册顺序启动、逆序停止。组件名形如 connector:binance，
// 出现在启动错误和健康报告里。
type LifecycleManager struct {
	mu         sync.RWMutex
	components []namedComponent
}

func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 组件实现 Name() 时名称为 kind:Name()，否则为 kind。
func (m *LifecycleManager) Register(kind string, c Lifecycle) {
	name := kind
	if n, ok := c.(interface{ Name() string }); ok && n.Name() != "" {
		name = kind + ":" + n.Name()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: c})
}

// Names 已注册组件，按启动顺序。
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.components))
	for i, c := range m.components {
		out[i] = c.name
	}
	return out
}

// StartAll 任一组件启动失败时逆序停止已启动的组件。
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, c := range m.components {
		if err := c.Start(ctx); err != nil {
			startErr := fmt.Errorf("start %s: %w", c.name, err)
			return errors.Join(startErr, stopReverse(m.components[:i]))
		}
	}
	return nil
}

func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stopReverse(m.components)
}

func stopReverse(cs []namedComponent) error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", cs[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 汇总所有不健康的组件，而不是只报第一个。
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, c := range m.components {
		if err := c.Health(); err != nil {
			errs = append(errs, fmt.Errorf("%s unhealthy: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// httpServer 端口在 Start 中同步绑定，占用时启动直接失败；
// Serve 异常退出后 Health 返回该错误。
type httpServer struct {
	name    string
	addr    string
	handler http.Handler
	logger  *logger.Logger

	mu       sync.Mutex
	srv      *http.Server
	bound    string
	serveErr error
}

func newHTTPServer(name, addr string, handler http.Handler, log *logger.Logger) *httpServer {
	if log == nil {
		log = logger.Nop()
	}
	return &httpServer{name: name, addr: addr, handler: handler, logger: log}
}

func (h *httpServer) Name() string { return h.name }

func (h *httpServer) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	srv := &http.Server{Handler: h.handler, ReadHeaderTimeout: 5 * time.Second}
	h.srv, h.bound, h.serveErr = srv, ln.Addr().String(), nil
	h.logger.Info("http server listening", zap.String("server", h.name), zap.String("addr", h.bound))

	go func() {
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		h.logger.LogError(err, map[string]interface{}{"component": h.name, "action": "serve"})
		h.mu.Lock()
		if h.srv == srv {
			h.serveErr = err
		}
		h.mu.Unlock()
	}()
	return nil
}

func (h *httpServer) Stop() error {
	h.mu.Lock()
	srv := h.srv
	h.srv = nil
	h.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	h.logger.Info("http server stopped", zap.String("server", h.name))
	return nil
}

func (h *httpServer) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.srv == nil {
		return errors.New("not started")
	}
	return h.serveErr
}

// Addr 实际监听地址，addr 为 :0 时由系统分配。
func (h *httpServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

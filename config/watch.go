package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化并重新加载，冷却期内的重复事件被忽略。
// 监听的是所在目录，编辑器以 rename 方式替换文件时也能收到事件。
type Watcher struct {
	path     string
	cooldown time.Duration
	onUpdate func(AppConfig)
	onError  func(error)

	fsw        *fsnotify.Watcher
	mu         sync.Mutex
	lastReload time.Time
	started    bool
	stop       chan struct{}
	done       chan struct{}
}

// NewWatcher 创建监听器；cooldown<=0 时不做节流。
func NewWatcher(path string, cooldown time.Duration, onUpdate func(AppConfig)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		cooldown: cooldown,
		onUpdate: onUpdate,
		fsw:      fsw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// OnError 重新加载失败时回调（解析失败、校验失败）。
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

// Start 启动热更新监听
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	w.started = true
	go w.watch(ctx)
	return nil
}

// Stop 停止监听并关闭 fsnotify。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.mu.Unlock()

	if started {
		<-w.done
	}
	return w.fsw.Close()
}

func (w *Watcher) Health() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return errors.New("config watcher not started")
	}
	return nil
}

// LastReload 最近一次成功重新加载的时间。
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if w.cooldown > 0 && time.Since(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		w.fail(err)
		return
	}
	w.mu.Lock()
	w.lastReload = time.Now()
	fn := w.onUpdate
	w.mu.Unlock()
	if fn != nil {
		fn(cfg)
	}
}

func (w *Watcher) fail(err error) {
	w.mu.Lock()
	fn := w.onError
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
